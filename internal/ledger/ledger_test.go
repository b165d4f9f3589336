package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ever_greater/internal/domain"
	"ever_greater/internal/ledger"
)

func newUser(t *testing.T, l *ledger.MemoryLedger, email string) *domain.User {
	t.Helper()
	u, err := l.CreateUser(context.Background(), email, "hash")
	require.NoError(t, err)
	return u
}

func TestAutoprinterCost_StrictlyIncreasing(t *testing.T) {
	// First four units under 2*floor((owned+1)^1.2)
	wants := []int64{2, 4, 6, 10}
	for owned, want := range wants {
		assert.Equal(t, want, ledger.AutoprinterCost(int64(owned)), "cost at owned=%d", owned)
	}
	prev := int64(0)
	for owned := int64(0); owned < 50; owned++ {
		cost := ledger.AutoprinterCost(owned)
		assert.Greater(t, cost, prev, "cost must strictly increase at owned=%d", owned)
		prev = cost
	}
}

func TestCreateUser_Defaults(t *testing.T) {
	l := ledger.NewMemoryLedger()
	u := newUser(t, l, "a@example.com")
	assert.Equal(t, int64(domain.StartingSupplies), u.PrinterSupplies)
	assert.Equal(t, int64(0), u.Money)
	assert.Equal(t, int64(0), u.Gold)
	assert.Equal(t, int64(0), u.Autoprinters)
	assert.Equal(t, int64(0), u.TicketsContributed)

	_, err := l.CreateUser(context.Background(), "a@example.com", "hash")
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestConsumeSupply_NeverNegative(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	u := newUser(t, l, "a@example.com")

	// Drain the starting balance one by one
	for i := domain.StartingSupplies - 1; i >= 0; i-- {
		remaining, err := l.ConsumeSupply(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), remaining)
	}
	_, err := l.ConsumeSupply(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientResource)

	got, err := l.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PrinterSupplies)
}

func TestConsumeSupply_ConcurrentAttempts(t *testing.T) {
	// With more attempts than supplies, exactly supplies calls succeed and
	// the balance never goes negative.
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	u := newUser(t, l, "a@example.com")

	const attempts = 250 // more than the starting 100 supplies
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.ConsumeSupply(ctx, u.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.StartingSupplies, succeeded)
	got, err := l.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PrinterSupplies)
}

func TestPrintTicket(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	u := newUser(t, l, "a@example.com")

	res, err := l.PrintTicket(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
	assert.Equal(t, int64(domain.StartingSupplies-1), res.Supplies)
	assert.Equal(t, int64(1), res.Money)

	got, err := l.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TicketsContributed)
}

func TestPrintTicket_ConcurrentUsers(t *testing.T) {
	// Two users print concurrently against a counter at 10: the counter ends
	// at 12 and each user's contribution grows by exactly one.
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	a := newUser(t, l, "a@example.com")
	b := newUser(t, l, "b@example.com")
	_, err := l.IncrementGlobalCount(ctx, 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []uint{a.ID, b.ID} {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := l.PrintTicket(ctx, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	count, err := l.GlobalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	for _, id := range []uint{a.ID, b.ID} {
		got, err := l.User(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.TicketsContributed)
	}
}

func TestPrintTicket_OutOfSupplies(t *testing.T) {
	// A failed guard leaves the counter and the user untouched.
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	u := newUser(t, l, "a@example.com")
	for i := 0; i < domain.StartingSupplies; i++ {
		_, err := l.ConsumeSupply(ctx, u.ID)
		require.NoError(t, err)
	}
	before, err := l.GlobalCount(ctx)
	require.NoError(t, err)

	_, err = l.PrintTicket(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientResource)

	after, err := l.GlobalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	got, err := l.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Money)
	assert.Equal(t, int64(0), got.TicketsContributed)
}

func TestIncrementGlobalCount(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()

	count, err := l.IncrementGlobalCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, err = l.IncrementGlobalCount(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	count, err = l.GlobalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSpendMoneyFor(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient money leaves balances unchanged", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		u := newUser(t, l, "a@example.com")
		require.NoError(t, l.CreditFromPrint(ctx, u.ID, 5))

		_, err := l.SpendMoneyFor(ctx, u.ID, "supplies", 10, ledger.Grant{Supplies: 100})
		assert.ErrorIs(t, err, domain.ErrInsufficientResource)

		got, err := l.User(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Money)
		assert.Equal(t, int64(domain.StartingSupplies), got.PrinterSupplies)
	})

	t.Run("supplies pack", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		u := newUser(t, l, "a@example.com")
		require.NoError(t, l.CreditFromPrint(ctx, u.ID, 25))

		got, err := l.SpendMoneyFor(ctx, u.ID, "supplies", ledger.SuppliesPackCost, ledger.Grant{Supplies: ledger.SuppliesPackSize})
		require.NoError(t, err)
		assert.Equal(t, int64(15), got.Money)
		assert.Equal(t, int64(domain.StartingSupplies+ledger.SuppliesPackSize), got.PrinterSupplies)
	})

	t.Run("gold", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		u := newUser(t, l, "a@example.com")
		require.NoError(t, l.CreditFromPrint(ctx, u.ID, 250))

		got, err := l.SpendMoneyFor(ctx, u.ID, "gold", 2*ledger.GoldUnitCost, ledger.Grant{Gold: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(50), got.Money)
		assert.Equal(t, int64(2), got.Gold)
	})

	t.Run("purchase recorded", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		u := newUser(t, l, "a@example.com")
		require.NoError(t, l.CreditFromPrint(ctx, u.ID, 100))
		_, err := l.SpendMoneyFor(ctx, u.ID, "gold", ledger.GoldUnitCost, ledger.Grant{Gold: 1})
		require.NoError(t, err)

		purchases := l.Purchases()
		require.Len(t, purchases, 1)
		assert.Equal(t, "gold", purchases[0].Item)
		assert.Equal(t, int64(ledger.GoldUnitCost), purchases[0].Cost)
	})
}

func TestBuyAutoprinter(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	u := newUser(t, l, "a@example.com")

	// No gold at all
	_, err := l.BuyAutoprinter(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientResource)

	// Fund four units: 2 + 4 + 6 + 10
	require.NoError(t, l.CreditFromPrint(ctx, u.ID, 2200))
	_, err = l.SpendMoneyFor(ctx, u.ID, "gold", 2200, ledger.Grant{Gold: 22})
	require.NoError(t, err)

	for i := int64(1); i <= 4; i++ {
		got, err := l.BuyAutoprinter(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.Autoprinters)
	}
	got, err := l.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Gold) // 22 - (2+4+6+10)
}

func TestRunAggregationTick(t *testing.T) {
	ctx := context.Background()

	t.Run("production capped by supplies", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		l.Put(domain.User{ID: 1, Email: "a@example.com", Autoprinters: 5, PrinterSupplies: 3})

		res, err := l.RunAggregationTick(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.TotalProduced)
		assert.Equal(t, int64(3), res.PerUser[uint(1)])

		got, err := l.User(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.PrinterSupplies)
		assert.Equal(t, int64(3), got.Money)
		assert.Equal(t, int64(3), got.TicketsContributed)
	})

	t.Run("total equals counter delta across users", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		l.Put(domain.User{ID: 1, Autoprinters: 2, PrinterSupplies: 100})
		l.Put(domain.User{ID: 2, Autoprinters: 7, PrinterSupplies: 100})
		l.Put(domain.User{ID: 3, PrinterSupplies: 100}) // no autoprinters, produces nothing

		before, err := l.GlobalCount(ctx)
		require.NoError(t, err)
		res, err := l.RunAggregationTick(ctx)
		require.NoError(t, err)
		after, err := l.GlobalCount(ctx)
		require.NoError(t, err)

		assert.Equal(t, int64(9), res.TotalProduced)
		assert.Equal(t, res.TotalProduced, after-before)
		assert.Equal(t, after, res.NewCount)
		assert.NotContains(t, res.PerUser, uint(3))
	})

	t.Run("idle tick leaves the counter alone", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		newUser(t, l, "a@example.com")

		res, err := l.RunAggregationTick(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.TotalProduced)
		assert.Equal(t, int64(0), res.NewCount)
	})
}
