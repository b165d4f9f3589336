package ledger

import (
	"context"
	"sort"
	"sync"

	"ever_greater/internal/domain"
)

// MemoryLedger implements Ledger over an in-process map. A single mutex makes
// every operation all-or-nothing, mirroring the atomicity contract the SQL
// backend gets from guarded statements. Used in tests and small deployments.
type MemoryLedger struct {
	mu        sync.Mutex
	users     map[uint]*domain.User
	purchases []domain.Purchase
	count     int64
	nextID    uint
}

// NewMemoryLedger returns an empty in-memory ledger with count 0.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{users: map[uint]*domain.User{}, nextID: 1}
}

func (l *MemoryLedger) CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.users {
		if u.Email == email {
			return nil, domain.ErrEmailTaken
		}
	}
	user := &domain.User{
		ID:              l.nextID,
		Email:           email,
		Password:        passwordHash,
		PrinterSupplies: domain.StartingSupplies,
	}
	l.nextID++
	l.users[user.ID] = user
	u := *user
	return &u, nil
}

func (l *MemoryLedger) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, user := range l.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (l *MemoryLedger) User(ctx context.Context, id uint) (*domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (l *MemoryLedger) TopContributors(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := make([]domain.User, 0, len(l.users))
	for _, u := range l.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TicketsContributed != all[j].TicketsContributed {
			return all[i].TicketsContributed > all[j].TicketsContributed
		}
		return all[i].ID < all[j].ID
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (l *MemoryLedger) GlobalCount(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count, nil
}

func (l *MemoryLedger) IncrementGlobalCount(ctx context.Context, amount int64) (int64, error) {
	if amount < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count += amount
	return l.count, nil
}

func (l *MemoryLedger) ConsumeSupply(ctx context.Context, id uint) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if user.PrinterSupplies <= 0 {
		return 0, domain.ErrInsufficientResource
	}
	user.PrinterSupplies--
	return user.PrinterSupplies, nil
}

func (l *MemoryLedger) CreditFromPrint(ctx context.Context, id uint, amount int64) error {
	if amount < 1 {
		return domain.ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	user.Money += amount
	user.TicketsContributed += amount
	return nil
}

func (l *MemoryLedger) PrintTicket(ctx context.Context, id uint) (*PrintResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if user.PrinterSupplies <= 0 {
		return nil, domain.ErrInsufficientResource
	}
	user.PrinterSupplies--
	user.Money++
	user.TicketsContributed++
	l.count++
	return &PrintResult{Count: l.count, Supplies: user.PrinterSupplies, Money: user.Money}, nil
}

func (l *MemoryLedger) SpendMoneyFor(ctx context.Context, id uint, item string, cost int64, grant Grant) (*domain.User, error) {
	if cost < 1 || (grant.Supplies <= 0 && grant.Gold <= 0) {
		return nil, domain.ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if user.Money < cost {
		return nil, domain.ErrInsufficientResource
	}
	user.Money -= cost
	user.PrinterSupplies += grant.Supplies
	user.Gold += grant.Gold
	l.purchases = append(l.purchases, domain.Purchase{
		UserID:   id,
		Item:     item,
		Quantity: grant.Supplies + grant.Gold,
		Cost:     cost,
		Currency: "money",
	})
	u := *user
	return &u, nil
}

func (l *MemoryLedger) BuyAutoprinter(ctx context.Context, id uint) (*domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cost := AutoprinterCost(user.Autoprinters)
	if user.Gold < cost {
		return nil, domain.ErrInsufficientResource
	}
	user.Gold -= cost
	user.Autoprinters++
	l.purchases = append(l.purchases, domain.Purchase{
		UserID:   id,
		Item:     "autoprinter",
		Quantity: 1,
		Cost:     cost,
		Currency: "gold",
	})
	u := *user
	return &u, nil
}

func (l *MemoryLedger) RunAggregationTick(ctx context.Context) (*TickResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := &TickResult{PerUser: map[uint]int64{}}
	for id, user := range l.users {
		if user.Autoprinters <= 0 || user.PrinterSupplies <= 0 {
			continue
		}
		produced := user.Autoprinters
		if user.PrinterSupplies < produced {
			produced = user.PrinterSupplies
		}
		user.PrinterSupplies -= produced
		user.Money += produced
		user.TicketsContributed += produced
		result.PerUser[id] = produced
		result.TotalProduced += produced
	}
	if result.TotalProduced > 0 {
		l.count += result.TotalProduced
	}
	result.NewCount = l.count
	return result, nil
}

// Put inserts or replaces a user row directly, bypassing every guard. Test
// seeding only.
func (l *MemoryLedger) Put(u domain.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u.ID == 0 {
		u.ID = l.nextID
	}
	if u.ID >= l.nextID {
		l.nextID = u.ID + 1
	}
	l.users[u.ID] = &u
}

// Purchases returns a copy of the recorded purchase log.
func (l *MemoryLedger) Purchases() []domain.Purchase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Purchase, len(l.purchases))
	copy(out, l.purchases)
	return out
}
