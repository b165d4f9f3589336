// Package ledger is the sole owner of user and counter mutation. Every
// operation is guarded and all-or-nothing: a precondition is checked at the
// moment of application (compare-and-swap style), so callers never read a
// balance and write a derived value themselves.
package ledger

import (
	"context"
	"math"

	"ever_greater/internal/domain"
)

// Shop pricing
const (
	SuppliesPackCost = 10  // Money cost of one supplies pack
	SuppliesPackSize = 100 // Supplies granted per pack
	GoldUnitCost     = 100 // Money cost of one gold unit
)

// AutoprinterCost returns the gold cost of the next autoprinter given how
// many the user already owns. Strictly increasing in owned.
func AutoprinterCost(owned int64) int64 {
	return 2 * int64(math.Floor(math.Pow(float64(owned+1), 1.2)))
}

// Grant is the field(s) credited by SpendMoneyFor.
type Grant struct {
	Supplies int64 // Supplies credited
	Gold     int64 // Gold credited
}

// PrintResult is the state returned after printing one ticket.
type PrintResult struct {
	Count    int64 `json:"count"`    // New global ticket count
	Supplies int64 `json:"supplies"` // User's remaining supplies
	Money    int64 `json:"money"`    // User's new money balance
}

// TickResult reports one aggregation pass over all users.
type TickResult struct {
	TotalProduced int64          // Tickets produced across all users this tick
	PerUser       map[uint]int64 // Tickets produced per user (absent = 0)
	NewCount      int64          // Global count after applying TotalProduced
}

// Ledger exposes only guarded, atomic operations. Implementations serialize
// conflicting mutations themselves (row-level guards in SQL, or a mutex for
// the in-memory backend); callers need no locks of their own.
type Ledger interface {
	// CreateUser registers a new user with the default starting balances.
	CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error)
	// UserByEmail looks a user up for login. Returns ErrNotFound if absent.
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	// User reads a user's current fields. Returns ErrNotFound if absent.
	User(ctx context.Context, id uint) (*domain.User, error)
	// TopContributors lists users ordered by tickets contributed, descending,
	// with the total user count for pagination.
	TopContributors(ctx context.Context, limit, offset int) ([]domain.User, int64, error)

	// GlobalCount reads the current global ticket count.
	GlobalCount(ctx context.Context) (int64, error)
	// IncrementGlobalCount adds amount (>= 1) and returns the new count.
	IncrementGlobalCount(ctx context.Context, amount int64) (int64, error)

	// ConsumeSupply decrements supplies by one only if the current value is
	// positive, returning the remainder. ErrInsufficientResource at zero.
	ConsumeSupply(ctx context.Context, id uint) (int64, error)
	// CreditFromPrint credits money and tickets_contributed by amount.
	CreditFromPrint(ctx context.Context, id uint, amount int64) error
	// PrintTicket consumes one supply, credits one money and one contributed
	// ticket, and increments the global count, all in one transaction.
	PrintTicket(ctx context.Context, id uint) (*PrintResult, error)

	// SpendMoneyFor debits cost from money only if money >= cost and credits
	// the grant atomically. Records a purchase under item.
	SpendMoneyFor(ctx context.Context, id uint, item string, cost int64, grant Grant) (*domain.User, error)
	// BuyAutoprinter debits the gold cost for the user's next autoprinter and
	// increments autoprinters, only if gold suffices.
	BuyAutoprinter(ctx context.Context, id uint) (*domain.User, error)

	// RunAggregationTick converts autoprinter capacity into production for
	// every user in a single transaction: each user with autoprinters > 0 and
	// supplies > 0 produces min(autoprinters, supplies) tickets, moving that
	// many supplies into money and tickets_contributed. The global count is
	// incremented by the total inside the same transaction.
	RunAggregationTick(ctx context.Context) (*TickResult, error)
}
