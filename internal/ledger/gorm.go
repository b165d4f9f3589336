package ledger

import (
	"context"                      // Context for DB operations
	"errors"                       // Error inspection
	"ever_greater/internal/domain" // Importing domain models

	"gorm.io/gorm"        // GORM ORM library
	"gorm.io/gorm/clause" // Row locking clauses
)

// GormLedger implements Ledger on a transactional SQL backend. Every guard is
// expressed inside the UPDATE's WHERE clause, so the row store itself is the
// serialization point and no in-process lock is needed.
type GormLedger struct {
	db *gorm.DB // Database handle
}

// NewGormLedger wraps a connected gorm handle
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// CreateUser registers a user with the default starting balances
func (l *GormLedger) CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	user := domain.User{
		Email:           email,                  // Unique email
		Password:        passwordHash,           // Already hashed by the caller
		PrinterSupplies: domain.StartingSupplies, // Registration grant
	}
	// Attempt to create the user (fails on duplicate email)
	if err := l.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return &user, nil
}

// UserByEmail fetches a user by email for login
func (l *GormLedger) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := l.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		// Map missing rows to the domain error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// User fetches a user's current fields by ID
func (l *GormLedger) User(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := l.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// TopContributors lists users by lifetime contribution for the leaderboard
func (l *GormLedger) TopContributors(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	var total int64
	// Count total users for pagination
	if err := l.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []domain.User
	// Fetch the requested page ordered by contribution
	if err := l.db.WithContext(ctx).
		Order("tickets_contributed desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GlobalCount reads the singleton counter row
func (l *GormLedger) GlobalCount(ctx context.Context) (int64, error) {
	var counter domain.GlobalCounter
	if err := l.db.WithContext(ctx).First(&counter, domain.GlobalCounterID).Error; err != nil {
		return 0, err
	}
	return counter.Count, nil
}

// IncrementGlobalCount atomically adds amount and returns the new count
func (l *GormLedger) IncrementGlobalCount(ctx context.Context, amount int64) (int64, error) {
	// Reject non-positive amounts before touching the row
	if amount < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	var count int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e error
		count, e = incrementCounter(tx, amount) // Guarded add inside the transaction
		return e
	})
	return count, err
}

// incrementCounter applies the counter add inside an open transaction and
// re-reads the resulting value.
func incrementCounter(tx *gorm.DB, amount int64) (int64, error) {
	// Single guarded statement: no caller ever computes current + delta
	if err := tx.Model(&domain.GlobalCounter{}).
		Where("id = ?", domain.GlobalCounterID).
		Update("count", gorm.Expr("count + ?", amount)).Error; err != nil {
		return 0, err
	}
	var counter domain.GlobalCounter // Re-read within the same transaction
	if err := tx.First(&counter, domain.GlobalCounterID).Error; err != nil {
		return 0, err
	}
	return counter.Count, nil
}

// ConsumeSupply decrements supplies only while positive
func (l *GormLedger) ConsumeSupply(ctx context.Context, id uint) (int64, error) {
	var remaining int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := consumeSupply(tx, id); err != nil {
			return err // Rollback on guard failure
		}
		var user domain.User // Re-read the remainder
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}
		remaining = user.PrinterSupplies
		return nil
	})
	return remaining, err
}

// consumeSupply runs the guarded decrement inside an open transaction
func consumeSupply(tx *gorm.DB, id uint) error {
	// Guard lives in the WHERE clause: zero rows affected means the guard failed
	res := tx.Model(&domain.User{}).
		Where("id = ? AND printer_supplies > 0", id).
		Update("printer_supplies", gorm.Expr("printer_supplies - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing user from an empty supply balance
		var user domain.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		return domain.ErrInsufficientResource
	}
	return nil
}

// CreditFromPrint credits money and tickets_contributed by amount
func (l *GormLedger) CreditFromPrint(ctx context.Context, id uint, amount int64) error {
	if amount < 1 {
		return domain.ErrInvalidQuantity
	}
	res := l.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"money":               gorm.Expr("money + ?", amount),
			"tickets_contributed": gorm.Expr("tickets_contributed + ?", amount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PrintTicket performs the full print: one supply out, one money and one
// contributed ticket in, global count up by one, as a single transaction.
func (l *GormLedger) PrintTicket(ctx context.Context, id uint) (*PrintResult, error) {
	var result PrintResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Consume the supply first; a failed guard rolls everything back
		if err := consumeSupply(tx, id); err != nil {
			return err
		}
		// Credit the print reward
		if err := tx.Model(&domain.User{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"money":               gorm.Expr("money + 1"),
				"tickets_contributed": gorm.Expr("tickets_contributed + 1"),
			}).Error; err != nil {
			return err
		}
		// Bump the global count inside the same transaction
		count, err := incrementCounter(tx, 1)
		if err != nil {
			return err
		}
		var user domain.User // Re-read the user's new balances
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}
		result = PrintResult{Count: count, Supplies: user.PrinterSupplies, Money: user.Money}
		return nil // Commit transaction
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SpendMoneyFor debits money and credits the grant in one guarded statement
func (l *GormLedger) SpendMoneyFor(ctx context.Context, id uint, item string, cost int64, grant Grant) (*domain.User, error) {
	if cost < 1 || (grant.Supplies <= 0 && grant.Gold <= 0) {
		return nil, domain.ErrInvalidQuantity
	}
	var user domain.User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Build the debit plus whichever grant fields apply
		updates := map[string]interface{}{
			"money": gorm.Expr("money - ?", cost), // Debit guarded below
		}
		if grant.Supplies > 0 {
			updates["printer_supplies"] = gorm.Expr("printer_supplies + ?", grant.Supplies)
		}
		if grant.Gold > 0 {
			updates["gold"] = gorm.Expr("gold + ?", grant.Gold)
		}
		// Guard: only apply when the balance covers the cost
		res := tx.Model(&domain.User{}).
			Where("id = ? AND money >= ?", id, cost).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Distinguish a missing user from insufficient funds
			if err := tx.First(&user, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrNotFound
				}
				return err
			}
			return domain.ErrInsufficientResource
		}
		// Record the purchase
		p := domain.Purchase{
			UserID:   id,                            // Buyer
			Item:     item,                          // Item bought
			Quantity: grant.Supplies + grant.Gold,   // Units granted
			Cost:     cost,                          // Amount debited
			Currency: "money",                       // Debited currency
		}
		if err := tx.Create(&p).Error; err != nil {
			return err // Rollback on failure
		}
		// Re-read the new balances
		return tx.First(&user, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// BuyAutoprinter debits the next autoprinter's gold cost and increments the
// owned count, only if funds suffice. The row is locked while the cost is
// derived from the current owned count.
func (l *GormLedger) BuyAutoprinter(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the row so the cost can't change under us
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		cost := AutoprinterCost(user.Autoprinters) // Cost of the next unit
		// Guarded debit and increment
		res := tx.Model(&domain.User{}).
			Where("id = ? AND gold >= ?", id, cost).
			Updates(map[string]interface{}{
				"gold":         gorm.Expr("gold - ?", cost),
				"autoprinters": gorm.Expr("autoprinters + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientResource
		}
		// Record the purchase
		p := domain.Purchase{
			UserID:   id,            // Buyer
			Item:     "autoprinter", // Item bought
			Quantity: 1,             // Units granted
			Cost:     cost,          // Amount debited
			Currency: "gold",        // Debited currency
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		// Re-read the new balances
		return tx.First(&user, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// producedRow carries one user's production for the current tick
type producedRow struct {
	ID       uint  // User ID
	Produced int64 // min(autoprinters, printer_supplies) at tick time
}

// RunAggregationTick converts autoprinter capacity into production for every
// user in one transaction, so no request-time purchase can interleave with a
// half-applied tick.
func (l *GormLedger) RunAggregationTick(ctx context.Context) (*TickResult, error) {
	result := TickResult{PerUser: map[uint]int64{}}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock and snapshot every producing row so the per-user report matches
		// exactly what the set-wide update applies
		var rows []producedRow
		if err := tx.Model(&domain.User{}).
			Select("id, LEAST(autoprinters, printer_supplies) AS produced").
			Where("autoprinters > 0 AND printer_supplies > 0").
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			result.PerUser[r.ID] = r.Produced
			result.TotalProduced += r.Produced
		}
		if result.TotalProduced > 0 {
			// One set-wide update covers all producing users. Assignment order
			// matters in MySQL: printer_supplies must be assigned last so the
			// LEAST expressions see the pre-tick value.
			if err := tx.Exec(`UPDATE users
				SET tickets_contributed = tickets_contributed + LEAST(autoprinters, printer_supplies),
				    money = money + LEAST(autoprinters, printer_supplies),
				    printer_supplies = printer_supplies - LEAST(autoprinters, printer_supplies)
				WHERE autoprinters > 0 AND printer_supplies > 0`).Error; err != nil {
				return err
			}
			// The global count grows by exactly the tick's total, inside the
			// same transaction boundary
			count, err := incrementCounter(tx, result.TotalProduced)
			if err != nil {
				return err
			}
			result.NewCount = count
			return nil
		}
		// Nothing produced: still report the current count
		var counter domain.GlobalCounter
		if err := tx.First(&counter, domain.GlobalCounterID).Error; err != nil {
			return err
		}
		result.NewCount = counter.Count
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
