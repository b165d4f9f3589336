package domain

// User Model
type User struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`                          // Primary key
	Email              string `gorm:"unique;not null" json:"email"`                  // Unique email address
	Password           string `gorm:"not null" json:"-"`                             // Hashed password, never serialized
	TicketsContributed int64  `gorm:"not null;default:0" json:"tickets_contributed"` // Lifetime tickets printed by this user
	PrinterSupplies    int64  `gorm:"not null;default:100" json:"printer_supplies"`  // Supplies, consumed one per printed ticket
	Money              int64  `gorm:"not null;default:0" json:"money"`               // Soft currency earned by printing
	Gold               int64  `gorm:"not null;default:0" json:"gold"`                // Premium currency bought with money
	Autoprinters       int64  `gorm:"not null;default:0" json:"autoprinters"`        // Passive printers run each aggregation tick
}

// StartingSupplies is the supply balance granted on registration
const StartingSupplies = 100
