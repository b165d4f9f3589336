package domain

// Purchase Model
type Purchase struct {
	ID        uint   `gorm:"primaryKey"`           // Primary key
	UserID    uint   `gorm:"index"`                // Foreign key to User
	Item      string // Item bought: supplies, gold, autoprinter
	Quantity  int64  // Units granted
	Cost      int64  // Amount debited
	Currency  string // Currency debited: money or gold
	CreatedAt int64  `gorm:"autoCreateTime:milli"` // Timestamp of creation in milliseconds
}
