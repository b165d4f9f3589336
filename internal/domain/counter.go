package domain

// GlobalCounter Model
type GlobalCounter struct {
	ID    uint  `gorm:"primaryKey"`         // Primary key, always 1 (singleton row)
	Count int64 `gorm:"not null;default:0"` // Global ticket count, never decreases
}

// GlobalCounterID is the primary key of the singleton counter row
const GlobalCounterID = 1
