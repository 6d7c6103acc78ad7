package models

import "time"

type Mode string

const (
	ModeWin    Mode = "win"
	ModeLoss   Mode = "loss"
	ModeRandom Mode = "random"
)

func (m Mode) Valid() bool {
	return m == ModeWin || m == ModeLoss || m == ModeRandom
}

// PolicyState is a singleton row holding the platform-wide outcome policy.
type PolicyState struct {
	ID             uint64 `gorm:"primaryKey"`
	Mode           Mode   `gorm:"type:varchar(10);not null;default:'random'"`
	WinProbability int    `gorm:"not null;default:60"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PolicyState) TableName() string {
	return "policy_state"
}

// Override forces the outcome of every trade for one user until it expires.
// A nil ExpiresAt means the override never expires on its own.
type Override struct {
	ID      uint64  `gorm:"primaryKey;autoIncrement"`
	UserID  string  `gorm:"type:varchar(36);not null;uniqueIndex"`
	Outcome Outcome `gorm:"type:varchar(10);not null"`

	ExpiresAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Override) TableName() string {
	return "overrides"
}

// Expired reports whether the override lapsed at or before now.
func (o Override) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}
