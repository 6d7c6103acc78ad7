package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records policy mutations and settlement decisions for dispute
// resolution. Appends are fire-and-forget; rows are never updated.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Actor    string `gorm:"type:varchar(64);not null;index"`
	Action   string `gorm:"type:varchar(64);not null;index"`
	TargetID string `gorm:"type:varchar(64);index"`

	Changeset datatypes.JSON `gorm:"type:jsonb"`
	Reason    string         `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
