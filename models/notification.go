package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Notification is an in-app inbox item, written after the ledger commit.
type Notification struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"size:64;not null;index" json:"user_id"`
	Kind      string     `gorm:"size:32;not null" json:"kind"`
	Text      string     `gorm:"size:500" json:"text"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// AdminAuditLog records one admin-initiated wallet or match operation.
type AdminAuditLog struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	ActorID      string          `gorm:"size:64;not null;index" json:"actor_id"`
	Action       string          `gorm:"size:48;not null;index" json:"action"`
	TargetUserID string          `gorm:"size:64;index" json:"target_user_id,omitempty"`
	EntryID      string          `gorm:"size:36" json:"entry_id,omitempty"`
	MatchID      string          `gorm:"size:36" json:"match_id,omitempty"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"amount"`
	Note         string          `gorm:"size:500" json:"note,omitempty"`
	Metadata     datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
