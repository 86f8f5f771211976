package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EntryKind string

const (
	KindTopup            EntryKind = "topup"
	KindWithdrawal       EntryKind = "withdrawal"
	KindMatchEntry       EntryKind = "match_entry"
	KindPrize            EntryKind = "prize"
	KindManualAdjustment EntryKind = "manual_adjustment"
)

type EntryStatus string

const (
	StatusPending  EntryStatus = "pending"
	StatusSuccess  EntryStatus = "success"
	StatusRejected EntryStatus = "rejected"
)

// LedgerEntry records one balance-affecting event. Amount is signed:
// positive credits the account, negative debits it.
//
// Only pending entries are ever updated, and only once, to success or rejected.
type LedgerEntry struct {
	ID             string              `gorm:"primaryKey;size:36" json:"id"`
	AccountID      string              `gorm:"size:36;not null;index" json:"account_id"`
	UserID         string              `gorm:"size:64;not null;index" json:"user_id"`
	Amount         decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"amount"`
	Kind           EntryKind           `gorm:"size:32;not null;index" json:"kind"`
	Status         EntryStatus         `gorm:"size:16;not null;index" json:"status"`
	ExternalRef    *string             `gorm:"size:128;uniqueIndex" json:"external_ref,omitempty"` // gateway order id
	IdempotencyKey *string             `gorm:"size:191;uniqueIndex" json:"idempotency_key,omitempty"`
	MatchRef       *string             `gorm:"size:36;index" json:"match_ref,omitempty"`
	Description    string              `gorm:"size:255" json:"description"`
	BalanceAfter   decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"balance_after"`
	Metadata       datatypes.JSON      `json:"metadata,omitempty"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt      time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// IdempotencyRecord maps a retriable operation's key to the entry it produced.
type IdempotencyRecord struct {
	Key           string    `gorm:"column:idem_key;primaryKey;size:191" json:"key"`
	LedgerEntryID string    `gorm:"size:36;not null" json:"ledger_entry_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
