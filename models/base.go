package models

import "time"

// Timestamps adds GORM auto-times. Ledger rows are never soft-deleted, so
// there is no DeletedAt here.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All is the static list of persisted models, in migration order.
func All() []interface{} {
	return []interface{}{
		&PlayerProfile{},
		&Account{},
		&LedgerEntry{},
		&IdempotencyRecord{},
		&Match{},
		&TeamGroup{},
		&Participation{},
		&Notification{},
		&AdminAuditLog{},
	}
}
