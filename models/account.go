package models

import "github.com/shopspring/decimal"

// Account is the wallet balance owned by one user. Balance is only ever
// written inside a transaction that also inserts a LedgerEntry.
type Account struct {
	ID       string          `gorm:"primaryKey;size:36" json:"id"`
	UserID   string          `gorm:"size:64;uniqueIndex;not null" json:"user_id"` // external user id from identity
	Balance  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	Currency string          `gorm:"size:8;not null;default:'INR'" json:"currency"`

	Timestamps
}
