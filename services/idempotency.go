package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-ledger/models"
)

// Reserve claims key for entryID inside tx. If the key is already taken it
// returns the entry id recorded for it and reserved=false; the caller then
// replays that entry instead of applying its effect again.
//
// The insert uses ON CONFLICT DO NOTHING so a losing concurrent caller waits
// on the winner's row and then reads it, without aborting its transaction.
func Reserve(tx *gorm.DB, key, entryID string) (existingEntryID string, reserved bool, err error) {
	if strings.TrimSpace(key) == "" {
		return "", false, errors.New("idempotency key must not be empty")
	}
	rec := models.IdempotencyRecord{Key: key, LedgerEntryID: entryID}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idem_key"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return "", false, fmt.Errorf("reserve %s: %w", key, res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return entryID, true, nil
	}

	var existing models.IdempotencyRecord
	if err := tx.Where("idem_key = ?", key).Take(&existing).Error; err != nil {
		return "", false, fmt.Errorf("lookup reserved key %s: %w", key, err)
	}
	return existing.LedgerEntryID, false, nil
}

// LookupKey returns the entry recorded for key, or ErrNotFound.
func (s *LedgerStore) LookupKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	var rec models.IdempotencyRecord
	err := s.read(ctx, "lookup_key", func(db *gorm.DB) error {
		return db.Where("idem_key = ?", key).Take(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: idempotency key %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return s.Entry(ctx, rec.LedgerEntryID)
}

// PrizeKey is the derived key for one prize award. The same (match, round,
// user) always yields the same key, so a resubmitted distribution is a no-op.
func PrizeKey(matchID string, round int, userID string) string {
	return fmt.Sprintf("PRIZE:tournament:%s:%d:%s", matchID, round, userID)
}

// TopupKey guards confirmation of one gateway order.
func TopupKey(orderID string) string {
	return "TOPUP:" + orderID
}

// RefundKey guards the entry-fee refund of one participant of a deleted match.
func RefundKey(matchID, userID string) string {
	return fmt.Sprintf("REFUND:match:%s:%s", matchID, userID)
}

// ApplyOnceTx applies a successful entry for userID at most once per key.
// With an empty key it is a plain ApplyEntryTx. A key seen before returns the
// entry it produced and replayed=true, leaving the balance untouched. Reusing
// a key for another user, kind or amount is ErrInvalidInput.
func (s *LedgerStore) ApplyOnceTx(tx *gorm.DB, key, userID string, amount decimal.Decimal, kind models.EntryKind, meta EntryMeta) (entry *models.LedgerEntry, replayed bool, err error) {
	if key != "" {
		entryID := uuid.NewString()
		existingID, reserved, err := Reserve(tx, key, entryID)
		if err != nil {
			return nil, false, err
		}
		if !reserved {
			var prior models.LedgerEntry
			if err := tx.Where("id = ?", existingID).Take(&prior).Error; err != nil {
				return nil, false, fmt.Errorf("load entry %s for key %s: %w", existingID, key, err)
			}
			if prior.UserID != userID || prior.Kind != kind || !prior.Amount.Equal(Round2(amount)) {
				return nil, false, fmt.Errorf("%w: key %s already used for %s %s %s", ErrInvalidInput,
					key, prior.Kind, prior.UserID, prior.Amount.StringFixed(moneyPlaces))
			}
			return &prior, true, nil
		}
		meta.EntryID = entryID
		meta.IdempotencyKey = key
	}

	acct, err := s.LockAccountTx(tx, userID)
	if err != nil {
		return nil, false, err
	}
	entry, err = s.ApplyEntryTx(tx, acct, amount, kind, meta)
	return entry, false, err
}
