package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-ledger/models"
	"tournament-ledger/utils"
)

// LedgerStore owns account balances and ledger entries. Every balance change
// goes through ApplyEntryTx, CreatePendingEntryTx or ResolvePendingEntryTx,
// each of which writes the balance and its entry in the caller's transaction.
//
// Lock order, everywhere: idempotency key, account, ledger entry, match.
type LedgerStore struct {
	DB       *gorm.DB
	Metrics  *Metrics
	Currency string
}

func NewLedgerStore(db *gorm.DB, metrics *Metrics, currency string) *LedgerStore {
	if currency == "" {
		currency = "INR"
	}
	return &LedgerStore{DB: db, Metrics: metrics, Currency: currency}
}

// EntryMeta carries the optional columns of a new entry.
type EntryMeta struct {
	EntryID        string // pre-allocated id, used when an idempotency key was reserved first
	Description    string
	ExternalRef    string
	IdempotencyKey string
	MatchRef       string
	Extra          map[string]any
}

// Resolution is the outcome applied to a pending entry. Delta is added to
// the balance in the same transaction (zero for no balance change).
type Resolution struct {
	Status         models.EntryStatus
	Delta          decimal.Decimal
	Note           string
	IdempotencyKey string // stamped on the entry when set
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeMeta(extra map[string]any) datatypes.JSON {
	if len(extra) == 0 {
		return nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		utils.Warnf("[LEDGER] ⚠️ dropping unencodable metadata: %v", err)
		return nil
	}
	return datatypes.JSON(b)
}

// EnsureAccount opens a zero-balance account for userID if none exists.
func (s *LedgerStore) EnsureAccount(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, ErrAccountNotFound
	}
	acct := models.Account{
		ID:       uuid.NewString(),
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: s.Currency,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&acct)
	if res.Error != nil {
		return nil, fmt.Errorf("ensure account %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 1 {
		utils.Infof("[LEDGER] 🆕 Opened account %s for user %s", acct.ID, userID)
	}
	return s.AccountByUser(ctx, userID)
}

func (s *LedgerStore) AccountByUser(ctx context.Context, userID string) (*models.Account, error) {
	var acct models.Account
	err := s.read(ctx, "account_by_user", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Take(&acct).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// LockAccountTx loads and row-locks the account of userID.
func (s *LedgerStore) LockAccountTx(tx *gorm.DB, userID string) (*models.Account, error) {
	var acct models.Account
	if err := forUpdate(tx).Where("user_id = ?", userID).Take(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (s *LedgerStore) lockEntryTx(tx *gorm.DB, entryID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := forUpdate(tx).Where("id = ?", entryID).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *LedgerStore) setBalanceTx(tx *gorm.DB, acct *models.Account, delta decimal.Decimal) (decimal.Decimal, error) {
	next := Round2(acct.Balance.Add(delta))
	if next.IsNegative() {
		return acct.Balance, fmt.Errorf("%w: balance %s, needed %s", ErrInsufficientFunds,
			acct.Balance.StringFixed(moneyPlaces), delta.Abs().StringFixed(moneyPlaces))
	}
	if delta.IsZero() {
		return next, nil
	}
	if err := tx.Model(&models.Account{}).Where("id = ?", acct.ID).
		Updates(map[string]interface{}{"balance": next, "updated_at": time.Now()}).Error; err != nil {
		return acct.Balance, err
	}
	acct.Balance = next
	return next, nil
}

func (s *LedgerStore) newEntry(acct *models.Account, amount decimal.Decimal, kind models.EntryKind, status models.EntryStatus, meta EntryMeta) *models.LedgerEntry {
	id := meta.EntryID
	if id == "" {
		id = uuid.NewString()
	}
	return &models.LedgerEntry{
		ID:             id,
		AccountID:      acct.ID,
		UserID:         acct.UserID,
		Amount:         Round2(amount),
		Kind:           kind,
		Status:         status,
		ExternalRef:    strPtr(meta.ExternalRef),
		IdempotencyKey: strPtr(meta.IdempotencyKey),
		MatchRef:       strPtr(meta.MatchRef),
		Description:    meta.Description,
		Metadata:       encodeMeta(meta.Extra),
	}
}

// ApplyEntry locks the account, applies amount and records a successful entry.
func (s *LedgerStore) ApplyEntry(ctx context.Context, userID string, amount decimal.Decimal, kind models.EntryKind, meta EntryMeta) (*models.LedgerEntry, error) {
	var out *models.LedgerEntry
	err := s.InTx(ctx, "apply_entry", func(tx *gorm.DB) error {
		acct, err := s.LockAccountTx(tx, userID)
		if err != nil {
			return err
		}
		out, err = s.ApplyEntryTx(tx, acct, amount, kind, meta)
		return err
	})
	return out, err
}

// ApplyEntryTx expects acct to be locked by tx. A debit that would take the
// balance below zero fails with ErrInsufficientFunds and writes nothing.
func (s *LedgerStore) ApplyEntryTx(tx *gorm.DB, acct *models.Account, amount decimal.Decimal, kind models.EntryKind, meta EntryMeta) (*models.LedgerEntry, error) {
	amount = Round2(amount)
	balance, err := s.setBalanceTx(tx, acct, amount)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	entry := s.newEntry(acct, amount, kind, models.StatusSuccess, meta)
	entry.BalanceAfter = decimal.NewNullDecimal(balance)
	entry.ResolvedAt = &now
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// CreatePendingEntry records an entry awaiting confirmation. With hold set
// the (negative) amount is debited now, as withdrawals do; otherwise the
// balance is untouched until the entry resolves.
func (s *LedgerStore) CreatePendingEntry(ctx context.Context, userID string, amount decimal.Decimal, kind models.EntryKind, meta EntryMeta, hold bool) (*models.LedgerEntry, error) {
	var out *models.LedgerEntry
	err := s.InTx(ctx, "create_pending_entry", func(tx *gorm.DB) error {
		acct, err := s.LockAccountTx(tx, userID)
		if err != nil {
			return err
		}
		out, err = s.CreatePendingEntryTx(tx, acct, amount, kind, meta, hold)
		return err
	})
	return out, err
}

func (s *LedgerStore) CreatePendingEntryTx(tx *gorm.DB, acct *models.Account, amount decimal.Decimal, kind models.EntryKind, meta EntryMeta, hold bool) (*models.LedgerEntry, error) {
	amount = Round2(amount)
	entry := s.newEntry(acct, amount, kind, models.StatusPending, meta)
	if hold {
		if !amount.IsNegative() {
			return nil, fmt.Errorf("%w: held amount must be a debit", ErrInvalidAmount)
		}
		balance, err := s.setBalanceTx(tx, acct, amount)
		if err != nil {
			return nil, err
		}
		entry.BalanceAfter = decimal.NewNullDecimal(balance)
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// ResolvePendingEntry moves a pending entry to success or rejected and
// applies the resolution's balance delta.
func (s *LedgerStore) ResolvePendingEntry(ctx context.Context, entryID string, res Resolution) (*models.LedgerEntry, error) {
	var out *models.LedgerEntry
	err := s.InTx(ctx, "resolve_pending_entry", func(tx *gorm.DB) error {
		var err error
		out, err = s.ResolvePendingEntryTx(tx, entryID, res)
		return err
	})
	return out, err
}

// ResolvePendingEntryTx locks the owning account before the entry itself.
func (s *LedgerStore) ResolvePendingEntryTx(tx *gorm.DB, entryID string, res Resolution) (*models.LedgerEntry, error) {
	if res.Status != models.StatusSuccess && res.Status != models.StatusRejected {
		return nil, fmt.Errorf("resolve %s: unsupported status %q", entryID, res.Status)
	}

	var peek models.LedgerEntry
	if err := tx.Select("id", "user_id").Where("id = ?", entryID).Take(&peek).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	acct, err := s.LockAccountTx(tx, peek.UserID)
	if err != nil {
		return nil, err
	}
	entry, err := s.lockEntryTx(tx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.StatusPending {
		return entry, fmt.Errorf("%w: entry %s is %s", ErrNotPending, entry.ID, entry.Status)
	}

	balance, err := s.setBalanceTx(tx, acct, Round2(res.Delta))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      res.Status,
		"resolved_at": now,
		"updated_at":  now,
	}
	if !res.Delta.IsZero() || !entry.BalanceAfter.Valid {
		updates["balance_after"] = decimal.NewNullDecimal(balance)
		entry.BalanceAfter = decimal.NewNullDecimal(balance)
	}
	if res.IdempotencyKey != "" {
		updates["idempotency_key"] = res.IdempotencyKey
		entry.IdempotencyKey = strPtr(res.IdempotencyKey)
	}
	if res.Note != "" {
		updates["description"] = truncate(joinNote(entry.Description, res.Note), 255)
		entry.Description = updates["description"].(string)
	}
	if err := tx.Model(&models.LedgerEntry{}).Where("id = ? AND status = ?", entry.ID, models.StatusPending).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	entry.Status = res.Status
	entry.ResolvedAt = &now
	return entry, nil
}

func joinNote(desc, note string) string {
	if desc == "" {
		return note
	}
	return desc + " | " + note
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *LedgerStore) Entry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.read(ctx, "entry", func(db *gorm.DB) error {
		return db.Where("id = ?", entryID).Take(&entry).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *LedgerStore) entryByExternalRefTx(tx *gorm.DB, ref string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := tx.Where("external_ref = ?", ref).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Entries returns a user's ledger history, newest first.
func (s *LedgerStore) Entries(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, int64, error) {
	var (
		entries []models.LedgerEntry
		total   int64
	)
	err := s.read(ctx, "entries", func(db *gorm.DB) error {
		q := db.Model(&models.LedgerEntry{}).Where("user_id = ?", userID).Session(&gorm.Session{})
		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error
	})
	return entries, total, err
}

// PendingEntries lists pending entries of one kind, oldest first.
func (s *LedgerStore) PendingEntries(ctx context.Context, kind models.EntryKind, olderThan time.Time, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.read(ctx, "pending_entries", func(db *gorm.DB) error {
		q := db.Where("kind = ? AND status = ?", kind, models.StatusPending)
		if !olderThan.IsZero() {
			q = q.Where("created_at < ?", olderThan)
		}
		return q.Order("created_at ASC").Limit(limit).Find(&entries).Error
	})
	return entries, err
}
