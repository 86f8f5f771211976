package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tournament-ledger/models"
	"tournament-ledger/utils"
)

// WalletService implements the wallet operations. Each operation is one
// ledger transaction; notifications and audit records are handed to Effects
// only after that transaction has committed.
type WalletService struct {
	Store   *LedgerStore
	Gateway PaymentGateway
	Effects SideEffects
	Money   *MoneyFormatter
	Now     func() time.Time
}

func NewWalletService(store *LedgerStore, gateway PaymentGateway, effects SideEffects) *WalletService {
	if effects == nil {
		effects = NopSideEffects{}
	}
	return &WalletService{
		Store:   store,
		Gateway: gateway,
		Effects: effects,
		Money:   NewMoneyFormatter(store.Currency),
		Now:     time.Now,
	}
}

// Result is the outcome of a balance-affecting operation. A replayed result
// has the same shape as the original one; Balance is the balance recorded
// right after the entry was applied.
type Result struct {
	Entry    *models.LedgerEntry `json:"entry"`
	Balance  decimal.Decimal     `json:"balance"`
	Replayed bool                `json:"replayed"`
}

func resultOf(entry *models.LedgerEntry, replayed bool) *Result {
	r := &Result{Entry: entry, Replayed: replayed}
	if entry != nil && entry.BalanceAfter.Valid {
		r.Balance = entry.BalanceAfter.Decimal
	}
	return r
}

type TopupOrder struct {
	OrderID  string              `json:"order_id"`
	Amount   decimal.Decimal     `json:"amount"`
	Currency string              `json:"currency"`
	Entry    *models.LedgerEntry `json:"entry"`
}

// TopupConfirmation is what the client or the gateway webhook hands back
// after payment.
type TopupConfirmation struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	// UserID is the authenticated caller. Empty on the gateway webhook.
	UserID string `json:"-"`
}

// PrizeAward is one prize payout. IdempotencyKey overrides the derived
// PrizeKey(MatchID, Round, UserID).
type PrizeAward struct {
	MatchID        string          `json:"match_id"`
	Round          int             `json:"round"`
	UserID         string          `json:"user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

func (a PrizeAward) Key() string {
	if a.IdempotencyKey != "" {
		return a.IdempotencyKey
	}
	return PrizeKey(a.MatchID, a.Round, a.UserID)
}

type PrizeOutcome struct {
	UserID string    `json:"user_id"`
	Result *Result   `json:"result,omitempty"`
	Error  ErrorKind `json:"error,omitempty"`
}

type Adjustment struct {
	UserID         string          `json:"user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"` // signed: positive credits, negative debits
	Note           string          `json:"note" validate:"required,max=255"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

func (s *WalletService) notify(userID, kind, text string) {
	s.Effects.Notify(models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Text:      text,
		CreatedAt: s.Now(),
	})
}

func (s *WalletService) audit(actorID, action string, entry *models.LedgerEntry, note string) {
	rec := models.AdminAuditLog{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Note:      note,
		CreatedAt: s.Now(),
	}
	if entry != nil {
		rec.TargetUserID = entry.UserID
		rec.EntryID = entry.ID
		rec.Amount = entry.Amount
		if entry.MatchRef != nil {
			rec.MatchID = *entry.MatchRef
		}
	}
	s.Effects.Audit(rec)
}

// Balance returns the user's account.
func (s *WalletService) Balance(ctx context.Context, userID string) (*models.Account, error) {
	return s.Store.AccountByUser(ctx, userID)
}

// History returns one page (1-based) of the user's ledger, newest first.
func (s *WalletService) History(ctx context.Context, userID string, page, size int) ([]models.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	size = HistoryPageSize(size)
	return s.Store.Entries(ctx, userID, size, (page-1)*size)
}

// HistoryPageSize is the page size History actually uses for a requested size.
func HistoryPageSize(size int) int {
	if size < 1 || size > 100 {
		return 20
	}
	return size
}

func (s *WalletService) PendingWithdrawals(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.Store.PendingEntries(ctx, models.KindWithdrawal, time.Time{}, limit)
}

// CreateTopupOrder creates the gateway order first, then records a pending
// top-up entry keyed by the order id. No balance changes until confirmation.
func (s *WalletService) CreateTopupOrder(ctx context.Context, userID string, amount decimal.Decimal) (order *TopupOrder, err error) {
	defer func() { s.Store.Metrics.WalletOp("topup_order", err) }()

	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.Store.AccountByUser(ctx, userID); err != nil {
		return nil, err
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	gwOrder, err := s.Gateway.CreateOrder(ctx, amount, s.Store.Currency, receipt)
	if err != nil {
		utils.Errorf("[WALLET] ❌ Gateway order for user %s failed: %v", userID, err)
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	entry, err := s.Store.CreatePendingEntry(ctx, userID, amount, models.KindTopup, EntryMeta{
		Description: "Wallet top-up",
		ExternalRef: gwOrder.ID,
		Extra:       map[string]any{"receipt": receipt},
	}, false)
	if err != nil {
		return nil, err
	}

	utils.Infof("[WALLET] 🧾 Top-up order %s for user %s (%s)", gwOrder.ID, userID, amount.StringFixed(moneyPlaces))
	return &TopupOrder{OrderID: gwOrder.ID, Amount: entry.Amount, Currency: s.Store.Currency, Entry: entry}, nil
}

// ConfirmTopup verifies the gateway signature and credits the order's
// pending entry. Confirming an order that is already credited returns the
// original result.
//
// An invalid signature rejects the entry for good only when the caller is
// the order's owner. Anonymous callers and other users get
// ErrSignatureInvalid and the order stays pending, so nobody can cancel an
// order they do not own. An authenticated caller can only confirm their own
// orders; anyone else's look missing.
func (s *WalletService) ConfirmTopup(ctx context.Context, in TopupConfirmation) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("topup_confirm", err) }()

	if !s.Gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		utils.Warnf("[WALLET] 🚫 Invalid signature for order %s (payment %s, caller %q)", in.OrderID, in.PaymentID, in.UserID)
		if in.UserID != "" {
			s.rejectTopup(ctx, in.OrderID, in.UserID, "signature invalid")
		}
		return nil, ErrSignatureInvalid
	}
	return s.creditTopup(ctx, in.OrderID, in.PaymentID, in.UserID, nil)
}

// SettleTopup credits an order from a payment fetched directly from the
// gateway API. The captured amount must match the order.
func (s *WalletService) SettleTopup(ctx context.Context, p CapturedPayment) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("topup_settle", err) }()
	return s.creditTopup(ctx, p.OrderID, p.PaymentID, "", &p.Amount)
}

// creditTopup resolves the order's pending entry. A non-empty owner must
// match the order's user.
func (s *WalletService) creditTopup(ctx context.Context, orderID, paymentID, owner string, captured *decimal.Decimal) (*Result, error) {
	var (
		entry    *models.LedgerEntry
		replayed bool
	)
	err := s.Store.InTx(ctx, "topup_confirm", func(tx *gorm.DB) error {
		entry, replayed = nil, false

		pending, err := s.Store.entryByExternalRefTx(tx, orderID)
		if err != nil {
			return err
		}
		if pending.Kind != models.KindTopup {
			return fmt.Errorf("%w: order %s is not a top-up", ErrEntryNotFound, orderID)
		}
		if owner != "" && pending.UserID != owner {
			return fmt.Errorf("%w: order %s", ErrEntryNotFound, orderID)
		}
		if pending.Status == models.StatusSuccess {
			entry, replayed = pending, true
			return nil
		}
		if captured != nil && !captured.Equal(pending.Amount) {
			return fmt.Errorf("%w: captured %s for order of %s", ErrInvalidAmount,
				captured.StringFixed(moneyPlaces), pending.Amount.StringFixed(moneyPlaces))
		}

		existingID, reserved, err := Reserve(tx, TopupKey(orderID), pending.ID)
		if err != nil {
			return err
		}
		if !reserved {
			var prior models.LedgerEntry
			if err := tx.Where("id = ?", existingID).Take(&prior).Error; err != nil {
				return err
			}
			entry, replayed = &prior, true
			return nil
		}

		entry, err = s.Store.ResolvePendingEntryTx(tx, pending.ID, Resolution{
			Status:         models.StatusSuccess,
			Delta:          pending.Amount,
			Note:           "payment " + paymentID,
			IdempotencyKey: TopupKey(orderID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		s.Store.Metrics.Replay("topup_confirm")
		utils.Infof("[WALLET] ♻️ Order %s already credited, replaying entry %s", orderID, entry.ID)
		return resultOf(entry, true), nil
	}
	utils.Infof("[WALLET] ✅ Credited top-up %s to user %s", orderID, entry.UserID)
	s.notify(entry.UserID, NotifyTopupCredited, fmt.Sprintf("%s was added to your wallet.", s.Money.Format(entry.Amount)))
	return resultOf(entry, false), nil
}

// rejectTopup marks a still-pending order of owner rejected. Failures are
// logged only: the caller already has its answer.
func (s *WalletService) rejectTopup(ctx context.Context, orderID, owner, reason string) {
	if orderID == "" {
		return
	}
	var rejected *models.LedgerEntry
	err := s.Store.InTx(ctx, "topup_reject", func(tx *gorm.DB) error {
		rejected = nil
		pending, err := s.Store.entryByExternalRefTx(tx, orderID)
		if err != nil {
			return err
		}
		if pending.Kind != models.KindTopup || pending.Status != models.StatusPending || pending.UserID != owner {
			return nil
		}
		rejected, err = s.Store.ResolvePendingEntryTx(tx, pending.ID, Resolution{
			Status: models.StatusRejected,
			Note:   reason,
		})
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotPending) {
			utils.Errorf("[WALLET] ❌ Could not reject order %s: %v", orderID, err)
		}
		return
	}
	if rejected != nil {
		s.notify(rejected.UserID, NotifyTopupRejected, "Your top-up could not be verified and was cancelled.")
	}
}

// ExpireStaleTopups rejects top-up orders that stayed pending since before
// olderThan. It returns how many were rejected.
func (s *WalletService) ExpireStaleTopups(ctx context.Context, olderThan time.Time) (int, error) {
	stale, err := s.Store.PendingEntries(ctx, models.KindTopup, olderThan, 200)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, e := range stale {
		_, err := s.Store.ResolvePendingEntry(ctx, e.ID, Resolution{Status: models.StatusRejected, Note: "order expired"})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrNotPending):
			// confirmed meanwhile
		default:
			utils.Warnf("[WALLET] ⚠️ Could not expire top-up %s: %v", e.ID, err)
		}
	}
	if expired > 0 {
		utils.Infof("[WALLET] ⌛ Expired %d stale top-up order(s)", expired)
	}
	return expired, nil
}

// RequestWithdrawal debits amount immediately and records a pending
// withdrawal. The funds stay held until an admin approves or rejects it.
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, payoutDetails map[string]any) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("withdrawal_request", err) }()

	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	entry, err := s.Store.CreatePendingEntry(ctx, userID, amount.Neg(), models.KindWithdrawal, EntryMeta{
		Description: "Withdrawal request",
		Extra:       payoutDetails,
	}, true)
	if err != nil {
		return nil, err
	}

	utils.Infof("[WALLET] 🏦 Withdrawal %s requested by %s (%s held)", entry.ID, userID, amount.StringFixed(moneyPlaces))
	s.notify(userID, NotifyWithdrawalHeld, fmt.Sprintf("Your withdrawal of %s is being processed.", s.Money.Format(amount)))
	return resultOf(entry, false), nil
}

func (s *WalletService) withdrawalEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	entry, err := s.Store.Entry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Kind != models.KindWithdrawal {
		return nil, fmt.Errorf("%w: %s is not a withdrawal", ErrEntryNotFound, entryID)
	}
	return entry, nil
}

// ApproveWithdrawal finalises a pending withdrawal. The funds were already
// taken at request time, so the balance does not change.
func (s *WalletService) ApproveWithdrawal(ctx context.Context, actorID, entryID, note string) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("withdrawal_approve", err) }()

	if _, err := s.withdrawalEntry(ctx, entryID); err != nil {
		return nil, err
	}
	entry, err := s.Store.ResolvePendingEntry(ctx, entryID, Resolution{
		Status: models.StatusSuccess,
		Note:   note,
	})
	if err != nil {
		return nil, err
	}

	utils.Infof("[WALLET] ✅ Withdrawal %s approved by %s", entryID, actorID)
	s.audit(actorID, "withdrawal_approve", entry, note)
	s.notify(entry.UserID, NotifyWithdrawalPaid, fmt.Sprintf("Your withdrawal of %s was approved.", s.Money.Format(entry.Amount)))
	return resultOf(entry, false), nil
}

// RejectWithdrawal refunds the held amount and marks the withdrawal rejected.
func (s *WalletService) RejectWithdrawal(ctx context.Context, actorID, entryID, reason string) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("withdrawal_reject", err) }()

	held, err := s.withdrawalEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Store.ResolvePendingEntry(ctx, entryID, Resolution{
		Status: models.StatusRejected,
		Delta:  held.Amount.Abs(),
		Note:   reason,
	})
	if err != nil {
		return nil, err
	}

	utils.Infof("[WALLET] ↩️ Withdrawal %s rejected by %s, %s refunded", entryID, actorID, held.Amount.Abs().StringFixed(moneyPlaces))
	s.audit(actorID, "withdrawal_reject", entry, reason)
	s.notify(entry.UserID, NotifyWithdrawalBack, fmt.Sprintf("Your withdrawal of %s was declined and refunded.", s.Money.Format(entry.Amount)))
	return resultOf(entry, false), nil
}

// PayPrize credits one prize at most once per award key. Paying the same key
// again returns the first payout's result with Replayed set.
func (s *WalletService) PayPrize(ctx context.Context, actorID string, award PrizeAward) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("prize", err) }()

	if err := ValidateAmount(award.Amount); err != nil {
		return nil, err
	}
	key := award.Key()

	var (
		entry    *models.LedgerEntry
		replayed bool
	)
	err = s.Store.InTx(ctx, "prize", func(tx *gorm.DB) error {
		var err error
		entry, replayed, err = s.Store.ApplyOnceTx(tx, key, award.UserID, award.Amount, models.KindPrize, EntryMeta{
			Description: fmt.Sprintf("Prize for round %d", award.Round),
			MatchRef:    award.MatchID,
			Extra:       map[string]any{"round": award.Round, "awarded_by": actorID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		s.Store.Metrics.Replay("prize")
		utils.Infof("[WALLET] ♻️ Prize %s already paid as entry %s", key, entry.ID)
		return resultOf(entry, true), nil
	}
	utils.Infof("[WALLET] 🏆 Paid prize %s to %s (%s)", key, award.UserID, award.Amount.StringFixed(moneyPlaces))
	if actorID != "" {
		s.audit(actorID, "prize_payout", entry, key)
	}
	s.notify(award.UserID, NotifyPrize, fmt.Sprintf("You won %s!", s.Money.Format(award.Amount)))
	return resultOf(entry, false), nil
}

// DistributePrizes pays each award of one match round in its own
// transaction, so one failing award does not hold back the others.
func (s *WalletService) DistributePrizes(ctx context.Context, actorID, matchID string, round int, awards []PrizeAward) ([]PrizeOutcome, error) {
	var count int64
	if err := s.Store.read(ctx, "match_exists", func(db *gorm.DB) error {
		return db.Model(&models.Match{}).Where("id = ?", matchID).Count(&count).Error
	}); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrMatchNotFound
	}

	out := make([]PrizeOutcome, 0, len(awards))
	for _, a := range awards {
		a.MatchID = matchID
		a.Round = round
		res, err := s.PayPrize(ctx, actorID, a)
		o := PrizeOutcome{UserID: a.UserID, Result: res}
		if err != nil {
			o.Error = KindOf(err)
			utils.Warnf("[WALLET] ⚠️ Prize for %s in match %s round %d failed: %v", a.UserID, matchID, round, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// AdjustBalance applies a manual admin credit (positive) or debit (negative).
func (s *WalletService) AdjustBalance(ctx context.Context, actorID string, adj Adjustment) (res *Result, err error) {
	defer func() { s.Store.Metrics.WalletOp("manual_adjustment", err) }()

	if err := ValidateSignedAmount(adj.Amount); err != nil {
		return nil, err
	}

	var (
		entry    *models.LedgerEntry
		replayed bool
	)
	err = s.Store.InTx(ctx, "manual_adjustment", func(tx *gorm.DB) error {
		var err error
		entry, replayed, err = s.Store.ApplyOnceTx(tx, adj.IdempotencyKey, adj.UserID, adj.Amount, models.KindManualAdjustment, EntryMeta{
			Description: truncate(adj.Note, 255),
			Extra:       map[string]any{"actor_id": actorID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		s.Store.Metrics.Replay("manual_adjustment")
		return resultOf(entry, true), nil
	}

	action := "wallet_credit"
	verb := "credited to"
	if adj.Amount.IsNegative() {
		action = "wallet_debit"
		verb = "debited from"
	}
	utils.Infof("[WALLET] 🛠️ %s by %s: %s %s user %s", action, actorID, adj.Amount.StringFixed(moneyPlaces), verb, adj.UserID)
	s.audit(actorID, action, entry, adj.Note)
	s.notify(adj.UserID, NotifyAdjustment, fmt.Sprintf("%s was %s your wallet.", s.Money.Format(adj.Amount), verb))
	return resultOf(entry, false), nil
}
