package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tournament-ledger/models"
	"tournament-ledger/utils"
)

type MatchService struct {
	Store   *LedgerStore
	Effects SideEffects
	Money   *MoneyFormatter
}

func NewMatchService(store *LedgerStore, effects SideEffects) *MatchService {
	if effects == nil {
		effects = NopSideEffects{}
	}
	return &MatchService{Store: store, Effects: effects, Money: NewMoneyFormatter(store.Currency)}
}

type CreateMatchInput struct {
	Title     string          `json:"title" validate:"required,max=160"`
	Game      string          `json:"game" validate:"max=64"`
	Mode      string          `json:"mode" validate:"omitempty,oneof=solo duo squad"`
	TeamSize  int             `json:"team_size" validate:"omitempty,min=1,max=10"`
	EntryFee  decimal.Decimal `json:"entry_fee"`
	PrizePool decimal.Decimal `json:"prize_pool"`
	Slots     int             `json:"slots" validate:"required,min=1,max=10000"`
	StartsAt  *time.Time      `json:"starts_at,omitempty"`
}

type DeleteSummary struct {
	MatchID      string          `json:"match_id"`
	Participants int             `json:"participants"`
	Refunded     int             `json:"refunded"`
	RefundTotal  decimal.Decimal `json:"refund_total"`
}

var defaultTeamSize = map[string]int{
	models.ModeSolo:  1,
	models.ModeDuo:   2,
	models.ModeSquad: 4,
}

func (s *MatchService) CreateMatch(ctx context.Context, actorID string, in CreateMatchInput) (*models.Match, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Mode == "" {
		in.Mode = models.ModeSolo
	}
	size, ok := defaultTeamSize[in.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, in.Mode)
	}
	if in.TeamSize == 0 || in.Mode == models.ModeSolo {
		in.TeamSize = size
	}
	if in.Slots < 1 || in.Slots%in.TeamSize != 0 {
		return nil, fmt.Errorf("%w: slots must be a positive multiple of team size %d", ErrInvalidInput, in.TeamSize)
	}
	if !in.EntryFee.IsZero() {
		if err := ValidateAmount(in.EntryFee); err != nil {
			return nil, err
		}
	}
	if !in.PrizePool.IsZero() {
		if err := ValidateAmount(in.PrizePool); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	m := &models.Match{
		ID:        id,
		Title:     in.Title,
		Slug:      slug.Make(in.Title) + "-" + id[:8],
		Game:      in.Game,
		Mode:      in.Mode,
		TeamSize:  in.TeamSize,
		EntryFee:  Round2(in.EntryFee),
		PrizePool: Round2(in.PrizePool),
		Slots:     in.Slots,
		StartsAt:  in.StartsAt,
		CreatedBy: actorID,
	}
	if err := s.Store.DB.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	m.AvailableSlots = m.Slots

	utils.Infof("[MATCH] 🆕 %s created match %s (%s, %d slots, fee %s)", actorID, m.ID, m.Mode, m.Slots, m.EntryFee.StringFixed(moneyPlaces))
	s.Effects.Audit(models.AdminAuditLog{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    "match_create",
		MatchID:   m.ID,
		Amount:    m.EntryFee,
		Note:      m.Title,
		CreatedAt: time.Now(),
	})
	return m, nil
}

func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	err := s.Store.read(ctx, "get_match", func(db *gorm.DB) error {
		return db.Where("id = ?", matchID).Take(&m).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	m.AvailableSlots = m.Slots - m.JoinedCount
	return &m, nil
}

// ListMatches returns matches by start time; openOnly hides locked ones.
func (s *MatchService) ListMatches(ctx context.Context, openOnly bool, limit int) ([]models.Match, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var matches []models.Match
	err := s.Store.read(ctx, "list_matches", func(db *gorm.DB) error {
		q := db.Order("starts_at ASC").Limit(limit)
		if openOnly {
			q = q.Where("is_locked = ?", false)
		}
		return q.Find(&matches).Error
	})
	for i := range matches {
		matches[i].AvailableSlots = matches[i].Slots - matches[i].JoinedCount
	}
	return matches, err
}

func (s *MatchService) ListParticipants(ctx context.Context, matchID string) ([]models.Participation, error) {
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	var ps []models.Participation
	err := s.Store.read(ctx, "list_participants", func(db *gorm.DB) error {
		return db.Where("match_id = ?", matchID).Order("created_at ASC").Find(&ps).Error
	})
	return ps, err
}

func (s *MatchService) Teams(ctx context.Context, matchID string) ([]models.TeamGroup, error) {
	var teams []models.TeamGroup
	err := s.Store.read(ctx, "list_teams", func(db *gorm.DB) error {
		return db.Where("match_id = ?", matchID).Order("team_side ASC").Find(&teams).Error
	})
	return teams, err
}

func (s *MatchService) LockMatch(ctx context.Context, actorID, matchID string) (*models.Match, error) {
	return s.setLocked(ctx, actorID, matchID, true)
}

func (s *MatchService) UnlockMatch(ctx context.Context, actorID, matchID string) (*models.Match, error) {
	return s.setLocked(ctx, actorID, matchID, false)
}

func (s *MatchService) setLocked(ctx context.Context, actorID, matchID string, locked bool) (*models.Match, error) {
	var m *models.Match
	err := s.Store.InTx(ctx, "match_set_locked", func(tx *gorm.DB) error {
		var err error
		if m, err = lockMatchTx(tx, matchID); err != nil {
			return err
		}
		m.IsLocked = locked
		return tx.Model(&models.Match{}).Where("id = ?", matchID).
			Updates(map[string]interface{}{"is_locked": locked, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	action := "match_unlock"
	if locked {
		action = "match_lock"
	}
	utils.Infof("[MATCH] 🔒 %s by %s on %s", action, actorID, matchID)
	s.Effects.Audit(models.AdminAuditLog{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		MatchID:   matchID,
		CreatedAt: time.Now(),
	})
	m.AvailableSlots = m.Slots - m.JoinedCount
	return m, nil
}

// LockDueMatches locks every open match whose start time has passed.
func (s *MatchService) LockDueMatches(ctx context.Context, now time.Time) (int64, error) {
	res := s.Store.DB.WithContext(ctx).Model(&models.Match{}).
		Where("is_locked = ? AND starts_at IS NOT NULL AND starts_at <= ?", false, now).
		Updates(map[string]interface{}{"is_locked": true, "updated_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		utils.Infof("[MATCH] ⏰ Auto-locked %d match(es) past start time", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// DeleteMatch removes a match with its participations and team groups.
// The match is locked first, in its own commit, so no join can slip in
// between. With refund set every participant's entry fee is credited back,
// keyed per (match, user), in the same transaction as the deletion. Ledger
// entries are never deleted. If the deletion fails, a match that was open
// before the call is unlocked again.
func (s *MatchService) DeleteMatch(ctx context.Context, actorID, matchID string, refund bool) (*DeleteSummary, error) {
	before, err := s.setLockedQuiet(ctx, matchID)
	if err != nil {
		return nil, err
	}

	summary := &DeleteSummary{MatchID: matchID}
	var refunds []*models.LedgerEntry
	err = s.Store.InTx(ctx, "match_delete", func(tx *gorm.DB) error {
		*summary = DeleteSummary{MatchID: matchID, RefundTotal: decimal.Zero}
		refunds = nil

		var ps []models.Participation
		if err := tx.Where("match_id = ?", matchID).Order("user_id ASC").Find(&ps).Error; err != nil {
			return err
		}
		summary.Participants = len(ps)

		if refund {
			for _, p := range ps {
				var paid models.LedgerEntry
				if err := tx.Where("id = ?", p.LedgerEntryID).Take(&paid).Error; err != nil {
					return fmt.Errorf("entry fee entry of %s: %w", p.UserID, err)
				}
				fee := paid.Amount.Abs()
				if !fee.IsPositive() {
					continue
				}
				entry, replayed, err := s.Store.ApplyOnceTx(tx, RefundKey(matchID, p.UserID), p.UserID, fee,
					models.KindManualAdjustment, EntryMeta{
						Description: "Refund: match removed",
						MatchRef:    matchID,
						Extra:       map[string]any{"actor_id": actorID, "refund_of": paid.ID},
					})
				if err != nil {
					return err
				}
				if !replayed {
					refunds = append(refunds, entry)
					summary.Refunded++
					summary.RefundTotal = summary.RefundTotal.Add(fee)
				}
			}
		}

		if _, err := lockMatchTx(tx, matchID); err != nil {
			return err
		}
		if err := tx.Where("match_id = ?", matchID).Delete(&models.Participation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("match_id = ?", matchID).Delete(&models.TeamGroup{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", matchID).Delete(&models.Match{}).Error
	})
	if err != nil {
		utils.Errorf("[MATCH] ❌ Delete of %s failed: %v", matchID, err)
		if !before.IsLocked {
			s.restoreUnlocked(ctx, matchID)
		}
		return nil, err
	}

	utils.Infof("[MATCH] 🗑️ %s deleted match %s (%d participants, %d refunded)", actorID, matchID, summary.Participants, summary.Refunded)
	s.Effects.Audit(models.AdminAuditLog{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    "match_delete",
		MatchID:   matchID,
		Amount:    summary.RefundTotal,
		Note:      fmt.Sprintf("participants=%d refunded=%d", summary.Participants, summary.Refunded),
		CreatedAt: time.Now(),
	})
	for _, e := range refunds {
		s.Effects.Notify(models.Notification{
			ID:        uuid.NewString(),
			UserID:    e.UserID,
			Kind:      NotifyMatchRefund,
			Text:      fmt.Sprintf("A match you joined was cancelled. %s was refunded.", s.Money.Format(e.Amount)),
			CreatedAt: time.Now(),
		})
	}
	return summary, nil
}

// restoreUnlocked reopens a match after a failed delete. It runs even when
// ctx is already done, since ctx may be what failed the delete.
func (s *MatchService) restoreUnlocked(ctx context.Context, matchID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.Store.InTx(ctx, "match_delete_unlock", func(tx *gorm.DB) error {
		return tx.Model(&models.Match{}).Where("id = ?", matchID).
			Updates(map[string]interface{}{"is_locked": false, "updated_at": time.Now()}).Error
	})
	if err != nil {
		utils.Errorf("[MATCH] ❌ Match %s stays locked after failed delete: %v", matchID, err)
		return
	}
	utils.Warnf("[MATCH] 🔓 Match %s reopened after failed delete", matchID)
}

func (s *MatchService) setLockedQuiet(ctx context.Context, matchID string) (*models.Match, error) {
	var m *models.Match
	err := s.Store.InTx(ctx, "match_delete_lock", func(tx *gorm.DB) error {
		var err error
		if m, err = lockMatchTx(tx, matchID); err != nil {
			return err
		}
		if m.IsLocked {
			return nil
		}
		return tx.Model(&models.Match{}).Where("id = ?", matchID).
			Updates(map[string]interface{}{"is_locked": true, "updated_at": time.Now()}).Error
	})
	return m, err
}
