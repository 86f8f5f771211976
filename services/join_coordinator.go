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

// JoinCoordinator joins users to matches. A join debits the entry fee,
// creates the participation and bumps the match's joined count in one
// transaction; a failure at any step leaves none of them behind.
type JoinCoordinator struct {
	Store   *LedgerStore
	Effects SideEffects
	Money   *MoneyFormatter
}

func NewJoinCoordinator(store *LedgerStore, effects SideEffects) *JoinCoordinator {
	if effects == nil {
		effects = NopSideEffects{}
	}
	return &JoinCoordinator{Store: store, Effects: effects, Money: NewMoneyFormatter(store.Currency)}
}

type JoinRequest struct {
	UserID   string `json:"-"`
	MatchID  string `json:"-"`
	TeamSide *int   `json:"team_side,omitempty"`
	SlotNo   *int   `json:"slot_no,omitempty"`
	TeamName string `json:"team_name,omitempty" validate:"omitempty,max=64"`
}

type JoinResult struct {
	Participation *models.Participation `json:"participation"`
	Entry         *models.LedgerEntry   `json:"entry"`
	Balance       decimal.Decimal       `json:"balance"`
	Team          *models.TeamGroup     `json:"team,omitempty"`
	JoinedCount   int                   `json:"joined_count"`
	Slots         int                   `json:"slots"`
}

func (j *JoinCoordinator) loadMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	err := j.Store.read(ctx, "load_match", func(db *gorm.DB) error {
		return db.Where("id = ?", matchID).Take(&m).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (j *JoinCoordinator) checkBanned(ctx context.Context, userID string) error {
	var banned int64
	err := j.Store.read(ctx, "profile_ban", func(db *gorm.DB) error {
		return db.Model(&models.PlayerProfile{}).
			Where("external_user_id = ? AND is_banned = ?", userID, true).
			Count(&banned).Error
	})
	if err != nil {
		return err
	}
	if banned > 0 {
		return ErrPlayerBanned
	}
	return nil
}

// validateCell checks the requested (team side, slot) against the match
// format. Team sides are numbered 1..Slots/TeamSize, slots 1..TeamSize.
func validateCell(m *models.Match, req *JoinRequest) error {
	if !m.IsTeamMode() {
		req.TeamSide, req.SlotNo = nil, nil
		return nil
	}
	if req.TeamSide == nil || req.SlotNo == nil {
		return fmt.Errorf("%w: %s match needs team_side and slot_no", ErrInvalidSlot, m.Mode)
	}
	teams := m.Slots / m.TeamSize
	if *req.TeamSide < 1 || *req.TeamSide > teams {
		return fmt.Errorf("%w: team_side must be 1..%d", ErrInvalidSlot, teams)
	}
	if *req.SlotNo < 1 || *req.SlotNo > m.TeamSize {
		return fmt.Errorf("%w: slot_no must be 1..%d", ErrInvalidSlot, m.TeamSize)
	}
	return nil
}

func lockMatchTx(tx *gorm.DB, matchID string) (*models.Match, error) {
	var m models.Match
	if err := forUpdate(tx).Where("id = ?", matchID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Join runs NotJoined -> Joining -> Joined for (user, match). Joining only
// exists inside the transaction. Checks run in this order: match exists and
// is open, account lock, duplicate join, match lock and capacity, team cell,
// funds.
func (j *JoinCoordinator) Join(ctx context.Context, req JoinRequest) (res *JoinResult, err error) {
	defer func() { j.Store.Metrics.Join(err) }()

	match, err := j.loadMatch(ctx, req.MatchID)
	if err != nil {
		return nil, err
	}
	if match.IsLocked {
		return nil, ErrMatchLocked
	}
	if err := validateCell(match, &req); err != nil {
		return nil, err
	}
	if err := j.checkBanned(ctx, req.UserID); err != nil {
		return nil, err
	}

	err = j.Store.InTx(ctx, "join", func(tx *gorm.DB) error {
		res = nil

		acct, err := j.Store.LockAccountTx(tx, req.UserID)
		if err != nil {
			return err
		}

		var joined int64
		if err := tx.Model(&models.Participation{}).
			Where("user_id = ? AND match_id = ?", req.UserID, req.MatchID).
			Count(&joined).Error; err != nil {
			return err
		}
		if joined > 0 {
			return ErrAlreadyJoined
		}

		m, err := lockMatchTx(tx, req.MatchID)
		if err != nil {
			return err
		}
		if m.IsLocked {
			return ErrMatchLocked
		}
		if m.JoinedCount >= m.Slots {
			return ErrMatchFull
		}

		if req.TeamSide != nil {
			var taken int64
			if err := tx.Model(&models.Participation{}).
				Where("match_id = ? AND team_side = ? AND slot_no = ?", m.ID, *req.TeamSide, *req.SlotNo).
				Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return fmt.Errorf("%w: team %d slot %d", ErrSlotTaken, *req.TeamSide, *req.SlotNo)
			}
		}

		entry, err := j.Store.ApplyEntryTx(tx, acct, m.EntryFee.Neg(), models.KindMatchEntry, EntryMeta{
			Description: truncate("Entry fee: "+m.Title, 255),
			MatchRef:    m.ID,
		})
		if err != nil {
			return err
		}

		p := &models.Participation{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			MatchID:       m.ID,
			LedgerEntryID: entry.ID,
			TeamSide:      req.TeamSide,
			SlotNo:        req.SlotNo,
		}
		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if req.TeamSide != nil {
					return ErrSlotTaken
				}
				return ErrAlreadyJoined
			}
			return err
		}

		var team *models.TeamGroup
		if req.TeamSide != nil {
			if team, err = ensureTeamTx(tx, m.ID, *req.TeamSide, req.UserID, req.TeamName); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Match{}).Where("id = ?", m.ID).
			Updates(map[string]interface{}{"joined_count": m.JoinedCount + 1, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		res = &JoinResult{
			Participation: p,
			Entry:         entry,
			Balance:       acct.Balance,
			Team:          team,
			JoinedCount:   m.JoinedCount + 1,
			Slots:         m.Slots,
		}
		return nil
	})
	if err != nil {
		if IsBusinessError(err) {
			utils.Infof("[JOIN] ⛔ user %s match %s: %v", req.UserID, req.MatchID, err)
		} else {
			utils.Errorf("[JOIN] ❌ user %s match %s: %v", req.UserID, req.MatchID, err)
		}
		return nil, err
	}

	utils.Infof("[JOIN] ✅ user %s joined match %s (%d/%d)", req.UserID, req.MatchID, res.JoinedCount, res.Slots)
	text := fmt.Sprintf("You joined %s.", match.Title)
	if match.EntryFee.IsPositive() {
		text = fmt.Sprintf("You joined %s. Entry fee %s paid.", match.Title, j.Money.Format(match.EntryFee))
	}
	j.Effects.Notify(models.Notification{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Kind:      NotifyMatchJoined,
		Text:      text,
		CreatedAt: time.Now(),
	})
	return res, nil
}

// ensureTeamTx returns the team group for (match, side), creating it with
// userID as leader if this is the side's first member. The caller holds the
// match row lock.
func ensureTeamTx(tx *gorm.DB, matchID string, side int, userID, name string) (*models.TeamGroup, error) {
	var team models.TeamGroup
	err := tx.Where("match_id = ? AND team_side = ?", matchID, side).Take(&team).Error
	if err == nil {
		return &team, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Team %d", side)
	}
	team = models.TeamGroup{
		ID:           uuid.NewString(),
		MatchID:      matchID,
		TeamSide:     side,
		Name:         name,
		Slug:         slug.Make(name),
		LeaderUserID: userID,
	}
	if err := tx.Create(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// RenameTeam lets a team's leader rename it while the match is open.
func (j *JoinCoordinator) RenameTeam(ctx context.Context, userID, matchID string, side int, name string) (*models.TeamGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, fmt.Errorf("%w: team name must be 1-64 characters", ErrInvalidInput)
	}

	var team models.TeamGroup
	err := j.Store.InTx(ctx, "rename_team", func(tx *gorm.DB) error {
		m, err := lockMatchTx(tx, matchID)
		if err != nil {
			return err
		}
		if m.IsLocked {
			return ErrMatchLocked
		}
		if err := forUpdate(tx).Where("match_id = ? AND team_side = ?", matchID, side).Take(&team).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return wrapNotFound("team")
			}
			return err
		}
		if team.LeaderUserID != userID {
			return ErrNotTeamLeader
		}
		team.Name = name
		team.Slug = slug.Make(name)
		return tx.Model(&models.TeamGroup{}).Where("id = ?", team.ID).
			Updates(map[string]interface{}{"name": team.Name, "slug": team.Slug, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	utils.Infof("[JOIN] ✏️ team %d of match %s renamed to %q by %s", side, matchID, name, userID)
	return &team, nil
}
