package models

// Participation is a user's entry into one match. TeamSide and SlotNo are set
// only for team formats; the composite unique index stops two users claiming
// the same cell.
type Participation struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	UserID        string `gorm:"size:64;not null;uniqueIndex:idx_participation_user_match" json:"user_id"`
	MatchID       string `gorm:"size:36;not null;uniqueIndex:idx_participation_user_match;uniqueIndex:idx_participation_slot" json:"match_id"`
	LedgerEntryID string `gorm:"size:36;not null" json:"ledger_entry_id"`
	TeamSide      *int   `gorm:"uniqueIndex:idx_participation_slot" json:"team_side,omitempty"`
	SlotNo        *int   `gorm:"uniqueIndex:idx_participation_slot" json:"slot_no,omitempty"`
	Score         int64  `gorm:"default:0" json:"score"`
	Rank          int    `gorm:"default:0" json:"rank"` // 0 = not ranked

	Timestamps
}

// TeamGroup is one side of a team-format match. The first member to join a
// side becomes its leader.
type TeamGroup struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	MatchID      string `gorm:"size:36;not null;uniqueIndex:idx_team_match_side" json:"match_id"`
	TeamSide     int    `gorm:"not null;uniqueIndex:idx_team_match_side" json:"team_side"`
	Name         string `gorm:"size:64" json:"name"`
	Slug         string `gorm:"size:80" json:"slug"`
	LeaderUserID string `gorm:"size:64;not null" json:"leader_user_id"`

	Timestamps
}
