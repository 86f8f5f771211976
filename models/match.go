package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ModeSolo  = "solo"
	ModeDuo   = "duo"
	ModeSquad = "squad"
)

// Match is one joinable tournament instance. JoinedCount is the capacity
// counter; it is only changed while the row is locked, in the same
// transaction that inserts or deletes a Participation.
type Match struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Title       string          `gorm:"size:160;not null" json:"title"`
	Slug        string          `gorm:"size:191;uniqueIndex" json:"slug"`
	Game        string          `gorm:"size:64;index" json:"game"`
	Mode        string          `gorm:"size:16;not null;default:'solo'" json:"mode"` // solo | duo | squad
	TeamSize    int             `gorm:"not null;default:1" json:"team_size"`
	EntryFee    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"entry_fee"`
	PrizePool   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"prize_pool"`
	Slots       int             `gorm:"not null" json:"slots"`
	JoinedCount int             `gorm:"not null;default:0" json:"joined_count"`
	IsLocked    bool            `gorm:"not null;default:false" json:"is_locked"`
	StartsAt    *time.Time      `gorm:"index" json:"starts_at,omitempty"`
	CreatedBy   string          `gorm:"size:64" json:"created_by,omitempty"`

	Timestamps

	AvailableSlots int `gorm:"-" json:"available_slots"`
}

// IsTeamMode reports whether joins must claim a (team side, slot) cell.
func (m *Match) IsTeamMode() bool {
	return m.Mode != ModeSolo && m.TeamSize > 1
}
