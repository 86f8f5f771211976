package models

import "time"

// PlayerProfile is a local snapshot of user data, populated by the sync
// worker from the profile service. A profile arriving for the first time is
// what opens the user's wallet Account.
type PlayerProfile struct {
	ID                string  `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID    string  `gorm:"size:64;uniqueIndex;not null" json:"external_user_id"`
	Username          string  `gorm:"size:64;index;not null" json:"username"`
	Email             string  `gorm:"size:191" json:"email,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	FirstName         *string `gorm:"size:64" json:"first_name,omitempty"`
	LastName          *string `gorm:"size:64" json:"last_name,omitempty"`
	IsBanned          bool    `gorm:"default:false" json:"is_banned"` // blocks joins, not wallet reads

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
