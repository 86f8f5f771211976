package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-ledger/models"
	"tournament-ledger/services"
	"tournament-ledger/utils"
)

// RemoteProfile matches one user in the profile service's change feed.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FirstName         *string   `json:"first_name,omitempty"`
	LastName          *string   `json:"last_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors profile changes into player_profiles and opens
// a wallet account for every user it sees.
type ProfileSyncWorker struct {
	db           *gorm.DB
	store        *services.LedgerStore
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, store *services.LedgerStore, baseURL, endpointPath, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		db:           db,
		store:        store,
		interval:     1 * time.Minute,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	utils.Info("[SYNC] 🔁 Starting profile sync worker (profile service → player_profiles, accounts)")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if err := w.SyncSince(ctx, time.Time{}); err != nil {
		utils.Warnf("[SYNC] ⚠️ Initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncSince(ctx, w.lastSyncTime()); err != nil {
				utils.Errorf("[SYNC] ❌ Sync batch failed: %v", err)
			}
		case <-ctx.Done():
			utils.Info("[SYNC] ⏹️ Profile sync worker stopped")
			return
		}
	}
}

func (w *ProfileSyncWorker) lastSyncTime() time.Time {
	var latest models.PlayerProfile
	if err := w.db.Order("updated_at DESC").Take(&latest).Error; err != nil {
		return time.Unix(0, 0)
	}
	return latest.UpdatedAt
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return out.Users, nil
}

// SyncSince pulls profile changes since the given time and applies them.
func (w *ProfileSyncWorker) SyncSince(ctx context.Context, since time.Time) error {
	users, err := w.fetch(ctx, since)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		utils.Debugf("[SYNC] No profile changes since %s", since.UTC().Format(time.RFC3339))
		return nil
	}
	upserted, failed := w.Apply(ctx, users)
	utils.Infof("[SYNC] ✅ Synced %d profile(s): %d upserted, %d errors", len(users), upserted, failed)
	return nil
}

// Apply upserts each profile and makes sure its wallet account exists.
func (w *ProfileSyncWorker) Apply(ctx context.Context, users []RemoteProfile) (upserted, failed int) {
	for _, u := range users {
		if u.ExternalID == "" {
			failed++
			continue
		}
		profile := models.PlayerProfile{
			ID:                uuid.NewString(),
			ExternalUserID:    u.ExternalID,
			Username:          u.Username,
			Email:             u.Email,
			ProfilePictureURL: u.ProfilePictureURL,
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			IsBanned:          u.AccountStatus == "banned" || u.AccountStatus == "suspended",
			CreatedAt:         u.CreatedAt,
			UpdatedAt:         u.UpdatedAt,
		}
		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "profile_picture_url", "first_name", "last_name", "is_banned", "updated_at",
			}),
		}).Create(&profile).Error; err != nil {
			failed++
			utils.Warnf("[SYNC] ⚠️ Failed to upsert profile external_id=%q: %v", u.ExternalID, err)
			continue
		}
		if _, err := w.store.EnsureAccount(ctx, u.ExternalID); err != nil {
			failed++
			utils.Warnf("[SYNC] ⚠️ Failed to open account for %q: %v", u.ExternalID, err)
			continue
		}
		upserted++
	}
	return upserted, failed
}
