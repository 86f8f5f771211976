package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tournament-ledger/models"
	"tournament-ledger/services"
	"tournament-ledger/testutil"
)

func TestProfileSyncApplyOpensAccounts(t *testing.T) {
	db := testutil.NewDB(t)
	store := services.NewLedgerStore(db, nil, "INR")
	w := NewProfileSyncWorker(db, store, "http://unused", "/profiles", "token")
	ctx := context.Background()

	users := []RemoteProfile{
		{ExternalID: "u-1", Username: "ace", AccountStatus: "active", UpdatedAt: time.Now()},
		{ExternalID: "u-2", Username: "cheater", AccountStatus: "banned", UpdatedAt: time.Now()},
		{ExternalID: "", Username: "broken"},
	}
	upserted, failed := w.Apply(ctx, users)
	if upserted != 2 || failed != 1 {
		t.Fatalf("upserted=%d failed=%d", upserted, failed)
	}

	var banned models.PlayerProfile
	if err := db.Where("external_user_id = ?", "u-2").Take(&banned).Error; err != nil || !banned.IsBanned {
		t.Fatalf("banned profile: %+v %v", banned, err)
	}
	for _, u := range []string{"u-1", "u-2"} {
		if _, err := store.AccountByUser(ctx, u); err != nil {
			t.Fatalf("account for %s: %v", u, err)
		}
	}

	// a second sync updates the profile in place and keeps the account
	users[0].Username = "ace2"
	if upserted, _ := w.Apply(ctx, users[:1]); upserted != 1 {
		t.Fatal("resync failed")
	}
	var n int64
	db.Model(&models.Account{}).Where("user_id = ?", "u-1").Count(&n)
	if n != 1 {
		t.Fatalf("resync opened %d accounts", n)
	}
}

func TestProfileSyncFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Service-Token") != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/public/profiles" || r.URL.Query().Get("since") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{
			{"external_id": "u-9", "username": "nine", "email": "nine@example.com", "account_status": "active"},
		}})
	}))
	defer srv.Close()

	db := testutil.NewDB(t)
	store := services.NewLedgerStore(db, nil, "INR")
	w := NewProfileSyncWorker(db, store, srv.URL, "/api/v1/public/profiles", "token")

	if err := w.SyncSince(context.Background(), time.Time{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := store.AccountByUser(context.Background(), "u-9"); err != nil {
		t.Fatalf("synced user has no account: %v", err)
	}

	bad := NewProfileSyncWorker(db, store, srv.URL, "/api/v1/public/profiles", "wrong")
	if err := bad.SyncSince(context.Background(), time.Time{}); err == nil {
		t.Fatal("want error on rejected token")
	}
}
