package services

import (
	"sync"
	"testing"

	"gorm.io/gorm"

	"tournament-ledger/models"
	"tournament-ledger/testutil"
)

type recordedEffects struct {
	mu            sync.Mutex
	notifications []models.Notification
	audits        []models.AdminAuditLog
}

func (r *recordedEffects) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordedEffects) Audit(a models.AdminAuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, a)
}

func (r *recordedEffects) auditActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.audits))
	for _, a := range r.audits {
		out = append(out, a.Action)
	}
	return out
}

func (r *recordedEffects) notificationCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notifications {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T) (*LedgerStore, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewLedgerStore(db, nil, "INR"), db
}

func assertMoney(t *testing.T, label, want string, got interface{ StringFixed(int32) string }) {
	t.Helper()
	if got.StringFixed(2) != want {
		t.Fatalf("%s: want %s, got %s", label, want, got.StringFixed(2))
	}
}
