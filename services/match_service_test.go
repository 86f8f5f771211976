package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"tournament-ledger/models"
	"tournament-ledger/testutil"
)

func newMatchFixture(t *testing.T) (*MatchService, *JoinCoordinator, *recordedEffects, *gorm.DB) {
	t.Helper()
	store, db := newTestStore(t)
	fx := &recordedEffects{}
	return NewMatchService(store, fx), NewJoinCoordinator(store, fx), fx, db
}

func TestCreateMatchDefaultsAndValidation(t *testing.T) {
	ms, _, fx, _ := newMatchFixture(t)
	ctx := context.Background()

	m, err := ms.CreateMatch(ctx, "admin-1", CreateMatchInput{Title: "Squad Night", Mode: models.ModeSquad, Slots: 16, EntryFee: testutil.Money("25")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.TeamSize != 4 || !strings.HasPrefix(m.Slug, "squad-night-") || m.AvailableSlots != 16 {
		t.Fatalf("defaults not applied: %+v", m)
	}
	if got := fx.auditActions(); len(got) != 1 || got[0] != "match_create" {
		t.Fatalf("audit: %v", got)
	}

	bad := []CreateMatchInput{
		{Title: "  ", Slots: 2},
		{Title: "Odd duo", Mode: models.ModeDuo, Slots: 3},
		{Title: "Bad mode", Mode: "trio", Slots: 3},
		{Title: "No slots", Slots: 0},
	}
	for _, in := range bad {
		if _, err := ms.CreateMatch(ctx, "admin-1", in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%q: want ErrInvalidInput, got %v", in.Title, err)
		}
	}
	if _, err := ms.CreateMatch(ctx, "admin-1", CreateMatchInput{Title: "Cheap", Slots: 2, EntryFee: testutil.Money("0.001")}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("sub-cent fee: want ErrInvalidAmount, got %v", err)
	}
}

func TestLockAndUnlockMatch(t *testing.T) {
	ms, j, fx, db := newMatchFixture(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "10.00")
	m := testutil.SeedMatch(t, db, models.Match{Slots: 4})

	locked, err := ms.LockMatch(ctx, "admin-1", m.ID)
	if err != nil || !locked.IsLocked {
		t.Fatalf("lock: %+v %v", locked, err)
	}
	if _, err := j.Join(ctx, JoinRequest{UserID: "u-1", MatchID: m.ID}); !errors.Is(err, ErrMatchLocked) {
		t.Fatalf("join locked: want ErrMatchLocked, got %v", err)
	}
	if _, err := ms.UnlockMatch(ctx, "admin-1", m.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := j.Join(ctx, JoinRequest{UserID: "u-1", MatchID: m.ID}); err != nil {
		t.Fatalf("join after unlock: %v", err)
	}
	if _, err := ms.LockMatch(ctx, "admin-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lock missing: want ErrNotFound, got %v", err)
	}

	got := fx.auditActions()
	if len(got) != 2 || got[0] != "match_lock" || got[1] != "match_unlock" {
		t.Fatalf("audit: %v", got)
	}
}

func TestLockDueMatches(t *testing.T) {
	ms, _, _, db := newMatchFixture(t)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	started := testutil.SeedMatch(t, db, models.Match{Slots: 2, StartsAt: &past})
	testutil.SeedMatch(t, db, models.Match{Slots: 2, StartsAt: &future})
	testutil.SeedMatch(t, db, models.Match{Slots: 2})

	n, err := ms.LockDueMatches(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("lock due: n=%d err=%v", n, err)
	}
	m, err := ms.GetMatch(ctx, started.ID)
	if err != nil || !m.IsLocked {
		t.Fatalf("started match not locked: %+v %v", m, err)
	}

	open, err := ms.ListMatches(ctx, true, 10)
	if err != nil || len(open) != 2 {
		t.Fatalf("open matches: %d %v", len(open), err)
	}
}

func TestDeleteMatchWithRefund(t *testing.T) {
	ms, j, fx, db := newMatchFixture(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "100.00")
	testutil.SeedAccount(t, db, "u-2", "100.00")
	m := testutil.SeedMatch(t, db, models.Match{Mode: models.ModeDuo, TeamSize: 2, Slots: 4, EntryFee: testutil.Money("30")})

	for i, u := range []string{"u-1", "u-2"} {
		if _, err := j.Join(ctx, JoinRequest{UserID: u, MatchID: m.ID, TeamSide: intPtr(1), SlotNo: intPtr(i + 1)}); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}

	summary, err := ms.DeleteMatch(ctx, "admin-1", m.ID, true)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if summary.Participants != 2 || summary.Refunded != 2 {
		t.Fatalf("summary: %+v", summary)
	}
	assertMoney(t, "refund total", "60.00", summary.RefundTotal)
	assertMoney(t, "u-1", "100.00", testutil.Balance(t, db, "u-1"))
	assertMoney(t, "u-2", "100.00", testutil.Balance(t, db, "u-2"))

	var left int64
	db.Model(&models.Participation{}).Where("match_id = ?", m.ID).Count(&left)
	if left != 0 {
		t.Fatalf("%d participations left", left)
	}
	db.Model(&models.TeamGroup{}).Where("match_id = ?", m.ID).Count(&left)
	if left != 0 {
		t.Fatalf("%d team groups left", left)
	}
	// fee entries stay in the ledger
	if n := testutil.CountEntries(t, db, "u-1", models.KindMatchEntry); n != 1 {
		t.Fatalf("fee entry removed: %d", n)
	}
	if _, err := ms.GetMatch(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted match: want ErrNotFound, got %v", err)
	}
	if fx.notificationCount(NotifyMatchRefund) != 2 {
		t.Fatal("refund notifications missing")
	}
}

func TestDeleteMatchWithoutRefundKeepsBalances(t *testing.T) {
	ms, j, _, db := newMatchFixture(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "50.00")
	m := testutil.SeedMatch(t, db, models.Match{Slots: 4, EntryFee: testutil.Money("20")})
	if _, err := j.Join(ctx, JoinRequest{UserID: "u-1", MatchID: m.ID}); err != nil {
		t.Fatalf("join: %v", err)
	}

	summary, err := ms.DeleteMatch(ctx, "admin-1", m.ID, false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if summary.Participants != 1 || summary.Refunded != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	assertMoney(t, "balance", "30.00", testutil.Balance(t, db, "u-1"))

	if _, err := ms.DeleteMatch(ctx, "admin-1", m.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestFailedDeleteRestoresLockState(t *testing.T) {
	ms, _, fx, db := newMatchFixture(t)
	ctx := context.Background()

	open := testutil.SeedMatch(t, db, models.Match{Slots: 4, EntryFee: testutil.Money("10")})
	closed := testutil.SeedMatch(t, db, models.Match{Slots: 4, EntryFee: testutil.Money("10"), IsLocked: true})
	for _, m := range []*models.Match{open, closed} {
		// participant whose fee entry is gone, so the refund cannot be computed
		broken := models.Participation{ID: "p-" + m.ID, UserID: "u-1", MatchID: m.ID, LedgerEntryID: "missing"}
		if err := db.Create(&broken).Error; err != nil {
			t.Fatalf("seed participation: %v", err)
		}
	}

	cases := []struct {
		name       string
		match      *models.Match
		wantLocked bool
	}{
		{"open match reopens", open, false},
		{"locked match stays locked", closed, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ms.DeleteMatch(ctx, "admin-1", tc.match.ID, true); err == nil {
				t.Fatal("delete with a missing fee entry should fail")
			}
			got, err := ms.GetMatch(ctx, tc.match.ID)
			if err != nil {
				t.Fatalf("match should survive a failed delete: %v", err)
			}
			if got.IsLocked != tc.wantLocked {
				t.Fatalf("is_locked=%v, want %v", got.IsLocked, tc.wantLocked)
			}
			var n int64
			db.Model(&models.Participation{}).Where("match_id = ?", tc.match.ID).Count(&n)
			if n != 1 {
				t.Fatalf("participations after rollback: %d", n)
			}
		})
	}
	if len(fx.auditActions()) != 0 {
		t.Fatalf("failed deletes must not be audited: %v", fx.auditActions())
	}
}
