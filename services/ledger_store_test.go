package services

import (
	"context"
	"errors"
	"testing"

	"tournament-ledger/models"
	"tournament-ledger/testutil"
)

func TestEnsureAccountIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a1, err := store.EnsureAccount(ctx, "u-1")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	a2, err := store.EnsureAccount(ctx, "u-1")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if a1.ID != a2.ID {
		t.Fatalf("ensure opened two accounts: %s and %s", a1.ID, a2.ID)
	}
	assertMoney(t, "new balance", "0.00", a1.Balance)

	if _, err := store.AccountByUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing account: want ErrNotFound, got %v", err)
	}
}

func TestApplyEntryCreditAndDebit(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "100.00")

	debit, err := store.ApplyEntry(ctx, "u-1", testutil.Money("-30"), models.KindMatchEntry, EntryMeta{Description: "fee"})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if debit.Status != models.StatusSuccess || !debit.BalanceAfter.Valid {
		t.Fatalf("debit entry not settled: %+v", debit)
	}
	assertMoney(t, "balance after debit", "70.00", debit.BalanceAfter.Decimal)

	credit, err := store.ApplyEntry(ctx, "u-1", testutil.Money("12.5"), models.KindPrize, EntryMeta{})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	assertMoney(t, "balance after credit", "82.50", credit.BalanceAfter.Decimal)
	assertMoney(t, "stored balance", "82.50", testutil.Balance(t, db, "u-1"))
}

func TestApplyEntryRejectsOverdraft(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "20.00")

	_, err := store.ApplyEntry(ctx, "u-1", testutil.Money("-20.01"), models.KindManualAdjustment, EntryMeta{})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	assertMoney(t, "balance", "20.00", testutil.Balance(t, db, "u-1"))
	if n := testutil.CountEntries(t, db, "u-1", ""); n != 0 {
		t.Fatalf("failed debit wrote %d entries", n)
	}

	// draining to exactly zero is allowed
	if _, err := store.ApplyEntry(ctx, "u-1", testutil.Money("-20"), models.KindManualAdjustment, EntryMeta{}); err != nil {
		t.Fatalf("drain to zero: %v", err)
	}
	assertMoney(t, "drained", "0.00", testutil.Balance(t, db, "u-1"))
}

func TestPendingEntryLifecycle(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "0.00")

	pending, err := store.CreatePendingEntry(ctx, "u-1", testutil.Money("50"), models.KindTopup, EntryMeta{ExternalRef: "order_1"}, false)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if pending.Status != models.StatusPending || pending.BalanceAfter.Valid {
		t.Fatalf("pending top-up should not carry a balance: %+v", pending)
	}
	assertMoney(t, "balance while pending", "0.00", testutil.Balance(t, db, "u-1"))

	resolved, err := store.ResolvePendingEntry(ctx, pending.ID, Resolution{Status: models.StatusSuccess, Delta: pending.Amount, Note: "paid"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != models.StatusSuccess || resolved.ResolvedAt == nil {
		t.Fatalf("entry not resolved: %+v", resolved)
	}
	assertMoney(t, "balance after resolve", "50.00", resolved.BalanceAfter.Decimal)

	again, err := store.ResolvePendingEntry(ctx, pending.ID, Resolution{Status: models.StatusSuccess, Delta: pending.Amount})
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("second resolve: want ErrNotPending, got %v", err)
	}
	if again == nil || again.Status != models.StatusSuccess {
		t.Fatalf("second resolve should return the settled entry, got %+v", again)
	}
	assertMoney(t, "balance unchanged", "50.00", testutil.Balance(t, db, "u-1"))
}

func TestHeldPendingEntryDebitsImmediately(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "40.00")

	if _, err := store.CreatePendingEntry(ctx, "u-1", testutil.Money("-50"), models.KindWithdrawal, EntryMeta{}, true); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("over-hold: want ErrInsufficientFunds, got %v", err)
	}
	if _, err := store.CreatePendingEntry(ctx, "u-1", testutil.Money("10"), models.KindWithdrawal, EntryMeta{}, true); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("positive hold: want ErrInvalidAmount, got %v", err)
	}
	held, err := store.CreatePendingEntry(ctx, "u-1", testutil.Money("-15"), models.KindWithdrawal, EntryMeta{}, true)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	assertMoney(t, "held balance_after", "25.00", held.BalanceAfter.Decimal)
	assertMoney(t, "stored balance", "25.00", testutil.Balance(t, db, "u-1"))
}

func TestEntriesPagination(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	testutil.SeedAccount(t, db, "u-1", "0.00")
	for i := 0; i < 5; i++ {
		if _, err := store.ApplyEntry(ctx, "u-1", testutil.Money("1"), models.KindPrize, EntryMeta{}); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	page, total, err := store.Entries(ctx, "u-1", 2, 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("want 2 of 5, got %d of %d", len(page), total)
	}
	if _, err := store.Entry(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing entry: want ErrNotFound, got %v", err)
	}
}
