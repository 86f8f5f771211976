package workers

import (
	"context"
	"errors"
	"time"

	"tournament-ledger/services"
	"tournament-ledger/utils"
)

// SettlementWorker polls the gateway for captured payments and credits the
// matching top-up orders. It recovers payments whose webhook or client
// confirmation never arrived; already-credited orders replay harmlessly.
type SettlementWorker struct {
	Gateway  services.PaymentGateway
	Wallet   *services.WalletService
	Interval time.Duration
	Lookback time.Duration
}

func NewSettlementWorker(gateway services.PaymentGateway, wallet *services.WalletService, interval time.Duration) *SettlementWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SettlementWorker{
		Gateway:  gateway,
		Wallet:   wallet,
		Interval: interval,
		Lookback: 24 * time.Hour,
	}
}

// RunOnce settles every payment captured since the given time. It returns
// how many orders were newly credited. The error is non-nil when the poll
// should be repeated over the same window.
func (w *SettlementWorker) RunOnce(ctx context.Context, since time.Time) (int, error) {
	payments, err := w.Gateway.CapturedSince(ctx, since)
	if err != nil {
		return 0, err
	}
	w.Wallet.Store.Metrics.SettlementSeen(len(payments))

	settled := 0
	var retryErr error
	for _, p := range payments {
		res, err := w.Wallet.SettleTopup(ctx, p)
		switch {
		case err == nil && !res.Replayed:
			settled++
		case err == nil:
			// already credited
		case errors.Is(err, services.ErrNotFound):
			utils.Debugf("[SETTLE] order %s is not ours, skipping", p.OrderID)
		case services.IsBusinessError(err):
			utils.Warnf("[SETTLE] ⚠️ payment %s for order %s not settled: %v", p.PaymentID, p.OrderID, err)
		default:
			utils.Errorf("[SETTLE] ❌ payment %s for order %s: %v", p.PaymentID, p.OrderID, err)
			retryErr = err
		}
	}
	return settled, retryErr
}

// Poll runs RunOnce every Interval until ctx is cancelled.
func (w *SettlementWorker) Poll(ctx context.Context) {
	utils.Info("[SETTLE] 🔁 Starting gateway settlement polling...")
	lastSyncTime := time.Now().UTC().Add(-w.Lookback)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Info("[SETTLE] ⏹️ Settlement polling stopped.")
			return
		case <-ticker.C:
			pollTime := time.Now().UTC()
			settled, err := w.RunOnce(ctx, lastSyncTime)
			if err != nil {
				// keep the window; retry it next tick
				utils.Errorf("[SETTLE] ❌ Poll since %s failed: %v", lastSyncTime.Format(time.RFC3339), err)
				continue
			}
			if settled > 0 {
				utils.Infof("[SETTLE] ✅ Credited %d top-up(s) from captured payments", settled)
			}
			lastSyncTime = pollTime.Add(-w.Interval) // overlap one tick; replays are no-ops
		}
	}
}
