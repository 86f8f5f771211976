package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"tournament-ledger/utils"
)

const (
	txAttempts   = 2 // first try + one retry on deadlock
	readAttempts = 3
	readBackoff  = 50 * time.Millisecond
)

// InTx runs fn in one database transaction. A deadlock or serialization
// failure rolls back and is retried once; a second failure is returned as
// ErrTransient. fn may run twice, so it must not have side effects outside tx.
func (s *LedgerStore) InTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}

	start := time.Now()
	defer func() { s.Metrics.ObserveTx(op, time.Since(start)) }()

	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = s.DB.WithContext(ctx).Transaction(fn)
		if err == nil || !isRetryableTxError(err) {
			break
		}
		if attempt < txAttempts {
			s.Metrics.TxRetry(op)
			utils.Warnf("[LEDGER] 🔁 %s hit %v, retrying once", op, err)
		}
	}

	switch {
	case err == nil:
		return nil
	case isRetryableTxError(err):
		utils.Errorf("[LEDGER] ❌ %s still conflicting after retry: %v", op, err)
		return fmt.Errorf("%w: %s", ErrTransient, op)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// the transaction rolled back; nothing was applied
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return err
}

// read runs a non-mutating query, retrying connection-level failures with
// exponential backoff.
func (s *LedgerStore) read(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	backoff := readBackoff
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		err = fn(s.DB.WithContext(ctx))
		if err == nil || !isTransientReadError(err) {
			return err
		}
		if attempt == readAttempts {
			break
		}
		utils.Warnf("[LEDGER] 🔁 read %s failed (attempt %d): %v", op, attempt, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrTimeout, op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	utils.Errorf("[LEDGER] ❌ read %s failed after %d attempts: %v", op, readAttempts, err)
	return fmt.Errorf("%w: %s", ErrTransient, op)
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "40001": // deadlock_detected, serialization_failure
			return true
		}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205 // deadlock, lock wait timeout
	}
	return false
}

func isTransientReadError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	return pgconn.SafeToRetry(err) || isRetryableTxError(err)
}
