package mysql

import (
	"context"
	crand "crypto/rand"
	"errors"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
)

const (
	errLockDeadlock    = 1213 // ER_LOCK_DEADLOCK
	errLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
)

// retryable reports whether err means another transaction won a conflict and
// the whole transaction can be run again.
func retryable(err error) bool {
	var me *mysqldrv.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errLockDeadlock || me.Number == errLockWaitTimeout
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns an exponential delay with up to +50% jitter.
// i = retry attempt (0,1,2,...): 20ms, 40ms, 80ms...
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 20 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
