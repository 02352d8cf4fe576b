package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when the dependency does not answer a ping.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// CountCheck fails while count() is above limit.
func CountCheck(what string, count func() int, limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := count(); n > limit {
			return errors.Errorf("%s count %d exceeds threshold %d", what, n, limit)
		}
		return nil
	}
}

// GoroutineCountCheck detects goroutine leaks.
func GoroutineCountCheck(limit int) CheckFunc {
	return CountCheck("goroutine", runtime.NumGoroutine, limit)
}

// GCMaxPauseCheck fails when any recent stop-the-world pause exceeds limit.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > limit {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, limit)
			}
		}
		return nil
	}
}
