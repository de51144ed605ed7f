package ingest

import (
	"context"
	"time"
)

// BackoffSleep pauses between retries of a failed source read. Returns
// false when the context ended during the pause.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
