package runner

import (
	"context"
	"errors"
	"strings"
	"time"
)

var errPollTimeout = errors.New("poll deadline exceeded")

// poll calls check until it reports true, the deadline passes, or ctx ends.
// check always runs at least once, and once more at the deadline, so a
// condition that becomes true just before expiry is still observed.
func (r *Runner) poll(ctx context.Context, deadline time.Time, check func() bool) error {
	interval := r.pollInterval()
	for {
		if check() {
			return nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			return errPollTimeout
		}
		timer := time.NewTimer(min(interval, left))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// containsText matches the way rendered text reads: whitespace runs collapse
// to one space before comparing.
func containsText(actual, want string) bool {
	return strings.Contains(collapseSpace(actual), collapseSpace(want))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
