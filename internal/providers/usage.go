package providers

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
)

const usageWindow = 24 * time.Hour

// UsageTracker counts calls to a provider over a rolling 24h window and
// enforces its daily quota. It is safe for concurrent use.
type UsageTracker struct {
	provider domain.ProviderID
	limit    int
	now      func() time.Time

	mu    sync.Mutex
	calls []time.Time
}

// NewUsageTracker creates a tracker. A limit of 0 disables the quota.
func NewUsageTracker(provider domain.ProviderID, limit int) *UsageTracker {
	return &UsageTracker{provider: provider, limit: limit, now: time.Now}
}

// Acquire records a call, or returns a rate limit error without recording it
// when the quota for the window is spent.
func (u *UsageTracker) Acquire() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	u.prune(now)
	if u.limit > 0 && len(u.calls) >= u.limit {
		return domain.NewProviderError(u.provider, domain.ErrorKindRateLimit,
			fmt.Sprintf("daily quota of %d calls exhausted", u.limit), nil)
	}
	u.calls = append(u.calls, now)
	return nil
}

// Restore replaces the recorded calls, typically with the usage ledger's
// last 24h after a restart. Calls outside the window are dropped.
func (u *UsageTracker) Restore(calls []time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls[:0], calls...)
	sort.Slice(u.calls, func(i, j int) bool { return u.calls[i].Before(u.calls[j]) })
	u.prune(u.now())
}

// Current returns the number of calls in the window.
func (u *UsageTracker) Current() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prune(u.now())
	return len(u.calls)
}

// Limit returns the daily quota, 0 meaning unlimited.
func (u *UsageTracker) Limit() int {
	return u.limit
}

func (u *UsageTracker) prune(now time.Time) {
	cutoff := now.Add(-usageWindow)
	i := 0
	for i < len(u.calls) && !u.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		u.calls = append(u.calls[:0], u.calls[i:]...)
	}
}
