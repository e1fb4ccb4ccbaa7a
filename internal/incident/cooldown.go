package incident

import (
	"sync"
	"time"
)

// DefaultCooldownWindow is how long remediation decisions for a
// resource are suppressed after one is recorded.
const DefaultCooldownWindow = 5 * time.Minute

// CooldownTracker suppresses repeated remediation decisions against
// the same resource within a cooldown window, preventing decision
// flapping while a previous remediation settles.
type CooldownTracker struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	decisions map[string]time.Time
}

// NewCooldownTracker builds a tracker. A non-positive window falls
// back to the default.
func NewCooldownTracker(window time.Duration) *CooldownTracker {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &CooldownTracker{
		window:    window,
		now:       time.Now,
		decisions: make(map[string]time.Time),
	}
}

// Allow reports whether a new decision for the resource is permitted,
// i.e. no decision was recorded within the cooldown window.
func (t *CooldownTracker) Allow(resource string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.decisions[resource]
	if !ok {
		return true
	}
	return t.now().Sub(last) >= t.window
}

// RecordDecision marks a remediation decision for the resource,
// starting its cooldown window.
func (t *CooldownTracker) RecordDecision(resource string) {
	t.mu.Lock()
	t.decisions[resource] = t.now()
	t.mu.Unlock()
}
