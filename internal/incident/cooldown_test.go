package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownSuppressesRepeatDecisions(t *testing.T) {
	now := baseTime
	tracker := NewCooldownTracker(5 * time.Minute)
	tracker.now = func() time.Time { return now }

	assert.True(t, tracker.Allow("web-frontend"))

	tracker.RecordDecision("web-frontend")
	assert.False(t, tracker.Allow("web-frontend"))

	// Other resources are unaffected.
	assert.True(t, tracker.Allow("api-backend"))

	// Still inside the window.
	now = baseTime.Add(4 * time.Minute)
	assert.False(t, tracker.Allow("web-frontend"))

	// Window elapsed.
	now = baseTime.Add(5 * time.Minute)
	assert.True(t, tracker.Allow("web-frontend"))
}

func TestCooldownDefaultWindow(t *testing.T) {
	tracker := NewCooldownTracker(0)
	assert.Equal(t, DefaultCooldownWindow, tracker.window)
}
