package thermolight

import (
	"sync"
	"time"
)

// OverrideManager tracks a manual override that pauses automatic light changes.
// It is written from the MQTT callback goroutine and read by the poll loop.
type OverrideManager struct {
	mu        sync.RWMutex
	expiresAt time.Time
	now       func() time.Time
}

// NewOverrideManager creates an override manager with no active override
func NewOverrideManager() *OverrideManager {
	return &OverrideManager{now: time.Now}
}

// Set activates the override for the given duration and returns its expiry
func (om *OverrideManager) Set(d time.Duration) time.Time {
	om.mu.Lock()
	defer om.mu.Unlock()

	om.expiresAt = om.now().Add(d)
	return om.expiresAt
}

// Active reports whether an override is in effect, clearing it once expired
func (om *OverrideManager) Active() bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	if om.expiresAt.IsZero() {
		return false
	}
	if !om.now().Before(om.expiresAt) {
		om.expiresAt = time.Time{}
		return false
	}
	return true
}

// Clear removes the override; it returns false when none was active
func (om *OverrideManager) Clear() bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	active := !om.expiresAt.IsZero() && om.now().Before(om.expiresAt)
	om.expiresAt = time.Time{}
	return active
}

// ExpiresAt returns the expiry of the active override
func (om *OverrideManager) ExpiresAt() (time.Time, bool) {
	om.mu.RLock()
	defer om.mu.RUnlock()

	if om.expiresAt.IsZero() || !om.now().Before(om.expiresAt) {
		return time.Time{}, false
	}
	return om.expiresAt, true
}
