package utils

import (
	"sync"
	"time"
)

// MockTimeProvider is a db.TimeProvider whose clock only moves when the test
// tells it to, so windows like the booking approval deadline can be crossed
// without sleeping.
type MockTimeProvider struct {
	currentTime time.Time
	mu          sync.RWMutex
}

// Now returns the frozen time.
func (m *MockTimeProvider) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTime
}

// AdvanceTime moves the clock forward by d.
func (m *MockTimeProvider) AdvanceTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// SetTime pins the clock to t.
func (m *MockTimeProvider) SetTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}
