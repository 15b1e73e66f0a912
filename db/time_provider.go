package db

import "time"

// TimeProvider interface allows for time mocking in tests
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider provides actual system time
type RealTimeProvider struct{}

// Now returns the current system time
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// ToDate truncates t to midnight UTC. All booking dates are stored this way
// so that day arithmetic and overlap comparisons are timezone-proof.
func ToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
