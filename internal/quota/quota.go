// Package quota implements the admission gate for AI chat requests.
// Registered users get a daily allowance that resets at UTC midnight;
// guests get a small allowance within a rolling 30-day window, keyed by
// a fingerprint of their client IP.
package quota

import "time"

// Principal kinds.
const (
	KindRegistered = "registered"
	KindGuest      = "guest"
)

// Principal identifies the caller for quota purposes. Exactly one of
// UserID or Fingerprint is set, per Kind.
type Principal struct {
	Kind        string
	UserID      string // Set when Kind == KindRegistered.
	Fingerprint string // Set when Kind == KindGuest.
}

// ID returns the ledger principal ID for this principal.
func (p Principal) ID() string {
	if p.Kind == KindRegistered {
		return p.UserID
	}
	return p.Fingerprint
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	UsageCount int
	Remaining  int
	// LastUsed is set for rejected guests: the timestamp of their most
	// recent use inside the window.
	LastUsed *time.Time
}

// Config holds quota limits.
type Config struct {
	RegisteredDaily int `mapstructure:"registered_daily"`
	GuestMonthly    int `mapstructure:"guest_monthly"`
}

// DefaultConfig returns the default quota limits.
func DefaultConfig() Config {
	return Config{
		RegisteredDaily: 5,
		GuestMonthly:    1,
	}
}

// guestWindow is the rolling lookback for guest admissions.
const guestWindow = 30 * 24 * time.Hour

// startOfUTCDay returns UTC midnight of the day containing t.
func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
