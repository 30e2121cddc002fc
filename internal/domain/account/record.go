package account

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MinWindowDays and MaxWindowDays bound the look-ahead window accepted by the job.
	MinWindowDays = 0
	MaxWindowDays = 30

	// EscalationDays is the horizon below which an account is reported on every run.
	EscalationDays = 8
)

// ErrInvalidWindow is returned when the look-ahead window is out of range.
var ErrInvalidWindow = errors.New("window out of range")

// Record is an account that qualifies for an approver notification.
// Records are values; nothing mutates them after construction.
type Record struct {
	Username      string
	Email         string
	DaysRemaining int
	ApproverEmail string
}

// Batch is the set of records that go out in one email to one approver.
type Batch struct {
	ApproverEmail string
	Records       []Record
}

// ValidateWindow checks that days lies in [MinWindowDays, MaxWindowDays].
func ValidateWindow(days int) error {
	if days < MinWindowDays || days > MaxWindowDays {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidWindow, days, MinWindowDays, MaxWindowDays)
	}
	return nil
}

// Eligible reports whether an account with daysRemaining should be included in a run
// configured with window. Accounts exactly at the window get their one-time long-range
// notice; anything under EscalationDays is repeated daily.
func Eligible(daysRemaining, window int) bool {
	return daysRemaining == window || daysRemaining < EscalationDays
}

// DaysUntil returns the number of calendar days from now's date to the date of
// expiresAt, both taken in now's location. An account expiring later today is
// 0 days out, one that expired yesterday is -1.
func DaysUntil(expiresAt, now time.Time) int {
	ey, em, ed := expiresAt.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	expiryDay := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(expiryDay.Sub(today) / (24 * time.Hour))
}

// WindowEnd returns the first instant after a window of days starting today,
// i.e. midnight at the start of day days+1 in now's location.
func WindowEnd(now time.Time, days int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+days+1, 0, 0, 0, 0, now.Location())
}

// StartOfDay returns midnight of now's date in now's location.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
