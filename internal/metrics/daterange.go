package metrics

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ErrInvalidDateRange indicates a range whose start falls after its end, or
// bounds that failed to parse. Rejected before any upstream call is made.
var ErrInvalidDateRange = errors.New("metrics: invalid date range")

// DateRange is a day-granular period, inclusive of both endpoints.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseDateRange builds a range from two YYYY-MM-DD bounds.
func ParseDateRange(from, to string) (DateRange, error) {
	start, err := time.ParseInLocation(dateLayout, from, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: from %q", ErrInvalidDateRange, from)
	}
	end, err := time.ParseInLocation(dateLayout, to, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: to %q", ErrInvalidDateRange, to)
	}
	rng := DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return DateRange{}, err
	}
	return rng, nil
}

// Validate rejects zero bounds and inverted ranges.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidDateRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, r.Start.Format(dateLayout), r.End.Format(dateLayout))
	}
	return nil
}

// Days counts the days covered, both endpoints inclusive. A range where
// start equals end is a one-day period.
func (r DateRange) Days() int {
	start := r.Start.Truncate(24 * time.Hour)
	end := r.End.Truncate(24 * time.Hour)
	return int(end.Sub(start).Hours()/24) + 1
}

// Previous returns the immediately preceding window of equal length, ending
// the day before this one starts.
func (r DateRange) Previous() DateRange {
	days := r.Days()
	return DateRange{
		Start: r.Start.AddDate(0, 0, -days),
		End:   r.Start.AddDate(0, 0, -1),
	}
}
