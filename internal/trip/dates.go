package trip

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateRange returns every date from start to end inclusive, ascending.
func DateRange(start, end string) ([]string, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	dates := make([]string, 0, int(e.Sub(s).Hours()/24)+1)
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

var dayParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDayRef resolves a day reference to an ISO date inside the fixed range.
//
// Accepted forms:
//   - "" (no day)
//   - an ISO date: "2026-07-25"
//   - a 1-based trip day: "day 3"
//   - natural language relative to the trip start: "july 25", "next friday"
func ParseDayRef(input string, fixed Fixed) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}

	dates, err := DateRange(fixed.StartDate, fixed.EndDate)
	if err != nil {
		return "", err
	}

	inRange := func(date string) (string, error) {
		if date < dates[0] || date > dates[len(dates)-1] {
			return "", fmt.Errorf("%w: %s is outside %s..%s", ErrInvalidValue, date, fixed.StartDate, fixed.EndDate)
		}
		return date, nil
	}

	if t, err := time.Parse(DateLayout, input); err == nil {
		return inRange(t.Format(DateLayout))
	}

	lower := strings.ToLower(input)
	if rest, ok := strings.CutPrefix(lower, "day"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err == nil {
			if n < 1 || n > len(dates) {
				return "", fmt.Errorf("%w: day %d not in 1..%d", ErrInvalidValue, n, len(dates))
			}
			return dates[n-1], nil
		}
	}

	base, _ := time.Parse(DateLayout, fixed.StartDate)
	r, err := dayParser.Parse(input, base)
	if err != nil {
		return "", fmt.Errorf("%w: cannot parse day %q: %v", ErrInvalidValue, input, err)
	}
	if r == nil {
		return "", fmt.Errorf("%w: cannot parse day %q", ErrInvalidValue, input)
	}
	return inRange(r.Time.Format(DateLayout))
}
