package portfolio

import (
	"fmt"
	"strings"
	"time"
)

// Schedule says whether to rebalance after the i-th trading date, given the
// date that follows it.
type Schedule interface {
	Due(i int, date, next time.Time) bool
}

type Never struct{}

func (Never) Due(int, time.Time, time.Time) bool { return false }

// EveryN rebalances after every n trading dates.
type EveryN int

func (n EveryN) Due(i int, _, _ time.Time) bool {
	return n > 0 && (i+1)%int(n) == 0
}

// MonthEnd rebalances on the last trading date of each month.
type MonthEnd struct{}

func (MonthEnd) Due(_ int, date, next time.Time) bool {
	return date.Month() != next.Month() || date.Year() != next.Year()
}

func ScheduleByName(name string, every int) (Schedule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "never", "none":
		return Never{}, nil
	case "every":
		if every < 1 {
			return nil, fmt.Errorf("rebalance every %d days: must be positive", every)
		}
		return EveryN(every), nil
	case "month-end", "monthly":
		return MonthEnd{}, nil
	}
	return nil, fmt.Errorf("unknown rebalance schedule %q (supported: never, every, month-end)", name)
}
