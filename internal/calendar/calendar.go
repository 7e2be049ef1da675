// Package calendar builds the ordered, duplicate-free trading-date
// index that every series of a run is aligned to.
package calendar

import (
	"errors"
	"time"
)

var ErrEmptyRange = errors.New("calendar: no trading dates between start and end")

type Calendar struct {
	index    []time.Time
	holidays map[time.Time]struct{}
}

// New returns the business-day calendar between start and end,
// inclusive, skipping weekends and the given holidays. Dates are
// normalized to midnight UTC.
func New(start, end time.Time, holidays []time.Time) (*Calendar, error) {
	hset := make(map[time.Time]struct{}, len(holidays))
	for _, h := range holidays {
		hset[midnight(h)] = struct{}{}
	}

	var index []time.Time
	for day := midnight(start); !day.After(midnight(end)); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if _, ok := hset[day]; ok {
			continue
		}
		index = append(index, day)
	}
	if len(index) == 0 {
		return nil, ErrEmptyRange
	}
	return &Calendar{index: index, holidays: hset}, nil
}

func (c *Calendar) Index() []time.Time {
	out := make([]time.Time, len(c.index))
	copy(out, c.index)
	return out
}

func (c *Calendar) Len() int { return len(c.index) }

func (c *Calendar) Start() time.Time { return c.index[0] }

func (c *Calendar) End() time.Time { return c.index[len(c.index)-1] }

func (c *Calendar) IsHoliday(day time.Time) bool {
	_, ok := c.holidays[midnight(day)]
	return ok
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
