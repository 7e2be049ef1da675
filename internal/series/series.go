// Package series implements fixed-length value arrays addressed
// through one shared cursor. All lines registered on the same Clock
// read the same calendar date at offset 0; the orchestrator advances
// the clock exactly once per simulated day.
package series

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOutOfRange     = errors.New("series: read out of range")
	ErrLengthMismatch = errors.New("series: line length differs from clock length")
	ErrExhausted      = errors.New("series: clock advanced past the last entry")
	ErrBadWarmup      = errors.New("series: warmup offset outside the index")
)

// Clock is the shared read cursor. It starts at the warm-up offset and
// only ever moves forward.
type Clock struct {
	cursor int
	length int
}

func NewClock(length, warmup int) (*Clock, error) {
	if warmup < 0 || warmup >= length {
		return nil, ErrBadWarmup
	}
	return &Clock{cursor: warmup, length: length}, nil
}

func (c *Clock) Advance() error {
	if c.cursor+1 >= c.length {
		return ErrExhausted
	}
	c.cursor++
	return nil
}

func (c *Clock) Cursor() int { return c.cursor }

func (c *Clock) Len() int { return c.length }

// Remaining reports how many Advance calls are still possible.
func (c *Clock) Remaining() int { return c.length - 1 - c.cursor }

func (c *Clock) index(offset int) (int, error) {
	i := c.cursor + offset
	if i < 0 || i >= c.length {
		return 0, ErrOutOfRange
	}
	return i, nil
}

// Line is a fixed-length decimal array read through a shared Clock.
// Offset 0 is today, negative offsets are history. Reads beyond the
// available range fail hard; warm-up misconfiguration should surface,
// not be clamped away.
type Line struct {
	values []decimal.Decimal
	clock  *Clock
}

func NewLine(clock *Clock, values []decimal.Decimal) (Line, error) {
	if len(values) != clock.Len() {
		return Line{}, ErrLengthMismatch
	}
	return Line{values: values, clock: clock}, nil
}

// NewConstLine builds a line holding the same value at every entry.
func NewConstLine(clock *Clock, value decimal.Decimal) Line {
	values := make([]decimal.Decimal, clock.Len())
	for i := range values {
		values[i] = value
	}
	return Line{values: values, clock: clock}
}

func (l Line) At(offset int) (decimal.Decimal, error) {
	i, err := l.clock.index(offset)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return l.values[i], nil
}

func (l Line) Set(offset int, value decimal.Decimal) error {
	i, err := l.clock.index(offset)
	if err != nil {
		return err
	}
	l.values[i] = value
	return nil
}

// Add adds delta to the entry at offset.
func (l Line) Add(offset int, delta decimal.Decimal) error {
	i, err := l.clock.index(offset)
	if err != nil {
		return err
	}
	l.values[i] = l.values[i].Add(delta)
	return nil
}

func (l Line) Len() int { return len(l.values) }

// History returns a copy of the values from the start of the index up
// to and including today.
func (l Line) History() []decimal.Decimal {
	out := make([]decimal.Decimal, l.clock.Cursor()+1)
	copy(out, l.values[:l.clock.Cursor()+1])
	return out
}

// Values returns a copy of the whole line regardless of the cursor.
// Derived lines are precomputed over the full index before a run;
// cursor-gated reads remain the only access during it.
func (l Line) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(l.values))
	copy(out, l.values)
	return out
}

// DateLine is the calendar index read through the same shared Clock.
type DateLine struct {
	dates []time.Time
	clock *Clock
}

func NewDateLine(clock *Clock, dates []time.Time) (DateLine, error) {
	if len(dates) != clock.Len() {
		return DateLine{}, ErrLengthMismatch
	}
	return DateLine{dates: dates, clock: clock}, nil
}

func (d DateLine) At(offset int) (time.Time, error) {
	i, err := d.clock.index(offset)
	if err != nil {
		return time.Time{}, err
	}
	return d.dates[i], nil
}

// Today returns the date at offset 0.
func (d DateLine) Today() (time.Time, error) {
	return d.At(0)
}

func (d DateLine) Len() int { return len(d.dates) }

// End returns the last date of the index regardless of the cursor.
func (d DateLine) End() time.Time { return d.dates[len(d.dates)-1] }
