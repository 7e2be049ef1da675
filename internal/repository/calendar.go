package repository

import (
	"context"
	"fmt"
	"time"
)

// GetHolidays retrieves the holiday dates of a market over the given
// window. An empty market has no calendar row at all, which is an
// error; a market with zero holidays in the window is fine.
func (db *Database) GetHolidays(ctx context.Context, market string, start, end time.Time) ([]time.Time, error) {
	if market == "" {
		return nil, fmt.Errorf("empty market: %w", ErrNoCalendar)
	}
	return db.calendars.GetHolidays(ctx, market, start, end)
}
