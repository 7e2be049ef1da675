package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tradesim/types"
)

// GetDailyBars retrieves the daily price bars of a ticker over the
// given window. Nullable open/high/low columns map to unset fields on
// the bar; healing them is the caller's concern.
func (db *Database) GetDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]types.PriceBar, error) {
	rows, err := db.bars.GetDailyBars(ctx, ticker, start, end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s: %w", ticker, ErrNoBars)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ticker %s: %w", ticker, ErrNoBars)
	}
	return convertBars(ticker, rows), nil
}

func convertBars(ticker string, rows []barRow) []types.PriceBar {
	bars := make([]types.PriceBar, 0, len(rows))
	for _, row := range rows {
		bar := types.PriceBar{
			Ticker:    ticker,
			Date:      row.Date,
			Close:     row.Close,
			Volume:    row.Volume,
			Liquidity: row.Liquidity,
		}
		if row.Open != nil {
			bar.Open = *row.Open
			bar.HasOpen = true
		}
		if row.High != nil {
			bar.High = *row.High
			bar.HasHigh = true
		}
		if row.Low != nil {
			bar.Low = *row.Low
			bar.HasLow = true
		}
		bars = append(bars, bar)
	}
	return bars
}
