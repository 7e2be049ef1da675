package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var barStart = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
var barEnd = barStart.AddDate(0, 0, 5)

type mockBarsRepository struct {
	sqlError  error
	closeOnly bool
}

func TestDatabase_GetDailyBars(t *testing.T) {
	type args struct {
		ticker string
		start  time.Time
		end    time.Time
	}
	tests := []struct {
		name      string
		args      args
		closeOnly bool
		sqlErr    error
		wantErr   error
	}{
		{"should throw ErrNoBars on sql no rows", args{"WING21", barEnd, barStart}, false, pgx.ErrNoRows, ErrNoBars},
		{"should throw ErrNoBars on empty result", args{"WING21", barEnd, barStart}, false, nil, ErrNoBars},
		{"should return full bars", args{"WING21", barStart, barEnd}, false, nil, nil},
		{"should return close-only bars with unset fields", args{"DI1F25", barStart, barEnd}, true, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &Database{
				bars: mockBarsRepository{
					sqlError:  tt.sqlErr,
					closeOnly: tt.closeOnly,
				},
			}
			got, err := db.GetDailyBars(context.Background(), tt.args.ticker, tt.args.start, tt.args.end)
			if err != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetDailyBars() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if len(got) == 0 {
				t.Fatal("GetDailyBars() returned no bars")
			}
			for _, bar := range got {
				if bar.Ticker != tt.args.ticker {
					t.Errorf("GetDailyBars() ticker = %v, want %v", bar.Ticker, tt.args.ticker)
					break
				}
				if bar.HasOpen == tt.closeOnly {
					t.Errorf("GetDailyBars() %s HasOpen = %v, want %v", bar.Date, bar.HasOpen, !tt.closeOnly)
					break
				}
				if bar.Close.IsZero() {
					t.Errorf("GetDailyBars() %s close is zero", bar.Date)
					break
				}
			}
		})
	}
}

func (m mockBarsRepository) GetDailyBars(_ context.Context, _ string, start, end time.Time) ([]barRow, error) {
	if m.sqlError != nil {
		return nil, m.sqlError
	}
	var rows []barRow
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		price := decimal.NewFromInt(day.Unix() % 1000)
		row := barRow{
			Date:      day,
			Close:     price.Add(decimal.NewFromInt(1)),
			Volume:    decimal.NewFromInt(100),
			Liquidity: decimal.NewFromInt(1000000),
		}
		if !m.closeOnly {
			open := price
			high := price.Add(decimal.NewFromInt(2))
			low := price.Sub(decimal.NewFromInt(2))
			row.Open = &open
			row.High = &high
			row.Low = &low
		}
		rows = append(rows, row)
	}
	return rows, nil
}
