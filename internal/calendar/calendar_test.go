package calendar

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		holidays []time.Time
		wantLen  int
		wantErr  error
	}{
		{
			// 2022-01-03 is a Monday.
			name:    "one full week",
			start:   day(2022, 1, 3),
			end:     day(2022, 1, 9),
			wantLen: 5,
		},
		{
			name:     "holiday removed",
			start:    day(2022, 1, 3),
			end:      day(2022, 1, 9),
			holidays: []time.Time{day(2022, 1, 5)},
			wantLen:  4,
		},
		{
			name:    "weekend only",
			start:   day(2022, 1, 8),
			end:     day(2022, 1, 9),
			wantErr: ErrEmptyRange,
		},
		{
			name:    "end before start",
			start:   day(2022, 1, 9),
			end:     day(2022, 1, 3),
			wantErr: ErrEmptyRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := New(tt.start, tt.end, tt.holidays)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cal.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", cal.Len(), tt.wantLen)
			}
		})
	}
}

func TestIndexOrderedAndDeduplicated(t *testing.T) {
	cal, err := New(day(2022, 1, 3), day(2022, 3, 31), []time.Time{day(2022, 2, 28), day(2022, 3, 1)})
	if err != nil {
		t.Fatal(err)
	}
	index := cal.Index()
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			t.Fatalf("index not strictly increasing at %d: %s vs %s", i, index[i-1], index[i])
		}
	}
	if !cal.IsHoliday(day(2022, 2, 28)) {
		t.Error("IsHoliday(2022-02-28) = false, want true")
	}
}
