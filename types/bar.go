package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one daily OHLC record as delivered by a data source.
// Open/High/Low may be missing (nil-like zero decimals are not used;
// HasOpen etc. mark presence) and are healed against Close when the
// bar is aligned onto the run calendar.
type PriceBar struct {
	Ticker    string          `json:"ticker"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Liquidity decimal.Decimal `json:"liquidity"`

	HasOpen bool `json:"-"`
	HasHigh bool `json:"-"`
	HasLow  bool `json:"-"`
}

func NewPriceBar(ticker string, date time.Time, open, high, low, close decimal.Decimal) PriceBar {
	return PriceBar{
		Ticker:  ticker,
		Date:    date,
		Open:    open,
		High:    high,
		Low:     low,
		Close:   close,
		HasOpen: true,
		HasHigh: true,
		HasLow:  true,
	}
}
