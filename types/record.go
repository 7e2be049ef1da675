package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the per-date per-instrument trade record appended by the
// broker at end of period. Exposure carries a flipped sign for
// rates-like instruments: a long rate position is a short price one.
type Record struct {
	Date           time.Time       `json:"date"`
	Ticker         string          `json:"ticker"`
	Size           decimal.Decimal `json:"size"`
	OvernightPnL   decimal.Decimal `json:"opnl"`
	IntradayPnL    decimal.Decimal `json:"ipnl"`
	TradePnL       decimal.Decimal `json:"tpnl"`
	CarryPnL       decimal.Decimal `json:"cpnl"`
	Signal         decimal.Decimal `json:"signal"`
	Volatility     decimal.Decimal `json:"volatility"`
	Exposure       decimal.Decimal `json:"exposure"`
	TargetExposure decimal.Decimal `json:"targetExposure"`
}
