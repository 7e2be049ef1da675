package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerRow is one per-date row of the reconciled cash/equity ledger.
// Quota is the equity curve normalized to 1000 at the initial cash.
type LedgerRow struct {
	Date       time.Time       `json:"date"`
	Cash       decimal.Decimal `json:"cash"`
	OpenEquity decimal.Decimal `json:"openEquity"`
	Equity     decimal.Decimal `json:"equity"`
	Quota      decimal.Decimal `json:"quota"`
	Volatility decimal.Decimal `json:"volatility"`
	Sharpe     decimal.Decimal `json:"sharpe"`
	Drawdown   decimal.Decimal `json:"drawdown"`
}
