package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSlippage   = errors.New("slippage must lie within [0, 1]")
	ErrInvalidCommission = errors.New("commission must be non-negative")
	ErrInvalidCurrency   = errors.New("currency code not recognized")
	ErrInvalidBuffer     = errors.New("warm-up buffer must be positive")
	ErrInvalidRanking    = errors.New("ranking size must be positive")
	ErrInvalidRollDate   = errors.New("roll month/day is not a valid date")
	ErrInvalidCash       = errors.New("initial cash must be positive")
)

// Config carries every tunable of a run. It is built once at startup
// and threaded through constructors; nothing in the engine reads
// process-wide state.
type Config struct {
	// Accounting.
	InitialCash  decimal.Decimal
	HomeCurrency string
	Currencies   []string // recognized currency codes
	Pairs        []string // recognized FX pair tickers, e.g. USDBRL
	CarryTicker  string   // base ticker holding the daily carry rate
	RatesLike    []string // asset codes whose futures are rates-like

	// Calendar.
	Buffer int // warm-up offset: history needed by the longest lookback

	// Pipelines.
	RollLag         int
	RollMonth       time.Month // Vertice fixed roll date
	RollDay         int
	RankingSize     int
	MinVolatility   decimal.Decimal
	MaxVolatility   decimal.Decimal
	MinLiquidity    decimal.Decimal
	IssuerPrefixLen int

	// Sizing.
	TargetVolatility   decimal.Decimal
	VolatilityFloor    decimal.Decimal
	VolatilityAlpha    float64         // EWMA parameter for volatility and beta
	RebalanceThreshold decimal.Decimal // min size change as fraction of position
	LotSize            decimal.Decimal

	// Execution defaults. Per-instrument values override these.
	StockCommission  decimal.Decimal // fraction of price
	FutureCommission decimal.Decimal // absolute per unit
	Slippage         decimal.Decimal

	// MaxDrawdown, when negative, stops the run once the quota
	// drawdown breaches it. Zero disables the circuit breaker.
	MaxDrawdown decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		InitialCash:        decimal.NewFromInt(100_000_000),
		HomeCurrency:       "BRL",
		Currencies:         []string{"BRL", "USD"},
		Pairs:              []string{"USDBRL"},
		CarryTicker:        "CARRY",
		RatesLike:          []string{"DI1", "DAP", "DDI"},
		Buffer:             200,
		RollLag:            1,
		RollMonth:          time.January,
		RollDay:            2,
		RankingSize:        30,
		MinVolatility:      decimal.NewFromFloat(0.05),
		MaxVolatility:      decimal.NewFromFloat(1.20),
		MinLiquidity:       decimal.NewFromInt(1_000_000),
		IssuerPrefixLen:    4,
		TargetVolatility:   decimal.NewFromFloat(0.10),
		VolatilityFloor:    decimal.NewFromFloat(0.02),
		VolatilityAlpha:    0.05,
		RebalanceThreshold: decimal.NewFromFloat(0.20),
		LotSize:            decimal.NewFromInt(1),
		StockCommission:    decimal.NewFromFloat(0.001),
		FutureCommission:   decimal.NewFromFloat(0.5),
		Slippage:           decimal.NewFromFloat(0.0002),
	}
}

func (c *Config) Validate() error {
	if c.Slippage.IsNegative() || c.Slippage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s", ErrInvalidSlippage, c.Slippage)
	}
	if c.StockCommission.IsNegative() || c.FutureCommission.IsNegative() {
		return ErrInvalidCommission
	}
	if !c.hasCurrency(c.HomeCurrency) {
		return fmt.Errorf("%w: home currency %q", ErrInvalidCurrency, c.HomeCurrency)
	}
	if c.Buffer <= 0 {
		return ErrInvalidBuffer
	}
	if c.RankingSize <= 0 {
		return ErrInvalidRanking
	}
	if c.RollDay < 1 || c.RollDay > 31 || c.RollMonth < time.January || c.RollMonth > time.December {
		return ErrInvalidRollDate
	}
	if !c.InitialCash.IsPositive() {
		return ErrInvalidCash
	}
	return nil
}

func (c *Config) hasCurrency(code string) bool {
	for _, cur := range c.Currencies {
		if cur == code {
			return true
		}
	}
	return false
}

func (c *Config) isPair(ticker string) bool {
	for _, p := range c.Pairs {
		if p == ticker {
			return true
		}
	}
	return false
}

func (c *Config) isRatesLike(assetCode string) bool {
	for _, code := range c.RatesLike {
		if code == assetCode {
			return true
		}
	}
	return false
}
