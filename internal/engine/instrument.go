package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/series"
	"tradesim/types"
)

// Line names every instrument is expected to carry after setup.
const (
	LineOpen       = "open"
	LineHigh       = "high"
	LineLow        = "low"
	LineClose      = "close"
	LineVolume     = "volume"
	LineLiquidity  = "liquidity"
	LineSignal     = "signal"
	LineVolatility = "volatility"
	LineIndicator  = "indicator"
)

var (
	ErrLineNotFound        = errors.New("line not found")
	ErrNoBars              = errors.New("instrument has no price history")
	ErrMissingMaturity     = errors.New("maturity is required for future-like instruments")
	ErrBadFutureTicker     = errors.New("future-like ticker must end with a maturity code")
	ErrLineLengthMismatch  = errors.New("line length differs from the calendar")
	ErrDuplicateInstrument = errors.New("instrument already registered")
)

// maturityMonths maps the standard futures month letters.
var maturityMonths = map[byte]time.Month{
	'F': time.January, 'G': time.February, 'H': time.March,
	'J': time.April, 'K': time.May, 'M': time.June,
	'N': time.July, 'Q': time.August, 'U': time.September,
	'V': time.October, 'X': time.November, 'Z': time.December,
}

// AssetSpec configures a tradeable instrument. A nil Multiplier means
// stock-like: multiplier 1, percent commission, cash settled at
// execution. A non-nil Multiplier means future-like: absolute
// commission, maturity required, rates-like if the derived asset code
// is configured as such.
type AssetSpec struct {
	Currency   string
	Commission *decimal.Decimal
	Multiplier *decimal.Decimal
	Slippage   *decimal.Decimal
	Maturity   time.Time
	Inception  time.Time
}

// Instrument bundles the calendar-aligned price lines of one ticker
// with its static metadata. Identity fields never change after
// construction; the line map may grow (signal, volatility, ...) but
// existing lines are never resized.
type Instrument struct {
	ticker    string
	assetCode string
	currency  string

	multiplier decimal.Decimal
	commission decimal.Decimal
	commType   types.CommissionType
	slippage   decimal.Decimal
	maturity   time.Time
	inception  time.Time

	stockLike bool
	ratesLike bool
	tradeable bool

	lines map[string]series.Line
	dates series.DateLine
	clock *series.Clock

	beta *float64 // lazily computed against the market reference
}

func newBase(ticker string, clock *series.Clock, index []time.Time, bars []types.PriceBar) (*Instrument, error) {
	in := &Instrument{
		ticker:     ticker,
		assetCode:  ticker,
		multiplier: decimal.NewFromInt(1),
	}
	if err := in.loadBars(clock, index, bars); err != nil {
		return nil, fmt.Errorf("base %s: %w", ticker, err)
	}
	return in, nil
}

func newAsset(cfg *Config, ticker string, clock *series.Clock, index []time.Time, bars []types.PriceBar, spec AssetSpec) (*Instrument, error) {
	in := &Instrument{
		ticker:    ticker,
		tradeable: true,
		currency:  spec.Currency,
		maturity:  spec.Maturity,
		inception: spec.Inception,
		slippage:  cfg.Slippage,
	}
	if in.currency == "" {
		in.currency = cfg.HomeCurrency
	}
	if !cfg.hasCurrency(in.currency) {
		return nil, fmt.Errorf("asset %s: %w: %q", ticker, ErrInvalidCurrency, in.currency)
	}
	if spec.Slippage != nil {
		in.slippage = *spec.Slippage
		if in.slippage.IsNegative() || in.slippage.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("asset %s: %w", ticker, ErrInvalidSlippage)
		}
	}

	if spec.Multiplier == nil {
		in.stockLike = true
		in.multiplier = decimal.NewFromInt(1)
		in.assetCode = ticker
		in.commType = types.CommissionPercent
		in.commission = cfg.StockCommission
	} else {
		in.multiplier = *spec.Multiplier
		in.commType = types.CommissionAbsolute
		in.commission = cfg.FutureCommission
		if spec.Maturity.IsZero() {
			return nil, fmt.Errorf("asset %s: %w", ticker, ErrMissingMaturity)
		}
		code, err := deriveAssetCode(ticker)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", ticker, err)
		}
		in.assetCode = code
		in.ratesLike = cfg.isRatesLike(code)
	}
	if spec.Commission != nil {
		in.commission = *spec.Commission
		if in.commission.IsNegative() {
			return nil, fmt.Errorf("asset %s: %w", ticker, ErrInvalidCommission)
		}
	}

	if err := in.loadBars(clock, index, bars); err != nil {
		return nil, fmt.Errorf("asset %s: %w", ticker, err)
	}
	return in, nil
}

// deriveAssetCode splits a futures ticker into its asset code,
// assuming the {code}{month letter}{2-digit year} convention,
// e.g. WINZ20 -> WIN.
func deriveAssetCode(ticker string) (string, error) {
	if len(ticker) < 4 {
		return "", ErrBadFutureTicker
	}
	m := ticker[len(ticker)-3]
	y := ticker[len(ticker)-2:]
	if _, ok := maturityMonths[m]; !ok {
		return "", ErrBadFutureTicker
	}
	for i := 0; i < len(y); i++ {
		if y[i] < '0' || y[i] > '9' {
			return "", ErrBadFutureTicker
		}
	}
	return ticker[:len(ticker)-3], nil
}

// loadBars aligns the raw bars onto the run calendar: dates are
// forward-filled, missing opens fall back to the close, and high/low
// are healed so that high >= max(open, close) >= min(open, close) >= low.
func (in *Instrument) loadBars(clock *series.Clock, index []time.Time, bars []types.PriceBar) error {
	if len(bars) == 0 {
		return ErrNoBars
	}

	byDate := make(map[time.Time]types.PriceBar, len(bars))
	for _, b := range bars {
		byDate[dateOnly(b.Date)] = b
	}

	opens := make([]decimal.Decimal, len(index))
	highs := make([]decimal.Decimal, len(index))
	lows := make([]decimal.Decimal, len(index))
	closes := make([]decimal.Decimal, len(index))
	volumes := make([]decimal.Decimal, len(index))
	liquidity := make([]decimal.Decimal, len(index))

	var last types.PriceBar
	seeded := false
	for i, dt := range index {
		bar, ok := byDate[dateOnly(dt)]
		if !ok {
			if !seeded {
				// Before the first bar: carry the nearest known close
				// flat so warm-up reads never fail. Pipelines keep
				// such dates out of the universe via inception.
				bar, ok = lastBarBefore(bars, dt)
				if !ok {
					bar = earliestBar(bars)
				}
				bar = flatBar(bar)
			} else {
				// Forward fill: a gap day carries yesterday's close
				// flat across OHLC.
				bar = flatBar(last)
			}
		}
		bar = healBar(bar)
		opens[i], highs[i], lows[i], closes[i] = bar.Open, bar.High, bar.Low, bar.Close
		volumes[i], liquidity[i] = bar.Volume, bar.Liquidity
		last = bar
		seeded = true
	}

	dates, err := series.NewDateLine(clock, index)
	if err != nil {
		return err
	}
	in.dates = dates
	in.clock = clock
	in.lines = make(map[string]series.Line, 6)
	for name, values := range map[string][]decimal.Decimal{
		LineOpen: opens, LineHigh: highs, LineLow: lows,
		LineClose: closes, LineVolume: volumes, LineLiquidity: liquidity,
	} {
		line, err := series.NewLine(clock, values)
		if err != nil {
			return err
		}
		in.lines[name] = line
	}
	return nil
}

// flatBar collapses a bar to its close: used for filled gap days.
func flatBar(b types.PriceBar) types.PriceBar {
	return types.PriceBar{
		Open:      b.Close,
		High:      b.Close,
		Low:       b.Close,
		Close:     b.Close,
		Liquidity: b.Liquidity,
		HasOpen:   true,
		HasHigh:   true,
		HasLow:    true,
	}
}

func earliestBar(bars []types.PriceBar) types.PriceBar {
	best := bars[0]
	for _, b := range bars[1:] {
		if b.Date.Before(best.Date) {
			best = b
		}
	}
	return best
}

func lastBarBefore(bars []types.PriceBar, dt time.Time) (types.PriceBar, bool) {
	var best types.PriceBar
	found := false
	for _, b := range bars {
		if b.Date.Before(dt) && (!found || b.Date.After(best.Date)) {
			best = b
			found = true
		}
	}
	return best, found
}

func healBar(b types.PriceBar) types.PriceBar {
	if !b.HasOpen || b.Open.IsZero() {
		b.Open = b.Close
	}
	if !b.HasHigh || b.High.IsZero() {
		b.High = decimal.Max(b.Open, b.Close)
	}
	if !b.HasLow || b.Low.IsZero() {
		b.Low = decimal.Min(b.Open, b.Close)
	}
	b.High = decimal.Max(b.High, b.Open, b.Close)
	b.Low = decimal.Min(b.Low, b.Open, b.Close)
	return b
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (in *Instrument) Ticker() string { return in.ticker }

// AssetCode is the issuer/commodity part of the ticker (WINZ20 -> WIN;
// equals the ticker for stock-like instruments).
func (in *Instrument) AssetCode() string { return in.assetCode }

func (in *Instrument) Currency() string { return in.currency }

func (in *Instrument) Multiplier() decimal.Decimal { return in.multiplier }

func (in *Instrument) Commission() decimal.Decimal { return in.commission }

func (in *Instrument) CommissionType() types.CommissionType { return in.commType }

func (in *Instrument) Slippage() decimal.Decimal { return in.slippage }

func (in *Instrument) Maturity() time.Time { return in.maturity }

func (in *Instrument) Inception() time.Time { return in.inception }

func (in *Instrument) StockLike() bool { return in.stockLike }

func (in *Instrument) RatesLike() bool { return in.ratesLike }

// CashLike instruments accrue the daily carry cost against cash.
func (in *Instrument) CashLike() bool { return in.stockLike || in.ratesLike }

func (in *Instrument) Tradeable() bool { return in.tradeable }

// Line returns the named line. Unknown names are an error, never a
// silent zero series.
func (in *Instrument) Line(name string) (series.Line, error) {
	line, ok := in.lines[name]
	if !ok {
		return series.Line{}, fmt.Errorf("%s: %w: %q", in.ticker, ErrLineNotFound, name)
	}
	return line, nil
}

func (in *Instrument) HasLine(name string) bool {
	_, ok := in.lines[name]
	return ok
}

// At reads the named line at the given cursor offset.
func (in *Instrument) At(name string, offset int) (decimal.Decimal, error) {
	line, err := in.Line(name)
	if err != nil {
		return decimal.Decimal{}, err
	}
	v, err := line.At(offset)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s.%s: %w", in.ticker, name, err)
	}
	return v, nil
}

// AddLine attaches a derived line (signal, volatility, ...). The line
// must cover the whole calendar.
func (in *Instrument) AddLine(name string, line series.Line) error {
	if line.Len() != in.dates.Len() {
		return fmt.Errorf("%s.%s: %w", in.ticker, name, ErrLineLengthMismatch)
	}
	in.lines[name] = line
	return nil
}

// AddLineValues wraps raw values into a line on the instrument's
// clock and attaches it.
func (in *Instrument) AddLineValues(name string, values []decimal.Decimal) error {
	line, err := series.NewLine(in.clock, values)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", in.ticker, name, ErrLineLengthMismatch)
	}
	return in.AddLine(name, line)
}

// Date returns the calendar date at offset 0.
func (in *Instrument) Date() (time.Time, error) {
	return in.dates.Today()
}

func (in *Instrument) Lines() []string {
	names := make([]string, 0, len(in.lines))
	for name := range in.lines {
		names = append(names, name)
	}
	return names
}
