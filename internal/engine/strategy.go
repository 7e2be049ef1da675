package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrIndicator     = errors.New("indicator computation failed")
	ErrMissingSignal = errors.New("instrument carries no signal line")
)

// Strategy consumes the day's universe and submits orders. Init runs
// once before the loop (declare indicators there); Next runs once per
// date after the pipeline has selected the universe.
type Strategy interface {
	Init() error
	Next(universe []*Instrument) error
}

// StrategyFactory builds a strategy once the broker and registries
// exist.
type StrategyFactory func(cfg *Config, broker *Broker, bases, assets map[string]*Instrument) Strategy

// Indicator is a pure function from an instrument to a derived line of
// the same length. Errors propagate as configuration errors.
type Indicator func(*Instrument) ([]decimal.Decimal, error)

// Book is the base every concrete strategy embeds: indicator
// registration, line broadcasting, inverse-volatility sizing and
// threshold-guarded order targeting.
type Book struct {
	Cfg    *Config
	Broker *Broker
	Bases  map[string]*Instrument
	Assets map[string]*Instrument
}

func NewBook(cfg *Config, broker *Broker, bases, assets map[string]*Instrument) Book {
	return Book{Cfg: cfg, Broker: broker, Bases: bases, Assets: assets}
}

// I computes fn over the instrument and attaches the result under
// name. Indicator failures are configuration errors, never swallowed.
func (b *Book) I(in *Instrument, name string, fn Indicator) error {
	values, err := fn(in)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %v", ErrIndicator, name, in.Ticker(), err)
	}
	if err := in.AddLineValues(name, values); err != nil {
		return fmt.Errorf("%w: %s on %s: %v", ErrIndicator, name, in.Ticker(), err)
	}
	return nil
}

// V attaches fn's result as the instrument's volatility line.
func (b *Book) V(in *Instrument, fn Indicator) error {
	return b.I(in, LineVolatility, fn)
}

// Broadcast copies the named lines of a base onto every asset, so a
// signal computed once on a reference series drives all contracts.
func (b *Book) Broadcast(base *Instrument, assets map[string]*Instrument, names ...string) error {
	for _, name := range names {
		line, err := base.Line(name)
		if err != nil {
			return err
		}
		for _, ticker := range sortedInstruments(assets) {
			if err := assets[ticker].AddLine(name, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// Base returns the first base by ticker order; convenient for
// single-base strategies.
func (b *Book) Base() (*Instrument, error) {
	tickers := sortedInstruments(b.Bases)
	if len(tickers) == 0 {
		return nil, errors.New("no base registered")
	}
	return b.Bases[tickers[0]], nil
}

// Sizing computes the target size for an instrument: the signal
// direction times target_vol/instrument_vol (floored), scaled by
// current equity and divided by the currency-adjusted price, rounded
// to the lot size.
func (b *Book) Sizing(in *Instrument) (decimal.Decimal, error) {
	if !in.HasLine(LineSignal) {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", in.Ticker(), ErrMissingSignal)
	}
	signal, err := in.At(LineSignal, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if signal.IsZero() {
		return decimal.Zero, nil
	}
	vol, err := in.At(LineVolatility, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if vol.LessThan(b.Cfg.VolatilityFloor) {
		vol = b.Cfg.VolatilityFloor
	}
	if vol.IsZero() {
		return decimal.Zero, nil
	}

	equity, err := b.Broker.Equity().At(0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	close0, err := in.At(LineClose, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	mult, err := b.Broker.effectiveMultiplier(in)
	if err != nil {
		return decimal.Decimal{}, err
	}
	price := close0.Mul(mult)
	if price.IsZero() {
		return decimal.Zero, nil
	}

	size := signal.Mul(b.Cfg.TargetVolatility).Div(vol).Mul(equity).Div(price)
	return roundLot(size, b.Cfg.LotSize), nil
}

// OrderTarget submits the order bringing the position to target,
// unless the change is within the rebalance threshold of the current
// position. The hysteresis keeps signal noise from churning orders.
func (b *Book) OrderTarget(in *Instrument, target decimal.Decimal) error {
	pos := b.Broker.Position(in.Ticker())
	current := pos.Size()
	delta := target.Sub(current)
	if delta.IsZero() {
		return nil
	}
	if !current.IsZero() {
		if delta.Abs().LessThanOrEqual(b.Cfg.RebalanceThreshold.Mul(current.Abs())) {
			return nil
		}
	}
	return b.Broker.SubmitOrder(in, delta, nil)
}

// Buy submits a market (or limit) order for a positive size.
func (b *Book) Buy(in *Instrument, size decimal.Decimal, limit *decimal.Decimal) error {
	return b.Broker.SubmitOrder(in, size.Abs(), limit)
}

// Sell submits a market (or limit) order for a negative size.
func (b *Book) Sell(in *Instrument, size decimal.Decimal, limit *decimal.Decimal) error {
	return b.Broker.SubmitOrder(in, size.Abs().Neg(), limit)
}

// roundLot rounds toward zero direction-preservingly: floor for longs,
// ceil for shorts, in units of the lot size.
func roundLot(size, lot decimal.Decimal) decimal.Decimal {
	if lot.IsZero() || lot.Equal(decimal.NewFromInt(1)) {
		if size.IsNegative() {
			return size.Ceil()
		}
		return size.Floor()
	}
	lots := size.Div(lot)
	if size.IsNegative() {
		lots = lots.Ceil()
	} else {
		lots = lots.Floor()
	}
	return lots.Mul(lot)
}
