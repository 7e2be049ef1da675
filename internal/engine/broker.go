package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/series"
	"tradesim/types"
)

var (
	ErrInsufficientCash = errors.New("execution would drive cash negative")
	ErrUnknownPair      = errors.New("no FX pair registered for currency conversion")
	ErrNotTradeable     = errors.New("orders are only accepted for tradeable instruments")
)

// Broker owns the ledger and the order/position books, and runs the
// two accounting phases of every simulated day. Cash and equity are
// kept as cursor-aligned lines so the whole ledger shares the run's
// clock.
type Broker struct {
	cfg   *Config
	log   *zap.Logger
	clock *series.Clock
	dates series.DateLine

	cash       series.Line
	openEquity series.Line
	equity     series.Line

	pending   map[string]*Order // at most one waiting order per ticker
	history   []*Order          // executed and cancelled orders, audit only
	positions map[string]*Position

	instruments map[string]*Instrument // tradeable registry, for records
	currencies  map[string]*Instrument // FX pair ticker -> base
	carry       *Instrument
	market      *Instrument // beta reference

	opnl map[string]decimal.Decimal
	ipnl map[string]decimal.Decimal
	tpnl map[string]decimal.Decimal
	cpnl map[string]decimal.Decimal

	records     []types.Record
	carryWarned bool
}

func newBroker(cfg *Config, clock *series.Clock, dates series.DateLine, log *zap.Logger) *Broker {
	return &Broker{
		cfg:         cfg,
		log:         log,
		clock:       clock,
		dates:       dates,
		cash:        series.NewConstLine(clock, cfg.InitialCash),
		openEquity:  series.NewConstLine(clock, cfg.InitialCash),
		equity:      series.NewConstLine(clock, cfg.InitialCash),
		pending:     make(map[string]*Order),
		positions:   make(map[string]*Position),
		instruments: make(map[string]*Instrument),
		currencies:  make(map[string]*Instrument),
		opnl:        make(map[string]decimal.Decimal),
		ipnl:        make(map[string]decimal.Decimal),
		tpnl:        make(map[string]decimal.Decimal),
		cpnl:        make(map[string]decimal.Decimal),
	}
}

func (b *Broker) register(in *Instrument) { b.instruments[in.Ticker()] = in }

func (b *Broker) addCurrency(base *Instrument) { b.currencies[base.Ticker()] = base }

func (b *Broker) addCarry(base *Instrument) { b.carry = base }

func (b *Broker) setMarket(base *Instrument) { b.market = base }

// SubmitOrder stores a new waiting order for the instrument. A zero
// size is a no-op. An outstanding order for the same instrument is
// cancelled first; if it was still waiting that is worth a warning,
// since the strategy is churning faster than the fills.
func (b *Broker) SubmitOrder(in *Instrument, size decimal.Decimal, limit *decimal.Decimal) error {
	if size.IsZero() {
		return nil
	}
	if !in.Tradeable() {
		return fmt.Errorf("%s: %w", in.Ticker(), ErrNotTradeable)
	}
	today, err := b.dates.Today()
	if err != nil {
		return err
	}

	if old, ok := b.pending[in.Ticker()]; ok {
		if old.Status() == types.OrderWaiting {
			b.log.Warn("cancelling superseded order",
				zap.String("ticker", old.Ticker()),
				zap.String("size", old.Size().String()),
				zap.Time("issued", old.IssueDate()),
			)
		}
		old.cancel()
		b.history = append(b.history, old)
		delete(b.pending, in.Ticker())
	}

	order, err := newOrder(in, size, limit, today)
	if err != nil {
		return err
	}
	b.pending[in.Ticker()] = order

	// Guarantee the position exists so downstream lookups never miss.
	if _, ok := b.positions[in.Ticker()]; !ok {
		b.positions[in.Ticker()] = &Position{instrument: in}
	}
	return nil
}

// Close requests a market order flattening the instrument's position.
// Pipelines call this when an instrument falls out of the universe;
// the broker executes it on the next begin-of-period.
func (b *Broker) Close(in *Instrument) error {
	pos, ok := b.positions[in.Ticker()]
	if !ok || pos.size.IsZero() {
		// Nothing held; drop any waiting order so the dead instrument
		// cannot be entered after leaving the universe.
		if old, ok := b.pending[in.Ticker()]; ok {
			old.cancel()
			b.history = append(b.history, old)
			delete(b.pending, in.Ticker())
		}
		return nil
	}
	return b.SubmitOrder(in, pos.size.Neg(), nil)
}

// BeginOfPeriod is accounting phase one: roll the ledger forward,
// mark positions to the day's open, charge carry, then try every
// waiting order against the new bar.
func (b *Broker) BeginOfPeriod() error {
	b.opnl = make(map[string]decimal.Decimal)
	b.ipnl = make(map[string]decimal.Decimal)
	b.tpnl = make(map[string]decimal.Decimal)
	b.cpnl = make(map[string]decimal.Decimal)

	prevCash, err := b.cash.At(-1)
	if err != nil {
		return err
	}
	prevEquity, err := b.equity.At(-1)
	if err != nil {
		return err
	}
	if err := b.cash.Set(0, prevCash); err != nil {
		return err
	}
	if err := b.openEquity.Set(0, prevEquity); err != nil {
		return err
	}
	if err := b.equity.Set(0, prevEquity); err != nil {
		return err
	}

	for _, ticker := range sortedPositions(b.positions) {
		pos := b.positions[ticker]
		in := pos.instrument

		open0, err := in.At(LineOpen, 0)
		if err != nil {
			return err
		}
		closePrev, err := in.At(LineClose, -1)
		if err != nil {
			return err
		}
		mult, err := b.effectiveMultiplier(in)
		if err != nil {
			return err
		}

		mtm := pos.size.Mul(open0.Sub(closePrev)).Mul(mult)
		if err := b.openEquity.Add(0, mtm); err != nil {
			return err
		}
		if err := b.equity.Add(0, mtm); err != nil {
			return err
		}
		b.opnl[ticker] = b.opnl[ticker].Add(mtm)
		if !in.StockLike() {
			if err := b.cash.Add(0, mtm); err != nil {
				return err
			}
		}

		if in.CashLike() && !pos.size.IsZero() {
			if err := b.applyCarry(pos, closePrev, mult); err != nil {
				return err
			}
		}
	}

	for _, ticker := range sortedOrders(b.pending) {
		order := b.pending[ticker]
		done, err := b.executeOrder(order)
		if err != nil {
			return err
		}
		if done {
			delete(b.pending, ticker)
			b.history = append(b.history, order)
		}
	}
	return nil
}

func (b *Broker) applyCarry(pos *Position, closePrev, mult decimal.Decimal) error {
	if b.carry == nil {
		if !b.carryWarned {
			b.log.Warn("cash-like position held but no carry rate configured",
				zap.String("ticker", pos.Ticker()),
			)
			b.carryWarned = true
		}
		return nil
	}
	rate, err := b.carry.At(LineClose, 0)
	if err != nil {
		return err
	}
	cost := pos.size.Mul(mult).Mul(closePrev).Mul(rate)
	for _, line := range []series.Line{b.cash, b.equity, b.openEquity} {
		if err := line.Add(0, cost.Neg()); err != nil {
			return err
		}
	}
	b.cpnl[pos.Ticker()] = b.cpnl[pos.Ticker()].Sub(cost)
	return nil
}

// executeOrder tries to fill one waiting order against today's bar.
// It reports whether the order reached a terminal state; infeasible
// limit orders stay waiting for the next period.
func (b *Broker) executeOrder(order *Order) (bool, error) {
	in := order.instrument

	open0, err := in.At(LineOpen, 0)
	if err != nil {
		return false, err
	}
	if open0.IsZero() {
		// No usable price this period; skip, keep waiting.
		b.log.Warn("no price available at execution, order skipped",
			zap.String("ticker", order.Ticker()),
		)
		return false, nil
	}

	side := decimal.NewFromInt(1)
	if !order.isBuy() {
		side = decimal.NewFromInt(-1)
	}
	slip := decimal.NewFromInt(1).Add(side.Mul(in.Slippage()))

	var price decimal.Decimal
	if limit, ok := order.Limit(); ok {
		high0, err := in.At(LineHigh, 0)
		if err != nil {
			return false, err
		}
		low0, err := in.At(LineLow, 0)
		if err != nil {
			return false, err
		}
		if order.isBuy() {
			if limit.LessThan(low0) {
				return false, nil // unreachable today, retry next period
			}
			price = decimal.Min(limit, high0, open0)
		} else {
			if limit.GreaterThan(high0) {
				return false, nil
			}
			price = decimal.Max(limit, high0, open0)
		}
		price = price.Mul(slip)
	} else {
		price = open0.Mul(slip)
	}

	mult, err := b.effectiveMultiplier(in)
	if err != nil {
		return false, err
	}

	commission := in.Commission()
	if in.CommissionType() == types.CommissionPercent {
		commission = commission.Mul(price)
	}
	commTotal := commission.Mul(order.size.Abs())

	cashDelta := commTotal.Neg()
	if in.StockLike() {
		cashDelta = cashDelta.Sub(order.size.Mul(price))
	}
	cash0, err := b.cash.At(0)
	if err != nil {
		return false, err
	}
	if cash0.Add(cashDelta).IsNegative() {
		return false, fmt.Errorf("%s: %w: cash %s, delta %s",
			order.Ticker(), ErrInsufficientCash, cash0, cashDelta)
	}

	mtm := order.size.Mul(open0.Sub(price)).Mul(mult)

	if err := b.cash.Add(0, cashDelta); err != nil {
		return false, err
	}
	if err := b.equity.Add(0, commTotal.Neg().Add(mtm)); err != nil {
		return false, err
	}
	if err := b.openEquity.Add(0, mtm); err != nil {
		return false, err
	}
	b.tpnl[order.Ticker()] = b.tpnl[order.Ticker()].Sub(commTotal).Add(mtm)

	pos := b.positions[order.Ticker()]
	if pos == nil {
		pos = &Position{instrument: in}
		b.positions[order.Ticker()] = pos
	}
	pos.size = pos.size.Add(order.size)
	if pos.size.IsZero() {
		delete(b.positions, order.Ticker())
	}

	today, err := b.dates.Today()
	if err != nil {
		return false, err
	}
	order.execute(today)
	return true, nil
}

// EndOfPeriod is accounting phase two: mark every position (including
// ones opened this same period) from open to close, then append one
// trade record per tradeable instrument.
func (b *Broker) EndOfPeriod() error {
	for _, ticker := range sortedPositions(b.positions) {
		pos := b.positions[ticker]
		in := pos.instrument

		open0, err := in.At(LineOpen, 0)
		if err != nil {
			return err
		}
		close0, err := in.At(LineClose, 0)
		if err != nil {
			return err
		}
		mult, err := b.effectiveMultiplier(in)
		if err != nil {
			return err
		}

		mtm := pos.size.Mul(close0.Sub(open0)).Mul(mult)
		if err := b.equity.Add(0, mtm); err != nil {
			return err
		}
		b.ipnl[ticker] = b.ipnl[ticker].Add(mtm)
		if !in.StockLike() {
			if err := b.cash.Add(0, mtm); err != nil {
				return err
			}
		}
	}

	today, err := b.dates.Today()
	if err != nil {
		return err
	}
	for _, ticker := range sortedInstruments(b.instruments) {
		rec, err := b.buildRecord(b.instruments[ticker], today)
		if err != nil {
			return err
		}
		b.records = append(b.records, rec)
	}
	return nil
}

func (b *Broker) buildRecord(in *Instrument, today time.Time) (types.Record, error) {
	ticker := in.Ticker()

	var size decimal.Decimal
	if pos, ok := b.positions[ticker]; ok {
		size = pos.size
	}
	target := size
	if order, ok := b.pending[ticker]; ok {
		target = target.Add(order.Size())
	}

	exposure, err := b.exposure(in, size)
	if err != nil {
		return types.Record{}, err
	}
	targetExposure, err := b.exposure(in, target)
	if err != nil {
		return types.Record{}, err
	}

	rec := types.Record{
		Date:           today,
		Ticker:         ticker,
		Size:           size,
		OvernightPnL:   b.opnl[ticker],
		IntradayPnL:    b.ipnl[ticker],
		TradePnL:       b.tpnl[ticker],
		CarryPnL:       b.cpnl[ticker],
		Exposure:       exposure,
		TargetExposure: targetExposure,
	}
	if in.HasLine(LineSignal) {
		rec.Signal, err = in.At(LineSignal, 0)
		if err != nil {
			return types.Record{}, err
		}
	}
	if in.HasLine(LineVolatility) {
		rec.Volatility, err = in.At(LineVolatility, 0)
		if err != nil {
			return types.Record{}, err
		}
	}
	return rec, nil
}

// exposure is size * effective multiplier * close / equity, with the
// sign flipped for rates-like instruments (a long rate position is a
// short price position).
func (b *Broker) exposure(in *Instrument, size decimal.Decimal) (decimal.Decimal, error) {
	if size.IsZero() {
		return decimal.Zero, nil
	}
	close0, err := in.At(LineClose, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	mult, err := b.effectiveMultiplier(in)
	if err != nil {
		return decimal.Decimal{}, err
	}
	equity0, err := b.equity.At(0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if equity0.IsZero() {
		return decimal.Zero, nil
	}
	exp := size.Mul(mult).Mul(close0).Div(equity0)
	if in.RatesLike() {
		exp = exp.Neg()
	}
	return exp, nil
}

// effectiveMultiplier converts the instrument multiplier to the home
// currency using the close of the registered FX pair.
func (b *Broker) effectiveMultiplier(in *Instrument) (decimal.Decimal, error) {
	mult := in.Multiplier()
	if in.Currency() == "" || in.Currency() == b.cfg.HomeCurrency {
		return mult, nil
	}
	pair := in.Currency() + b.cfg.HomeCurrency
	base, ok := b.currencies[pair]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%s: %w: %s", in.Ticker(), ErrUnknownPair, pair)
	}
	fx, err := base.At(LineClose, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return mult.Mul(fx), nil
}

func (b *Broker) Cash() series.Line { return b.cash }

func (b *Broker) OpenEquity() series.Line { return b.openEquity }

func (b *Broker) Equity() series.Line { return b.equity }

// Position returns the current position for the ticker; the zero
// position if none is held.
func (b *Broker) Position(ticker string) Position {
	if pos, ok := b.positions[ticker]; ok {
		return *pos
	}
	return Position{}
}

// PendingOrder returns the waiting order for the ticker, if any.
func (b *Broker) PendingOrder(ticker string) (*Order, bool) {
	order, ok := b.pending[ticker]
	return order, ok
}

// OrderHistory returns executed and cancelled orders, oldest first.
func (b *Broker) OrderHistory() []*Order {
	out := make([]*Order, len(b.history))
	copy(out, b.history)
	return out
}

func (b *Broker) Records() []types.Record {
	out := make([]types.Record, len(b.records))
	copy(out, b.records)
	return out
}

// PnL returns the four accumulators for a ticker in the current
// period: overnight, intraday, trade, carry.
func (b *Broker) PnL(ticker string) (opnl, ipnl, tpnl, cpnl decimal.Decimal) {
	return b.opnl[ticker], b.ipnl[ticker], b.tpnl[ticker], b.cpnl[ticker]
}

func sortedPositions(m map[string]*Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedOrders(m map[string]*Order) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedInstruments(m map[string]*Instrument) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
