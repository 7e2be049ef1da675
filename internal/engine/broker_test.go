package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/series"
	"tradesim/types"
)

// businessDays returns n weekdays starting Monday 2021-01-04.
func businessDays(n int) []time.Time {
	out := make([]time.Time, 0, n)
	day := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	for len(out) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func decimalsFromFloats(vals []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

type rig struct {
	cfg    Config
	clock  *series.Clock
	dates  series.DateLine
	index  []time.Time
	broker *Broker
}

// newRig builds a broker over n weekdays with a one-day warm-up and
// frictionless defaults; mutate tweaks the config before wiring.
func newRig(t *testing.T, n int, mutate func(*Config)) *rig {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Buffer = 1
	cfg.Slippage = decimal.Zero
	cfg.StockCommission = decimal.Zero
	cfg.FutureCommission = decimal.Zero
	if mutate != nil {
		mutate(&cfg)
	}

	index := businessDays(n)
	clock, err := series.NewClock(n, cfg.Buffer)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	dates, err := series.NewDateLine(clock, index)
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	r := &rig{cfg: cfg, clock: clock, dates: dates, index: index}
	r.broker = newBroker(&r.cfg, clock, dates, zap.NewNop())
	return r
}

func (r *rig) advance(t *testing.T) {
	t.Helper()
	if err := r.clock.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

// constBars builds flat bars at the given price for every index date.
func constBars(ticker string, index []time.Time, price float64) []types.PriceBar {
	bars := make([]types.PriceBar, 0, len(index))
	for _, dt := range index {
		bar := types.NewPriceBar(ticker, dt, dec(price), dec(price), dec(price), dec(price))
		bar.Liquidity = dec(10_000_000)
		bars = append(bars, bar)
	}
	return bars
}

type ohlc struct{ o, h, l, c float64 }

func ohlcBars(ticker string, index []time.Time, days []ohlc) []types.PriceBar {
	bars := make([]types.PriceBar, 0, len(days))
	for i, d := range days {
		bar := types.NewPriceBar(ticker, index[i], dec(d.o), dec(d.h), dec(d.l), dec(d.c))
		bar.Liquidity = dec(10_000_000)
		bars = append(bars, bar)
	}
	return bars
}

func (r *rig) future(t *testing.T, ticker string, bars []types.PriceBar, mult float64, slip float64, maturity time.Time) *Instrument {
	t.Helper()
	m := dec(mult)
	s := dec(slip)
	in, err := newAsset(&r.cfg, ticker, r.clock, r.index, bars, AssetSpec{
		Currency:   r.cfg.HomeCurrency,
		Multiplier: &m,
		Slippage:   &s,
		Maturity:   maturity,
		Inception:  r.index[0],
	})
	if err != nil {
		t.Fatalf("future %s: %v", ticker, err)
	}
	r.broker.register(in)
	return in
}

func (r *rig) stock(t *testing.T, ticker string, bars []types.PriceBar) *Instrument {
	t.Helper()
	in, err := newAsset(&r.cfg, ticker, r.clock, r.index, bars, AssetSpec{
		Currency:  r.cfg.HomeCurrency,
		Inception: r.index[0],
	})
	if err != nil {
		t.Fatalf("stock %s: %v", ticker, err)
	}
	r.broker.register(in)
	return in
}

func (r *rig) base(t *testing.T, ticker string, bars []types.PriceBar) *Instrument {
	t.Helper()
	in, err := newBase(ticker, r.clock, r.index, bars)
	if err != nil {
		t.Fatalf("base %s: %v", ticker, err)
	}
	return in
}

func mustBoP(t *testing.T, b *Broker) {
	t.Helper()
	if err := b.BeginOfPeriod(); err != nil {
		t.Fatalf("begin of period: %v", err)
	}
}

func mustEoP(t *testing.T, b *Broker) {
	t.Helper()
	if err := b.EndOfPeriod(); err != nil {
		t.Fatalf("end of period: %v", err)
	}
}

func mustSubmit(t *testing.T, b *Broker, in *Instrument, size float64) {
	t.Helper()
	if err := b.SubmitOrder(in, dec(size), nil); err != nil {
		t.Fatalf("submit %s %v: %v", in.Ticker(), size, err)
	}
}

// TestBrokerPnLDecomposition walks the worked example of the daily
// accounting: a held position of 10, an order for 90 more filled with
// slippage, and a close well above the open. The overnight, trade and
// intraday components must sum to the day's equity change exactly.
func TestBrokerPnLDecomposition(t *testing.T) {
	r := newRig(t, 6, nil)
	bars := ohlcBars("WINZ25", r.index, []ohlc{
		{10, 10, 10, 10},
		{10, 10, 10, 10},
		{10, 10, 10, 10},
		{10, 10, 10, 10},
		{10.5, 12, 10, 12},
		{12, 12, 12, 12},
	})
	in := r.future(t, "WINZ25", bars, 1, 0.05, r.index[5])
	b := r.broker

	// Establish the overnight position of 10.
	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 10)
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b) // fills +10 at 10 * 1.05
	mustSubmit(t, b, in, 90)
	mustEoP(t, b)

	prevEquity, err := b.Equity().At(0)
	if err != nil {
		t.Fatal(err)
	}
	prevCash, err := b.Cash().At(0)
	if err != nil {
		t.Fatal(err)
	}

	// The decomposition day: open 10.5 vs previous close 10, the 90
	// lot fills at 10.5 * 1.05 = 11.025, close 12.
	r.advance(t)
	mustBoP(t, b)
	mustEoP(t, b)

	opnl, ipnl, tpnl, cpnl := b.PnL("WINZ25")
	wantOpnl := dec(5)       // 10 * (10.5 - 10)
	wantTpnl := dec(-47.25)  // 90 * (10.5 - 11.025)
	wantIpnl := dec(150)     // 100 * (12 - 10.5)
	if !opnl.Equal(wantOpnl) {
		t.Errorf("overnight pnl = %s, want %s", opnl, wantOpnl)
	}
	if !tpnl.Equal(wantTpnl) {
		t.Errorf("trade pnl = %s, want %s", tpnl, wantTpnl)
	}
	if !ipnl.Equal(wantIpnl) {
		t.Errorf("intraday pnl = %s, want %s", ipnl, wantIpnl)
	}
	if !cpnl.IsZero() {
		t.Errorf("carry pnl = %s, want 0", cpnl)
	}

	equity, err := b.Equity().At(0)
	if err != nil {
		t.Fatal(err)
	}
	gotDelta := equity.Sub(prevEquity)
	wantDelta := opnl.Add(ipnl).Add(tpnl).Add(cpnl)
	if !gotDelta.Equal(wantDelta) {
		t.Errorf("equity change = %s, want pnl sum %s", gotDelta, wantDelta)
	}

	// Futures settle their marks in cash; the slippage loss sits in
	// the trade component's price, not the cash line.
	cash, err := b.Cash().At(0)
	if err != nil {
		t.Fatal(err)
	}
	wantCashDelta := wantOpnl.Add(wantIpnl)
	if !cash.Sub(prevCash).Equal(wantCashDelta) {
		t.Errorf("cash change = %s, want %s", cash.Sub(prevCash), wantCashDelta)
	}

	pos := b.Position("WINZ25")
	if got := pos.Size(); !got.Equal(dec(100)) {
		t.Errorf("position = %s, want 100", got)
	}
}

// Stocks pay principal and commission out of cash at execution;
// mark-to-market flows touch equity only.
func TestBrokerStockCashAtExecution(t *testing.T) {
	r := newRig(t, 6, func(cfg *Config) {
		cfg.StockCommission = dec(0.001)
	})
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 100)
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b) // fills 100 at 10, commission 0.001 * 10 * 100 = 1
	mustEoP(t, b)

	cash, err := b.Cash().At(0)
	if err != nil {
		t.Fatal(err)
	}
	wantCash := r.cfg.InitialCash.Sub(dec(1001))
	if !cash.Equal(wantCash) {
		t.Errorf("cash = %s, want %s", cash, wantCash)
	}

	equity, err := b.Equity().At(0)
	if err != nil {
		t.Fatal(err)
	}
	wantEquity := r.cfg.InitialCash.Sub(dec(1))
	if !equity.Equal(wantEquity) {
		t.Errorf("equity = %s, want %s", equity, wantEquity)
	}
}

func TestBrokerInsufficientCash(t *testing.T) {
	r := newRig(t, 6, func(cfg *Config) {
		cfg.InitialCash = dec(500)
	})
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 100) // needs 1000
	mustEoP(t, b)

	r.advance(t)
	err := b.BeginOfPeriod()
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("begin of period error = %v, want ErrInsufficientCash", err)
	}
}

func TestBrokerCarryCost(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	carry := r.base(t, "CARRY", constBars("CARRY", r.index, 0.001))
	r.broker.addCarry(carry)
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 100)
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b) // fills 100 at 10
	mustEoP(t, b)

	equityBefore, err := b.Equity().At(0)
	if err != nil {
		t.Fatal(err)
	}

	r.advance(t)
	mustBoP(t, b) // carry: 100 * 1 * 10 * 0.001 = 1
	mustEoP(t, b)

	_, _, _, cpnl := b.PnL("PETR4")
	if !cpnl.Equal(dec(-1)) {
		t.Errorf("carry pnl = %s, want -1", cpnl)
	}
	equity, err := b.Equity().At(0)
	if err != nil {
		t.Fatal(err)
	}
	if !equity.Equal(equityBefore.Sub(dec(1))) {
		t.Errorf("equity = %s, want %s", equity, equityBefore.Sub(dec(1)))
	}
}

func TestBrokerOrderSupersede(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 10)
	mustSubmit(t, b, in, 20)

	order, ok := b.PendingOrder("PETR4")
	if !ok {
		t.Fatal("no pending order after resubmit")
	}
	if !order.Size().Equal(dec(20)) {
		t.Errorf("pending size = %s, want 20", order.Size())
	}

	history := b.OrderHistory()
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
	if history[0].Status() != types.OrderCancelled {
		t.Errorf("superseded order status = %v, want cancelled", history[0].Status())
	}
}

func TestBrokerZeroSizeOrderIsNoOp(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	if err := b.SubmitOrder(in, decimal.Zero, nil); err != nil {
		t.Fatalf("zero order: %v", err)
	}
	if _, ok := b.PendingOrder("PETR4"); ok {
		t.Error("zero-size order created a pending order")
	}
}

func TestBrokerLimitOrder(t *testing.T) {
	r := newRig(t, 6, nil)
	bars := ohlcBars("PETR4", r.index, []ohlc{
		{10, 10, 10, 10},
		{10, 10, 10, 10},
		{10, 11, 9.5, 10},  // limit 9 below low, no fill
		{9.8, 10, 8.5, 9},  // fills at min(9, 10, 9.8) = 9
		{9, 9, 9, 9},
		{9, 9, 9, 9},
	})
	in := r.stock(t, "PETR4", bars)
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	limit := dec(9)
	if err := b.SubmitOrder(in, dec(10), &limit); err != nil {
		t.Fatal(err)
	}
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b)
	if order, ok := b.PendingOrder("PETR4"); !ok || order.Status() != types.OrderWaiting {
		t.Fatal("infeasible limit order should stay waiting")
	}
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b)
	if _, ok := b.PendingOrder("PETR4"); ok {
		t.Fatal("limit order should have filled")
	}
	pos := b.Position("PETR4")
	if got := pos.Size(); !got.Equal(dec(10)) {
		t.Errorf("position = %s, want 10", got)
	}
	// Filled below the open: the trade component records the saving.
	_, _, tpnl, _ := b.PnL("PETR4")
	want := dec(8) // 10 * (9.8 - 9)
	if !tpnl.Equal(want) {
		t.Errorf("trade pnl = %s, want %s", tpnl, want)
	}
}

func TestBrokerClose(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 10)
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b) // fills +10
	if err := b.Close(in); err != nil {
		t.Fatal(err)
	}
	order, ok := b.PendingOrder("PETR4")
	if !ok {
		t.Fatal("close should leave a flattening order pending")
	}
	if !order.Size().Equal(dec(-10)) {
		t.Errorf("flatten size = %s, want -10", order.Size())
	}
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b)
	pos := b.Position("PETR4")
	if got := pos.Size(); !got.IsZero() {
		t.Errorf("position after close = %s, want 0", got)
	}
}

func TestBrokerCloseCancelsPendingWhenFlat(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 10)
	if err := b.Close(in); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.PendingOrder("PETR4"); ok {
		t.Error("close on a flat book should cancel the waiting order")
	}
}

// A long rates-like position is economically short the price, so its
// recorded exposure flips sign.
func TestBrokerRatesLikeExposure(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.future(t, "DI1F25", constBars("DI1F25", r.index, 10), 1, 0, r.index[5])
	b := r.broker

	r.advance(t)
	mustBoP(t, b)
	mustSubmit(t, b, in, 100)
	mustEoP(t, b)

	r.advance(t)
	mustBoP(t, b)
	mustEoP(t, b)

	records := b.Records()
	last := records[len(records)-1]
	if last.Ticker != "DI1F25" {
		t.Fatalf("last record ticker = %s", last.Ticker)
	}
	if !last.Exposure.IsNegative() {
		t.Errorf("rates-like long exposure = %s, want negative", last.Exposure)
	}
}

func TestBrokerEffectiveMultiplierFX(t *testing.T) {
	r := newRig(t, 6, nil)
	fx := r.base(t, "USDBRL", constBars("USDBRL", r.index, 5))
	r.broker.addCurrency(fx)

	m := dec(10)
	in, err := newAsset(&r.cfg, "WDOF25", r.clock, r.index, constBars("WDOF25", r.index, 100), AssetSpec{
		Currency:   "USD",
		Multiplier: &m,
		Maturity:   r.index[5],
		Inception:  r.index[0],
	})
	if err != nil {
		t.Fatal(err)
	}
	r.broker.register(in)

	r.advance(t)
	mult, err := r.broker.effectiveMultiplier(in)
	if err != nil {
		t.Fatal(err)
	}
	if !mult.Equal(dec(50)) {
		t.Errorf("effective multiplier = %s, want 50", mult)
	}
}

func TestBrokerUnknownPair(t *testing.T) {
	r := newRig(t, 6, nil)
	m := dec(10)
	in, err := newAsset(&r.cfg, "WDOF25", r.clock, r.index, constBars("WDOF25", r.index, 100), AssetSpec{
		Currency:   "USD",
		Multiplier: &m,
		Maturity:   r.index[5],
		Inception:  r.index[0],
	})
	if err != nil {
		t.Fatal(err)
	}

	r.advance(t)
	if _, err := r.broker.effectiveMultiplier(in); !errors.Is(err, ErrUnknownPair) {
		t.Fatalf("error = %v, want ErrUnknownPair", err)
	}
}
