package engine

import (
	"errors"
	"math"
	"testing"
)

func TestNetAndTargetExposure(t *testing.T) {
	r := newRig(t, 6, func(cfg *Config) {
		cfg.InitialCash = dec(1_000_000)
	})
	long := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	short := r.stock(t, "VALE3", constBars("VALE3", r.index, 50))
	b := r.broker

	r.advance(t)
	b.positions["PETR4"] = &Position{instrument: long, size: dec(10_000)}  // 100k long
	b.positions["VALE3"] = &Position{instrument: short, size: dec(-1_000)} // 50k short

	net, err := b.NetExposure()
	if err != nil {
		t.Fatal(err)
	}
	if !net.Equal(dec(0.05)) { // (100k - 50k) / 1m
		t.Errorf("net exposure = %s, want 0.05", net)
	}

	// A waiting order on a new ticker counts toward the target only.
	extra := r.stock(t, "ITUB4", constBars("ITUB4", r.index, 25))
	mustSubmit(t, b, extra, 4_000) // 100k long pending
	delete(b.positions, "ITUB4")   // SubmitOrder seeds an empty position

	target, err := b.TargetExposure()
	if err != nil {
		t.Fatal(err)
	}
	if !target.Equal(dec(0.15)) {
		t.Errorf("target exposure = %s, want 0.15", target)
	}

	net, err = b.NetExposure()
	if err != nil {
		t.Fatal(err)
	}
	if !net.Equal(dec(0.05)) {
		t.Errorf("net exposure with pending order = %s, want unchanged 0.05", net)
	}
}

func TestPortfolioBetaNeedsMarket(t *testing.T) {
	r := newRig(t, 6, nil)
	in := r.stock(t, "PETR4", constBars("PETR4", r.index, 10))
	b := r.broker

	r.advance(t)
	b.positions["PETR4"] = &Position{instrument: in, size: dec(100)}

	if _, err := b.PortfolioBeta(); !errors.Is(err, ErrNoMarketReference) {
		t.Fatalf("error = %v, want ErrNoMarketReference", err)
	}
}

// An instrument whose returns are exactly twice the market's has a
// beta of 2: perfect correlation, double the volatility.
func TestEWCorrelationProportionalSeries(t *testing.T) {
	market := []float64{0.01, -0.02, 0.015, 0.005, -0.01, 0.02, -0.005, 0.01}
	asset := make([]float64, len(market))
	for i, m := range market {
		asset[i] = 2 * m
	}

	corr, volRatio := ewCorrelation(asset, market, 0.1)
	if math.Abs(corr-1) > 1e-9 {
		t.Errorf("correlation = %v, want 1", corr)
	}
	if math.Abs(volRatio-2) > 1e-9 {
		t.Errorf("vol ratio = %v, want 2", volRatio)
	}
}

func TestEWCorrelationFlatSeries(t *testing.T) {
	flat := []float64{0, 0, 0, 0}
	corr, volRatio := ewCorrelation(flat, flat, 0.1)
	if corr != 0 || volRatio != 0 {
		t.Errorf("flat series: corr=%v ratio=%v, want zeros", corr, volRatio)
	}
}

func TestToReturns(t *testing.T) {
	closes := decimalsFromFloats([]float64{100, 110, 99})
	got := toReturns(closes)
	want := []float64{0.1, -0.1}
	if len(got) != len(want) {
		t.Fatalf("returns len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("return[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
