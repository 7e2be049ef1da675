// Package indicators provides the derived-line constructors strategies
// attach to instruments: signals, moving averages and volatility
// estimates. Every constructor returns a closure computing a line of
// the same length as the instrument's price series.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"tradesim/internal/engine"
)

var (
	ErrBadWindow = errors.New("window must be positive")
	ErrBadAlpha  = errors.New("alpha must be in (0, 1]")
)

const tradingDaysPerYear = 252

// Constant returns a flat signal line, long when value is positive.
func Constant(value decimal.Decimal) engine.Indicator {
	return func(in *engine.Instrument) ([]decimal.Decimal, error) {
		line, err := in.Line(engine.LineClose)
		if err != nil {
			return nil, err
		}
		out := make([]decimal.Decimal, line.Len())
		for i := range out {
			out[i] = value
		}
		return out, nil
	}
}

// SMACross returns +1 while the fast simple moving average of closes
// sits above the slow one, -1 below, 0 until the slow window fills.
func SMACross(fast, slow int) engine.Indicator {
	return func(in *engine.Instrument) ([]decimal.Decimal, error) {
		if fast <= 0 || slow <= 0 {
			return nil, ErrBadWindow
		}
		if fast >= slow {
			return nil, fmt.Errorf("%w: fast %d must be below slow %d", ErrBadWindow, fast, slow)
		}
		closes, err := closeValues(in)
		if err != nil {
			return nil, err
		}

		fastSMA := sma(closes, fast)
		slowSMA := sma(closes, slow)

		out := make([]decimal.Decimal, len(closes))
		for i := range out {
			switch {
			case i < slow-1:
				out[i] = decimal.Zero
			case fastSMA[i].GreaterThan(slowSMA[i]):
				out[i] = decimal.NewFromInt(1)
			case fastSMA[i].LessThan(slowSMA[i]):
				out[i] = decimal.NewFromInt(-1)
			default:
				out[i] = decimal.Zero
			}
		}
		return out, nil
	}
}

// SMA returns the simple moving average of closes over the window.
func SMA(window int) engine.Indicator {
	return func(in *engine.Instrument) ([]decimal.Decimal, error) {
		if window <= 0 {
			return nil, ErrBadWindow
		}
		closes, err := closeValues(in)
		if err != nil {
			return nil, err
		}
		return sma(closes, window), nil
	}
}

// EWMAVolatility estimates annualized volatility of daily close
// returns with an exponentially weighted variance. Early entries hold
// the first estimate so sizing never divides by zero during warm-up.
func EWMAVolatility(alpha float64) engine.Indicator {
	return func(in *engine.Instrument) ([]decimal.Decimal, error) {
		if alpha <= 0 || alpha > 1 {
			return nil, ErrBadAlpha
		}
		closes, err := closeValues(in)
		if err != nil {
			return nil, err
		}

		out := make([]decimal.Decimal, len(closes))
		var ewVar float64
		seeded := false
		for i := range closes {
			if i > 0 {
				prev := closes[i-1].InexactFloat64()
				if prev != 0 {
					ret := closes[i].InexactFloat64()/prev - 1
					if !seeded {
						ewVar = ret * ret
						seeded = true
					} else {
						ewVar = alpha*ret*ret + (1-alpha)*ewVar
					}
				}
			}
			out[i] = decimal.NewFromFloat(math.Sqrt(ewVar * tradingDaysPerYear))
		}
		return out, nil
	}
}

func closeValues(in *engine.Instrument) ([]decimal.Decimal, error) {
	line, err := in.Line(engine.LineClose)
	if err != nil {
		return nil, err
	}
	return line.Values(), nil
}

func sma(values []decimal.Decimal, window int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	sum := decimal.Zero
	for i, v := range values {
		sum = sum.Add(v)
		if i >= window {
			sum = sum.Sub(values[i-window])
		}
		if i < window-1 {
			out[i] = decimal.Zero
			continue
		}
		out[i] = sum.Div(decimal.NewFromInt(int64(window)))
	}
	return out
}
