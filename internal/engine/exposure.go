package engine

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var ErrNoMarketReference = errors.New("no market reference configured for beta")

// NetExposure is the exposure-weighted sum over held positions.
func (b *Broker) NetExposure() (decimal.Decimal, error) {
	return b.sumExposure(false, false)
}

// TargetExposure is NetExposure adjusted by waiting orders.
func (b *Broker) TargetExposure() (decimal.Decimal, error) {
	return b.sumExposure(true, false)
}

// PortfolioBeta is the beta-weighted exposure against the configured
// market reference.
func (b *Broker) PortfolioBeta() (decimal.Decimal, error) {
	return b.sumExposure(false, true)
}

// TargetPortfolioBeta is PortfolioBeta adjusted by waiting orders.
func (b *Broker) TargetPortfolioBeta() (decimal.Decimal, error) {
	return b.sumExposure(true, true)
}

func (b *Broker) sumExposure(withOrders, weighted bool) (decimal.Decimal, error) {
	total := decimal.Zero
	seen := make(map[string]bool)

	add := func(in *Instrument, size decimal.Decimal) error {
		exp, err := b.exposure(in, size)
		if err != nil {
			return err
		}
		if weighted {
			beta, err := b.instrumentBeta(in)
			if err != nil {
				return err
			}
			exp = exp.Mul(decimal.NewFromFloat(beta))
		}
		total = total.Add(exp)
		return nil
	}

	for _, ticker := range sortedPositions(b.positions) {
		pos := b.positions[ticker]
		size := pos.size
		if withOrders {
			if order, ok := b.pending[ticker]; ok {
				size = size.Add(order.Size())
			}
		}
		seen[ticker] = true
		if err := add(pos.instrument, size); err != nil {
			return decimal.Decimal{}, err
		}
	}
	if withOrders {
		// Orders may imply positions not yet held.
		for _, ticker := range sortedOrders(b.pending) {
			if seen[ticker] {
				continue
			}
			order := b.pending[ticker]
			if err := add(order.instrument, order.Size()); err != nil {
				return decimal.Decimal{}, err
			}
		}
	}
	return total, nil
}

// instrumentBeta is the exponentially-weighted correlation of the
// instrument vs. market close returns, scaled by the ratio of their
// volatilities. Computed lazily and cached on the instrument.
func (b *Broker) instrumentBeta(in *Instrument) (float64, error) {
	if in.beta != nil {
		return *in.beta, nil
	}
	if b.market == nil {
		return 0, ErrNoMarketReference
	}

	closeLine, err := in.Line(LineClose)
	if err != nil {
		return 0, err
	}
	marketLine, err := b.market.Line(LineClose)
	if err != nil {
		return 0, err
	}

	assetRet := toReturns(closeLine.History())
	marketRet := toReturns(marketLine.History())
	n := len(assetRet)
	if len(marketRet) < n {
		n = len(marketRet)
	}
	if n < 2 {
		return 0, nil
	}
	assetRet = assetRet[len(assetRet)-n:]
	marketRet = marketRet[len(marketRet)-n:]

	corr, volRatio := ewCorrelation(assetRet, marketRet, b.cfg.VolatilityAlpha)
	beta := corr * volRatio
	in.beta = &beta
	return beta, nil
}

func toReturns(closes []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1].InexactFloat64()
		cur := closes[i].InexactFloat64()
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, cur/prev-1)
	}
	return out
}

// ewCorrelation returns the EW correlation of a vs. m and the ratio of
// their EW standard deviations (asset over market).
func ewCorrelation(a, m []float64, alpha float64) (corr, volRatio float64) {
	var meanA, meanM, varA, varM, cov float64
	init := false
	for i := range a {
		if !init {
			meanA, meanM = a[i], m[i]
			init = true
			continue
		}
		dA := a[i] - meanA
		dM := m[i] - meanM
		meanA += alpha * dA
		meanM += alpha * dM
		varA = (1 - alpha) * (varA + alpha*dA*dA)
		varM = (1 - alpha) * (varM + alpha*dM*dM)
		cov = (1 - alpha) * (cov + alpha*dA*dM)
	}
	if varA <= 0 || varM <= 0 {
		return 0, 0
	}
	sdA, sdM := math.Sqrt(varA), math.Sqrt(varM)
	return cov / (sdA * sdM), sdA / sdM
}
