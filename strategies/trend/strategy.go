// Package trend implements a moving-average trend follower with
// inverse-volatility position sizing. The signal is computed on the
// base reference series when one exists and broadcast to every
// contract, so rolling futures chains trade off one continuous signal.
package trend

import (
	"tradesim/internal/engine"
	"tradesim/internal/indicators"
)

type Strategy struct {
	engine.Book

	Fast int
	Slow int
}

// New builds the strategy factory. Fast and slow are the moving
// average windows in trading days.
func New(fast, slow int) engine.StrategyFactory {
	return func(cfg *engine.Config, broker *engine.Broker, bases, assets map[string]*engine.Instrument) engine.Strategy {
		return &Strategy{
			Book: engine.NewBook(cfg, broker, bases, assets),
			Fast: fast,
			Slow: slow,
		}
	}
}

func (s *Strategy) Init() error {
	signal := indicators.SMACross(s.Fast, s.Slow)
	volatility := indicators.EWMAVolatility(s.Cfg.VolatilityAlpha)

	if len(s.Bases) > 0 {
		base, err := s.Base()
		if err != nil {
			return err
		}
		if err := s.I(base, engine.LineSignal, signal); err != nil {
			return err
		}
		if err := s.V(base, volatility); err != nil {
			return err
		}
		return s.Broadcast(base, s.Assets, engine.LineSignal, engine.LineVolatility)
	}

	for _, in := range s.Assets {
		if err := s.I(in, engine.LineSignal, signal); err != nil {
			return err
		}
		if err := s.V(in, volatility); err != nil {
			return err
		}
	}
	return nil
}

func (s *Strategy) Next(universe []*engine.Instrument) error {
	for _, in := range universe {
		target, err := s.Sizing(in)
		if err != nil {
			return err
		}
		if err := s.OrderTarget(in, target); err != nil {
			return err
		}
	}
	return nil
}
