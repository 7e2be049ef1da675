package engine

import (
	"github.com/shopspring/decimal"
)

// Position is the held size of one instrument. Positions are owned by
// the broker: created on first order submission (at size zero so
// lookups always succeed), mutated by executions, and removed when the
// size returns to exactly zero.
type Position struct {
	instrument *Instrument
	size       decimal.Decimal
}

func (p *Position) Instrument() *Instrument { return p.instrument }

func (p *Position) Ticker() string { return p.instrument.Ticker() }

func (p *Position) Size() decimal.Decimal { return p.size }
