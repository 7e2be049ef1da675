package engine

import (
	"errors"
	"sort"
	"time"

	"tradesim/internal/series"
)

var ErrEmptyChain = errors.New("futures chain exhausted")

// Pipeline computes, once per date, the subset of instruments eligible
// for trading. A pipeline that drops an instrument from the universe
// must request the flatten itself (Broker.Close); the broker executes
// it next period.
type Pipeline interface {
	Init() error
	Next() ([]*Instrument, error)
}

// PipelineFactory builds a pipeline once the broker and asset registry
// exist. Backtest calls it during construction.
type PipelineFactory func(cfg *Config, broker *Broker, dates series.DateLine, assets map[string]*Instrument) Pipeline

// Single returns the full configured instrument set, permanently.
type Single struct {
	assets   map[string]*Instrument
	universe []*Instrument
}

func NewSingle(_ *Config, _ *Broker, _ series.DateLine, assets map[string]*Instrument) Pipeline {
	return &Single{assets: assets}
}

func (p *Single) Init() error {
	p.universe = sortedUniverse(p.assets)
	return nil
}

func (p *Single) Next() ([]*Instrument, error) {
	return p.universe, nil
}

// Rolling trades the front-month contract of a maturity-ascending
// futures chain, flattening and adopting the next contract when the
// lag-adjusted reference date passes the current maturity.
type Rolling struct {
	cfg    *Config
	broker *Broker
	dates  series.DateLine
	assets map[string]*Instrument

	chain   []*Instrument // maturity ascending; chain[0] is current
	current *Instrument
}

func NewRolling(cfg *Config, broker *Broker, dates series.DateLine, assets map[string]*Instrument) Pipeline {
	return &Rolling{cfg: cfg, broker: broker, dates: dates, assets: assets}
}

func (p *Rolling) Init() error {
	p.chain = maturityChain(p.assets)
	if len(p.chain) == 0 {
		return ErrEmptyChain
	}
	p.current = p.chain[0]
	p.chain = p.chain[1:]
	return nil
}

func (p *Rolling) Next() ([]*Instrument, error) {
	ref, err := laggedDate(p.dates, p.cfg.RollLag)
	if err != nil {
		return nil, err
	}
	for ref.After(p.current.Maturity()) {
		if err := p.broker.Close(p.current); err != nil {
			return nil, err
		}
		if len(p.chain) == 0 {
			return nil, ErrEmptyChain
		}
		p.current = p.chain[0]
		p.chain = p.chain[1:]
	}
	return []*Instrument{p.current}, nil
}

// Vertice holds the whole live chain for fixed-tenor curve trading.
// On the configured roll date each year the shortest contract is
// flattened and dropped; tenor picking is the strategy's job.
type Vertice struct {
	cfg    *Config
	broker *Broker
	dates  series.DateLine
	assets map[string]*Instrument

	chain   []*Instrument // maturity ascending
	refYear int
}

func NewVertice(cfg *Config, broker *Broker, dates series.DateLine, assets map[string]*Instrument) Pipeline {
	return &Vertice{cfg: cfg, broker: broker, dates: dates, assets: assets}
}

func (p *Vertice) Init() error {
	p.chain = maturityChain(p.assets)
	if len(p.chain) == 0 {
		return ErrEmptyChain
	}
	p.refYear = p.chain[0].Maturity().Year()
	return nil
}

func (p *Vertice) rollDate() time.Time {
	return time.Date(p.refYear, p.cfg.RollMonth, p.cfg.RollDay, 0, 0, 0, 0, time.UTC)
}

func (p *Vertice) Next() ([]*Instrument, error) {
	ref, err := laggedDate(p.dates, p.cfg.RollLag)
	if err != nil {
		return nil, err
	}
	for ref.After(p.rollDate()) {
		if err := p.broker.Close(p.chain[0]); err != nil {
			return nil, err
		}
		p.chain = p.chain[1:]
		if len(p.chain) == 0 {
			return nil, ErrEmptyChain
		}
		p.refYear = p.chain[0].Maturity().Year()
	}
	out := make([]*Instrument, len(p.chain))
	copy(out, p.chain)
	return out, nil
}

// Ranking re-scores the cross-section once per trading week: filters
// to instruments inside their inception/maturity window and the
// configured liquidity/volatility bands, ranks by indicator value and
// picks the best N, never selecting two tickers that share the issuer
// prefix. Instruments falling out of the selection are flattened.
type Ranking struct {
	cfg    *Config
	broker *Broker
	dates  series.DateLine
	assets map[string]*Instrument

	volAdjusted bool
	universe    []*Instrument
}

func NewRanking(cfg *Config, broker *Broker, dates series.DateLine, assets map[string]*Instrument) Pipeline {
	return &Ranking{cfg: cfg, broker: broker, dates: dates, assets: assets}
}

// NewVARanking ranks by indicator divided by volatility, which turns a
// momentum-style score into a sharpe-style one.
func NewVARanking(cfg *Config, broker *Broker, dates series.DateLine, assets map[string]*Instrument) Pipeline {
	return &Ranking{cfg: cfg, broker: broker, dates: dates, assets: assets, volAdjusted: true}
}

func (p *Ranking) Init() error {
	p.universe = nil
	return nil
}

func (p *Ranking) Next() ([]*Instrument, error) {
	today, err := p.dates.Today()
	if err != nil {
		return nil, err
	}
	next, err := laggedDate(p.dates, 1)
	if err != nil {
		return nil, err
	}
	// The weekday dropping at the next trading day marks the last day
	// of the trading week; rebalancing here means the resulting orders
	// fill at the new week's first open. The first call always
	// rebalances.
	if p.universe != nil && int(today.Weekday()) <= int(next.Weekday()) {
		return p.universe, nil
	}

	type scored struct {
		in    *Instrument
		score float64
	}
	var candidates []scored
	for _, ticker := range sortedInstruments(p.assets) {
		in := p.assets[ticker]
		ok, err := p.eligible(in, today)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ind, err := in.At(LineIndicator, 0)
		if err != nil {
			return nil, err
		}
		score := ind.InexactFloat64()
		if p.volAdjusted {
			vol, err := in.At(LineVolatility, 0)
			if err != nil {
				return nil, err
			}
			if vol.IsZero() {
				continue
			}
			score /= vol.InexactFloat64()
		}
		candidates = append(candidates, scored{in: in, score: score})
	}

	// Best first; ties keep ticker order for determinism.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var selection []*Instrument
	taken := make(map[string]bool)
	for _, c := range candidates {
		if len(selection) >= p.cfg.RankingSize {
			break
		}
		issuer := issuerPrefix(c.in.Ticker(), p.cfg.IssuerPrefixLen)
		if taken[issuer] {
			continue
		}
		taken[issuer] = true
		selection = append(selection, c.in)
	}

	for _, held := range p.universe {
		if !containsInstrument(selection, held) {
			if err := p.broker.Close(held); err != nil {
				return nil, err
			}
		}
	}
	if selection == nil {
		selection = []*Instrument{}
	}
	p.universe = selection
	return p.universe, nil
}

func (p *Ranking) eligible(in *Instrument, today time.Time) (bool, error) {
	if !in.Inception().IsZero() && in.Inception().After(today) {
		return false, nil
	}
	if !in.Maturity().IsZero() && in.Maturity().Before(today) {
		return false, nil
	}
	if !in.HasLine(LineIndicator) || !in.HasLine(LineVolatility) || !in.HasLine(LineLiquidity) {
		return false, nil
	}
	liq, err := in.At(LineLiquidity, 0)
	if err != nil {
		return false, err
	}
	if liq.LessThanOrEqual(p.cfg.MinLiquidity) {
		return false, nil
	}
	vol, err := in.At(LineVolatility, 0)
	if err != nil {
		return false, err
	}
	if vol.LessThanOrEqual(p.cfg.MinVolatility) || vol.GreaterThanOrEqual(p.cfg.MaxVolatility) {
		return false, nil
	}
	return true, nil
}

// Portfolio is a stateless window filter: instruments currently within
// their inception/maturity range.
type Portfolio struct {
	dates  series.DateLine
	assets map[string]*Instrument
}

func NewPortfolio(_ *Config, _ *Broker, dates series.DateLine, assets map[string]*Instrument) Pipeline {
	return &Portfolio{dates: dates, assets: assets}
}

func (p *Portfolio) Init() error { return nil }

func (p *Portfolio) Next() ([]*Instrument, error) {
	today, err := p.dates.Today()
	if err != nil {
		return nil, err
	}
	var universe []*Instrument
	for _, ticker := range sortedInstruments(p.assets) {
		in := p.assets[ticker]
		if !in.Inception().IsZero() && in.Inception().After(today) {
			continue
		}
		if !in.Maturity().IsZero() && in.Maturity().Before(today) {
			continue
		}
		universe = append(universe, in)
	}
	return universe, nil
}

// maturityChain sorts the instruments that carry a maturity in
// ascending maturity order.
func maturityChain(assets map[string]*Instrument) []*Instrument {
	var chain []*Instrument
	for _, ticker := range sortedInstruments(assets) {
		in := assets[ticker]
		if !in.Maturity().IsZero() {
			chain = append(chain, in)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Maturity().Before(chain[j].Maturity())
	})
	return chain
}

// laggedDate reads the calendar date lag days ahead of today; near the
// end of the index it falls back to the last available date.
func laggedDate(dates series.DateLine, lag int) (time.Time, error) {
	ref, err := dates.At(lag)
	if err == nil {
		return ref, nil
	}
	if errors.Is(err, series.ErrOutOfRange) {
		return dates.End(), nil
	}
	return time.Time{}, err
}

func sortedUniverse(assets map[string]*Instrument) []*Instrument {
	out := make([]*Instrument, 0, len(assets))
	for _, ticker := range sortedInstruments(assets) {
		out = append(out, assets[ticker])
	}
	return out
}

func issuerPrefix(ticker string, n int) string {
	if n <= 0 || len(ticker) <= n {
		return ticker
	}
	return ticker[:n]
}

func containsInstrument(set []*Instrument, in *Instrument) bool {
	for _, s := range set {
		if s == in {
			return true
		}
	}
	return false
}
