package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/calendar"
	"tradesim/internal/series"
	"tradesim/types"
)

var (
	ErrNoAssets      = errors.New("no tradeable assets registered")
	ErrShortCalendar = errors.New("calendar shorter than the warm-up buffer")
	ErrUnknownBase   = errors.New("base ticker not registered")
)

// RunInfo names a run for the metadata record.
type RunInfo struct {
	Factor string
	Market string
	Asset  string
	Hedge  string
	Base   string
	Model  string
	Params map[string]string
}

// Result is everything a run produces: the metadata record, the
// per-date ledger and the per-date-per-instrument trade records.
type Result struct {
	Meta    types.RunMeta
	Ledger  []types.LedgerRow
	Records []types.Record
}

// Backtest drives the daily loop: advance the shared clock, broker
// begin-of-period, pipeline and strategy, broker end-of-period. All
// series of a run hang off its single clock, so one advance moves the
// whole simulation to the next date.
type Backtest struct {
	cfg  Config
	info RunInfo
	log  *zap.Logger

	index []time.Time
	clock *series.Clock
	dates series.DateLine

	broker   *Broker
	pipeline Pipeline
	strategy Strategy

	hpipeline Pipeline
	hstrategy Strategy

	bases  map[string]*Instrument
	assets map[string]*Instrument
	hedges map[string]*Instrument

	pipelineName string
	showProgress bool
}

func New(cfg Config, info RunInfo, cal *calendar.Calendar, pf PipelineFactory, sf StrategyFactory, log *zap.Logger) (*Backtest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	index := cal.Index()
	if cfg.Buffer >= len(index) {
		return nil, fmt.Errorf("%w: %d dates, buffer %d", ErrShortCalendar, len(index), cfg.Buffer)
	}
	clock, err := series.NewClock(len(index), cfg.Buffer)
	if err != nil {
		return nil, err
	}
	dates, err := series.NewDateLine(clock, index)
	if err != nil {
		return nil, err
	}

	bt := &Backtest{
		cfg:          cfg,
		info:         info,
		log:          log,
		index:        index,
		clock:        clock,
		dates:        dates,
		bases:        make(map[string]*Instrument),
		assets:       make(map[string]*Instrument),
		hedges:       make(map[string]*Instrument),
		showProgress: true,
	}
	bt.broker = newBroker(&bt.cfg, clock, dates, log)
	bt.pipeline = pf(&bt.cfg, bt.broker, dates, bt.assets)
	bt.strategy = sf(&bt.cfg, bt.broker, bt.bases, bt.assets)
	bt.pipelineName = fmt.Sprintf("%T", bt.pipeline)
	return bt, nil
}

// ConfigHedge attaches a second pipeline/strategy pair running over
// the hedge book after the main one each day.
func (bt *Backtest) ConfigHedge(pf PipelineFactory, sf StrategyFactory) {
	bt.hpipeline = pf(&bt.cfg, bt.broker, bt.dates, bt.hedges)
	bt.hstrategy = sf(&bt.cfg, bt.broker, bt.bases, bt.hedges)
}

// AddBase registers a non-tradeable reference series. FX pairs and the
// carry series are routed to the broker; the first base becomes the
// market reference for beta unless UseMarket overrides it.
func (bt *Backtest) AddBase(ticker string, bars []types.PriceBar) (*Instrument, error) {
	base, err := newBase(ticker, bt.clock, bt.index, bars)
	if err != nil {
		return nil, err
	}
	bt.bases[ticker] = base
	if bt.cfg.isPair(ticker) {
		bt.broker.addCurrency(base)
	}
	if ticker == bt.cfg.CarryTicker {
		bt.broker.addCarry(base)
	}
	if bt.broker.market == nil {
		bt.broker.setMarket(base)
	}
	return base, nil
}

// UseMarket selects the beta reference among the registered bases.
func (bt *Backtest) UseMarket(ticker string) error {
	base, ok := bt.bases[ticker]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBase, ticker)
	}
	bt.broker.setMarket(base)
	return nil
}

func (bt *Backtest) AddAsset(ticker string, bars []types.PriceBar, spec AssetSpec) (*Instrument, error) {
	asset, err := newAsset(&bt.cfg, ticker, bt.clock, bt.index, bars, spec)
	if err != nil {
		return nil, err
	}
	bt.assets[ticker] = asset
	bt.broker.register(asset)
	return asset, nil
}

func (bt *Backtest) AddHedge(ticker string, bars []types.PriceBar, spec AssetSpec) (*Instrument, error) {
	hedge, err := newAsset(&bt.cfg, ticker, bt.clock, bt.index, bars, spec)
	if err != nil {
		return nil, err
	}
	bt.hedges[ticker] = hedge
	bt.broker.register(hedge)
	return hedge, nil
}

func (bt *Backtest) Broker() *Broker { return bt.broker }

// DisableProgress turns the terminal progress bar off (tests, batch
// runs).
func (bt *Backtest) DisableProgress() { bt.showProgress = false }

// Run executes the whole calendar and returns the reconciled result.
// Fatal errors unwind the run; no partial result is returned.
func (bt *Backtest) Run() (*Result, error) {
	if len(bt.assets) == 0 {
		return nil, ErrNoAssets
	}

	if err := bt.pipeline.Init(); err != nil {
		return nil, fmt.Errorf("pipeline init: %w", err)
	}
	if err := bt.strategy.Init(); err != nil {
		return nil, fmt.Errorf("strategy init: %w", err)
	}
	if bt.hpipeline != nil {
		if err := bt.hpipeline.Init(); err != nil {
			return nil, fmt.Errorf("hedge pipeline init: %w", err)
		}
		if err := bt.hstrategy.Init(); err != nil {
			return nil, fmt.Errorf("hedge strategy init: %w", err)
		}
	}

	var bar *progressbar.ProgressBar
	if bt.showProgress {
		bar = newProgressBar(bt.clock.Remaining())
	}

	peak := bt.cfg.InitialCash
	for bt.clock.Remaining() > 0 {
		if err := bt.clock.Advance(); err != nil {
			return nil, err
		}
		if err := bt.broker.BeginOfPeriod(); err != nil {
			return nil, err
		}

		universe, err := bt.pipeline.Next()
		if err != nil {
			return nil, err
		}
		if err := bt.strategy.Next(universe); err != nil {
			return nil, err
		}
		if bt.hpipeline != nil {
			huniverse, err := bt.hpipeline.Next()
			if err != nil {
				return nil, err
			}
			if err := bt.hstrategy.Next(huniverse); err != nil {
				return nil, err
			}
		}

		if err := bt.broker.EndOfPeriod(); err != nil {
			return nil, err
		}
		if bar != nil {
			_ = bar.Add(1)
		}

		equity, err := bt.broker.Equity().At(0)
		if err != nil {
			return nil, err
		}
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if bt.cfg.MaxDrawdown.IsNegative() && !peak.IsZero() {
			drawdown := equity.Div(peak).Sub(decimal.NewFromInt(1))
			if drawdown.LessThanOrEqual(bt.cfg.MaxDrawdown) {
				today, _ := bt.dates.Today()
				bt.log.Warn("drawdown circuit breaker tripped, stopping run",
					zap.Time("date", today),
					zap.String("drawdown", drawdown.String()),
				)
				break
			}
		}
	}

	ledger, err := bt.buildLedger()
	if err != nil {
		return nil, err
	}
	return &Result{
		Meta:    bt.buildMeta(),
		Ledger:  ledger,
		Records: bt.broker.Records(),
	}, nil
}

func newProgressBar(days int) *progressbar.ProgressBar {
	return progressbar.NewOptions(days,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Simulating..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
