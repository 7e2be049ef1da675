package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

const (
	tradingDaysPerYear = 252
	quotaBase          = 1000
)

// Report condenses a run's ledger and trade records into the headline
// numbers printed after a run.
type Report struct {
	// Meta / period info
	StartDate   time.Time
	EndDate     time.Time
	TotalOrders int

	// Absolute performance
	NetProfit decimal.Decimal
	CAGR      decimal.Decimal

	// PnL decomposition
	OvernightPnL decimal.Decimal
	IntradayPnL  decimal.Decimal
	TradePnL     decimal.Decimal
	CarryCost    decimal.Decimal

	// Drawdown & risk-adjusted metrics
	MaxDrawdown decimal.Decimal
	Volatility  decimal.Decimal
	SharpeRatio decimal.Decimal
}

// buildLedger turns the broker's equity lines into one row per
// simulated date. The first simulated date is the one after the
// warm-up window, since the clock advances before the first period
// opens. The quota series rebases equity to 1000 so runs of
// different cash sizes compare directly.
func (bt *Backtest) buildLedger() ([]types.LedgerRow, error) {
	cash := bt.broker.Cash().History()
	openEquity := bt.broker.OpenEquity().History()
	equity := bt.broker.Equity().History()

	initial := bt.cfg.InitialCash
	base := decimal.NewFromInt(quotaBase)

	first := bt.cfg.Buffer + 1
	rows := make([]types.LedgerRow, 0, len(equity)-first)
	quotas := make([]float64, 0, len(equity)-first)
	peak := math.Inf(-1)

	var ewVar float64
	var prevQuota float64
	alpha := bt.cfg.VolatilityAlpha

	for i := first; i < len(equity) && i <= bt.clock.Cursor(); i++ {
		quota := base.Mul(equity[i]).Div(initial)
		q := quota.InexactFloat64()

		var vol, sharpe, drawdown float64
		if len(quotas) > 0 && prevQuota != 0 {
			ret := q/prevQuota - 1
			ewVar = alpha*ret*ret + (1-alpha)*ewVar
			vol = math.Sqrt(ewVar * tradingDaysPerYear)
			sharpe = expandingSharpe(quotas, q)
		}
		if q > peak {
			peak = q
		}
		if peak > 0 {
			drawdown = q/peak - 1
		}

		rows = append(rows, types.LedgerRow{
			Date:       bt.index[i],
			Cash:       cash[i],
			OpenEquity: openEquity[i],
			Equity:     equity[i],
			Quota:      quota,
			Volatility: decimal.NewFromFloat(vol),
			Sharpe:     decimal.NewFromFloat(sharpe),
			Drawdown:   decimal.NewFromFloat(drawdown),
		})
		quotas = append(quotas, q)
		prevQuota = q
	}
	return rows, nil
}

// expandingSharpe annualizes the mean/stddev of daily quota returns
// over the whole history up to and including today's quota.
func expandingSharpe(quotas []float64, today float64) float64 {
	series := append(append([]float64{}, quotas...), today)
	if len(series) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		returns = append(returns, series[i]/series[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var varianceSum float64
	for _, r := range returns {
		diff := r - mean
		varianceSum += diff * diff
	}
	std := math.Sqrt(varianceSum / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// BuildReport summarises a finished run.
func BuildReport(result *Result, orders int) *Report {
	report := &Report{TotalOrders: orders}
	if len(result.Ledger) > 0 {
		report.StartDate = result.Ledger[0].Date
		report.EndDate = result.Ledger[len(result.Ledger)-1].Date
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		report.NetProfit = calcNetProfit(result.Ledger, &wg)
	}()
	go func() {
		report.CAGR = calcCAGR(result.Ledger, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.Volatility, report.SharpeRatio = calcRiskMetrics(result.Ledger, &wg)
	}()
	go func() {
		report.OvernightPnL, report.IntradayPnL, report.TradePnL, report.CarryCost = calcPnLSplit(result.Records, &wg)
	}()
	wg.Wait()

	return report
}

func calcNetProfit(ledger []types.LedgerRow, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(ledger) == 0 {
		return decimal.Zero
	}
	return ledger[len(ledger)-1].Equity.Sub(ledger[0].Equity)
}

func calcCAGR(ledger []types.LedgerRow, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(ledger) < 2 {
		return decimal.Zero
	}

	first := ledger[0]
	last := ledger[len(ledger)-1]
	if !first.Equity.GreaterThan(decimal.Zero) || !last.Equity.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	duration := last.Date.Sub(first.Date)
	if duration <= 0 {
		return decimal.Zero
	}
	years := duration.Hours() / (24.0 * 365.25)

	ratio := last.Equity.Div(first.Equity).InexactFloat64()
	return decimal.NewFromFloat(math.Pow(ratio, 1.0/years) - 1.0)
}

func calcRiskMetrics(ledger []types.LedgerRow, wg *sync.WaitGroup) (maxDD, vol, sharpe decimal.Decimal) {
	defer wg.Done()
	if len(ledger) == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	maxDD = decimal.Zero
	for _, row := range ledger {
		if row.Drawdown.LessThan(maxDD) {
			maxDD = row.Drawdown
		}
	}
	last := ledger[len(ledger)-1]
	return maxDD, last.Volatility, last.Sharpe
}

func calcPnLSplit(records []types.Record, wg *sync.WaitGroup) (opnl, ipnl, tpnl, cpnl decimal.Decimal) {
	defer wg.Done()

	opnl, ipnl, tpnl, cpnl = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, rec := range records {
		opnl = opnl.Add(rec.OvernightPnL)
		ipnl = ipnl.Add(rec.IntradayPnL)
		tpnl = tpnl.Add(rec.TradePnL)
		cpnl = cpnl.Add(rec.CarryPnL)
	}
	return opnl, ipnl, tpnl, cpnl
}

func PrintReport(report *Report) {
	fmt.Println("===== Simulation Report =====")
	fmt.Printf("Start Date:        %s\n", report.StartDate.Format("2006-01-02"))
	fmt.Printf("End Date:          %s\n", report.EndDate.Format("2006-01-02"))
	fmt.Printf("Total Orders:      %d\n", report.TotalOrders)

	fmt.Println("\n-- Absolute Performance --")
	fmt.Printf("Net Profit:        %s\n", report.NetProfit)
	fmt.Printf("CAGR:              %s\n", report.CAGR)

	fmt.Println("\n-- PnL Decomposition --")
	fmt.Printf("Overnight PnL:     %s\n", report.OvernightPnL)
	fmt.Printf("Intraday PnL:      %s\n", report.IntradayPnL)
	fmt.Printf("Trade PnL:         %s\n", report.TradePnL)
	fmt.Printf("Carry Cost:        %s\n", report.CarryCost)

	fmt.Println("\n-- Risk Metrics --")
	fmt.Printf("Max Drawdown:      %s\n", report.MaxDrawdown)
	fmt.Printf("Volatility:        %s\n", report.Volatility)
	fmt.Printf("Sharpe Ratio:      %s\n", report.SharpeRatio)

	fmt.Println("=============================")
}
