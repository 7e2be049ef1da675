package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"tradesim/types"
)

const csvDateLayout = "2006-01-02"

// WriteLedgerCSVFile writes the ledger to a CSV file at the given path.
func WriteLedgerCSVFile(path string, ledger []types.LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ledger file: %w", err)
	}
	defer f.Close()

	return WriteLedgerCSV(f, ledger)
}

// WriteLedgerCSV writes the ledger to any io.Writer as CSV.
// You can pass os.Stdout for debugging, or a file.
func WriteLedgerCSV(w io.Writer, ledger []types.LedgerRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"date",
		"cash",
		"open_equity",
		"equity",
		"quota",
		"volatility",
		"sharpe",
		"drawdown",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range ledger {
		record := []string{
			row.Date.Format(csvDateLayout),
			row.Cash.String(),
			row.OpenEquity.String(),
			row.Equity.String(),
			row.Quota.String(),
			row.Volatility.String(),
			row.Sharpe.String(),
			row.Drawdown.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteRecordsCSVFile writes the per-instrument trade records to a CSV
// file at the given path.
func WriteRecordsCSVFile(path string, records []types.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create records file: %w", err)
	}
	defer f.Close()

	return WriteRecordsCSV(f, records)
}

func WriteRecordsCSV(w io.Writer, records []types.Record) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"date",
		"ticker",
		"size",
		"overnight_pnl",
		"intraday_pnl",
		"trade_pnl",
		"carry_pnl",
		"signal",
		"volatility",
		"exposure",
		"target_exposure",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		record := []string{
			rec.Date.Format(csvDateLayout),
			rec.Ticker,
			rec.Size.String(),
			rec.OvernightPnL.String(),
			rec.IntradayPnL.String(),
			rec.TradePnL.String(),
			rec.CarryPnL.String(),
			rec.Signal.String(),
			rec.Volatility.String(),
			rec.Exposure.String(),
			rec.TargetExposure.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
