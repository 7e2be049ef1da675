package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradesim/types"
)

// assetRow mirrors the assets table. Nullable columns stay pointers so
// a stock (no multiplier, no maturity) is distinguishable from a
// future with zero values.
type assetRow struct {
	Ticker     string
	Code       string
	Currency   string
	Multiplier *decimal.Decimal
	Commission *decimal.Decimal
	Maturity   *time.Time
	Inception  time.Time
}

// barRow mirrors the daily_bars table. Open, high and low are nullable
// for series that only publish a settlement price.
type barRow struct {
	Date      time.Time
	Open      *decimal.Decimal
	High      *decimal.Decimal
	Low       *decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Liquidity decimal.Decimal
}

type pgxQueries struct {
	pool *pgxpool.Pool
}

const getAssetByTickerSQL = `
SELECT ticker, code, currency, multiplier, commission, maturity, inception
FROM assets
WHERE ticker = $1`

func (q *pgxQueries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var row assetRow
	err := q.pool.QueryRow(ctx, getAssetByTickerSQL, ticker).Scan(
		&row.Ticker, &row.Code, &row.Currency,
		&row.Multiplier, &row.Commission, &row.Maturity, &row.Inception,
	)
	return row, err
}

const getAssetsByCodeSQL = `
SELECT ticker, code, currency, multiplier, commission, maturity, inception
FROM assets
WHERE code = $1
ORDER BY maturity`

func (q *pgxQueries) GetAssetsByCode(ctx context.Context, code string) ([]assetRow, error) {
	rows, err := q.pool.Query(ctx, getAssetsByCodeSQL, code)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (assetRow, error) {
		var row assetRow
		err := r.Scan(
			&row.Ticker, &row.Code, &row.Currency,
			&row.Multiplier, &row.Commission, &row.Maturity, &row.Inception,
		)
		return row, err
	})
}

const getDailyBarsSQL = `
SELECT date, open, high, low, close, volume, liquidity
FROM daily_bars
WHERE ticker = $1 AND date BETWEEN $2 AND $3
ORDER BY date`

func (q *pgxQueries) GetDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]barRow, error) {
	rows, err := q.pool.Query(ctx, getDailyBarsSQL, ticker, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (barRow, error) {
		var row barRow
		err := r.Scan(
			&row.Date, &row.Open, &row.High, &row.Low,
			&row.Close, &row.Volume, &row.Liquidity,
		)
		return row, err
	})
}

const getHolidaysSQL = `
SELECT date
FROM holidays
WHERE market = $1 AND date BETWEEN $2 AND $3
ORDER BY date`

func (q *pgxQueries) GetHolidays(ctx context.Context, market string, start, end time.Time) ([]time.Time, error) {
	rows, err := q.pool.Query(ctx, getHolidaysSQL, market, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (time.Time, error) {
		var date time.Time
		err := r.Scan(&date)
		return date, err
	})
}

const upsertRunMetaSQL = `
INSERT INTO runs (uid, factor, market, asset, hedge, base, pipeline, model, params, start_date, end_date, updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (uid) DO UPDATE SET
	start_date = EXCLUDED.start_date,
	end_date   = EXCLUDED.end_date,
	updated    = EXCLUDED.updated`

func (q *pgxQueries) UpsertRunMeta(ctx context.Context, meta types.RunMeta) error {
	_, err := q.pool.Exec(ctx, upsertRunMetaSQL,
		meta.UID, meta.Factor, meta.Market, meta.Asset, meta.Hedge,
		meta.Base, meta.Pipeline, meta.Model, meta.Params,
		meta.Start, meta.End, meta.Updated,
	)
	return err
}

const deleteLedgerSQL = `DELETE FROM ledgers WHERE uid = $1`

const insertLedgerRowSQL = `
INSERT INTO ledgers (uid, date, cash, open_equity, equity, quota, volatility, sharpe, drawdown)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (q *pgxQueries) ReplaceLedger(ctx context.Context, uid string, rows []types.LedgerRow) error {
	batch := &pgx.Batch{}
	batch.Queue(deleteLedgerSQL, uid)
	for _, row := range rows {
		batch.Queue(insertLedgerRowSQL,
			uid, row.Date, row.Cash, row.OpenEquity, row.Equity,
			row.Quota, row.Volatility, row.Sharpe, row.Drawdown,
		)
	}
	return q.pool.SendBatch(ctx, batch).Close()
}

const deleteRecordsSQL = `DELETE FROM records WHERE uid = $1`

const insertRecordSQL = `
INSERT INTO records (uid, date, ticker, size, overnight_pnl, intraday_pnl, trade_pnl, carry_pnl, signal, volatility, exposure, target_exposure)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (q *pgxQueries) ReplaceRecords(ctx context.Context, uid string, records []types.Record) error {
	batch := &pgx.Batch{}
	batch.Queue(deleteRecordsSQL, uid)
	for _, rec := range records {
		batch.Queue(insertRecordSQL,
			uid, rec.Date, rec.Ticker, rec.Size,
			rec.OvernightPnL, rec.IntradayPnL, rec.TradePnL, rec.CarryPnL,
			rec.Signal, rec.Volatility, rec.Exposure, rec.TargetExposure,
		)
	}
	return q.pool.SendBatch(ctx, batch).Close()
}
