package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradesim/types"
)

// Global error declarations.
var (
	ErrAssetNotFound = errors.New("asset not found in datasource")
	ErrNoBars        = errors.New("no price bars found in datasource")
	ErrNoCalendar    = errors.New("calendar not found in datasource")
)

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
	GetAssetsByCode(ctx context.Context, code string) ([]assetRow, error)
}

type barsRepository interface {
	GetDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]barRow, error)
}

type calendarsRepository interface {
	GetHolidays(ctx context.Context, market string, start, end time.Time) ([]time.Time, error)
}

type resultsRepository interface {
	UpsertRunMeta(ctx context.Context, meta types.RunMeta) error
	ReplaceLedger(ctx context.Context, uid string, rows []types.LedgerRow) error
	ReplaceRecords(ctx context.Context, uid string, records []types.Record) error
}

// Database holds the connection pool and the query implementations.
type Database struct {
	assets    assetsRepository
	bars      barsRepository
	calendars calendarsRepository
	results   resultsRepository
	conn      *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return Database{}, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return Database{}, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		return Database{}, err
	}

	queries := &pgxQueries{pool: conn}
	return Database{
		assets:    queries,
		bars:      queries,
		calendars: queries,
		results:   queries,
		conn:      conn,
	}, nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
