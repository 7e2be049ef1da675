package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Asset is an instrument definition as stored in the datasource.
// Multiplier and Maturity are nil for stock-like instruments.
type Asset struct {
	Ticker     string
	Code       string
	Currency   string
	Multiplier *decimal.Decimal
	Commission *decimal.Decimal
	Maturity   *time.Time
	Inception  time.Time
}

// GetAssetByTicker retrieves an Asset by its ticker.
func (db *Database) GetAssetByTicker(ctx context.Context, ticker string) (*Asset, error) {
	row, err := db.assets.GetAssetByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s: %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	asset := convertAsset(row)
	return &asset, nil
}

// GetAssetsByCode retrieves every contract of an asset code ordered by
// maturity, the raw material for a rolling chain.
func (db *Database) GetAssetsByCode(ctx context.Context, code string) ([]Asset, error) {
	rows, err := db.assets.GetAssetsByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("code %s: %w", code, ErrAssetNotFound)
	}
	assets := make([]Asset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, convertAsset(row))
	}
	return assets, nil
}

func convertAsset(row assetRow) Asset {
	return Asset{
		Ticker:     row.Ticker,
		Code:       row.Code,
		Currency:   row.Currency,
		Multiplier: row.Multiplier,
		Commission: row.Commission,
		Maturity:   row.Maturity,
		Inception:  row.Inception,
	}
}
