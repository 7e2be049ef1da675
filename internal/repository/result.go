package repository

import (
	"context"
	"fmt"

	"tradesim/types"
)

// SaveRun persists a run: the metadata record is upserted by UID, the
// ledger and trade records are replaced wholesale. Re-running with
// identical inputs therefore overwrites its previous rows instead of
// duplicating them.
func (db *Database) SaveRun(ctx context.Context, meta types.RunMeta, ledger []types.LedgerRow, records []types.Record) error {
	if err := db.results.UpsertRunMeta(ctx, meta); err != nil {
		return fmt.Errorf("upsert run %s: %w", meta.UID, err)
	}
	if err := db.results.ReplaceLedger(ctx, meta.UID, ledger); err != nil {
		return fmt.Errorf("replace ledger %s: %w", meta.UID, err)
	}
	if err := db.results.ReplaceRecords(ctx, meta.UID, records); err != nil {
		return fmt.Errorf("replace records %s: %w", meta.UID, err)
	}
	return nil
}
