package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/txengine/internal/ledger"
	"github.com/fastprodman/txengine/internal/repos/snapshots"
)

func (r *snapshotsRepo) GetBatch(ctx context.Context, batchID uuid.UUID) (snapshots.Batch, error) {
	var batch snapshots.Batch

	var records, applied, decodeFails, rejected int64

	err := r.db.QueryRowContext(ctx, `
		SELECT batch_id, created_at, records, applied, decode_failures, rejected
		FROM batches
		WHERE batch_id = $1
	`, batchID).Scan(&batch.ID, &batch.CreatedAt, &records, &applied, &decodeFails, &rejected)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshots.Batch{}, snapshots.ErrBatchNotFound
		}

		return snapshots.Batch{}, fmt.Errorf("get batch: %w", err)
	}

	batch.Stats.Records = uint64(records)
	batch.Stats.Applied = uint64(applied)
	batch.Stats.DecodeFailures = uint64(decodeFails)
	batch.Stats.Rejected = uint64(rejected)

	return batch, nil
}

func (r *snapshotsRepo) GetAccounts(ctx context.Context, batchID uuid.UUID) ([]ledger.Snapshot, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM batches WHERE batch_id = $1)
	`, batchID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check batch exists: %w", err)
	}

	if !exists {
		return nil, snapshots.ErrBatchNotFound
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT client_id, available, held, total, locked
		FROM account_snapshots
		WHERE batch_id = $1
		ORDER BY client_id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	accounts := make([]ledger.Snapshot, 0)

	for rows.Next() {
		var (
			snap   ledger.Snapshot
			client int32
		)

		err = rows.Scan(&client, &snap.Available, &snap.Held, &snap.Total, &snap.Locked)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		snap.Client = ledger.ClientID(client)
		accounts = append(accounts, snap)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}
