package snapshots

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastprodman/txengine/internal/ledger"
	"github.com/fastprodman/txengine/internal/repos/snapshots"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
	dataExceptions  = "22"
)

// isDataError reports whether pg refused the values themselves.
func isDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return strings.HasPrefix(pgErr.Code, dataExceptions) || pgErr.Code == checkViolation
}

func (r *snapshotsRepo) InsertBatch(tx *sql.Tx, batch snapshots.Batch) error {
	_, err := tx.Exec(`
		INSERT INTO batches (batch_id, records, applied, decode_failures, rejected)
		VALUES ($1, $2, $3, $4, $5)
	`, batch.ID, int64(batch.Stats.Records), int64(batch.Stats.Applied),
		int64(batch.Stats.DecodeFailures), int64(batch.Stats.Rejected))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return snapshots.ErrDuplicateBatch
		}

		if isDataError(err) {
			return fmt.Errorf("%w: %w", snapshots.ErrUnstorable, err)
		}

		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

// InsertAccounts stores every snapshot of a batch through one prepared
// statement. The batch row must already exist in tx.
func (r *snapshotsRepo) InsertAccounts(tx *sql.Tx, batchID uuid.UUID, accounts []ledger.Snapshot) error {
	if len(accounts) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO account_snapshots (batch_id, client_id, available, held, total, locked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert account: %w", err)
	}
	//nolint:errcheck
	defer stmt.Close()

	for _, acc := range accounts {
		_, err = stmt.Exec(batchID, int32(acc.Client), acc.Available, acc.Held, acc.Total, acc.Locked)
		if err != nil {
			if isDataError(err) {
				return fmt.Errorf("insert account %d: %w: %w", acc.Client, snapshots.ErrUnstorable, err)
			}

			return fmt.Errorf("insert account %d: %w", acc.Client, err)
		}
	}

	return nil
}
