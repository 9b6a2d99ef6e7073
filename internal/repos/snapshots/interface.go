package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/txengine/internal/ledger"
	"github.com/fastprodman/txengine/internal/pipeline"
)

var (
	ErrBatchNotFound  = errors.New("batch not found")
	ErrDuplicateBatch = errors.New("duplicate batch")
	// ErrUnstorable marks values the database rejected as data, such as a
	// balance that overflows the NUMERIC column.
	ErrUnstorable = errors.New("batch values out of storage range")
)

// Batch is the stored header of one engine run.
type Batch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Stats     pipeline.Summary
}

type Snapshots interface {
	InsertBatch(tx *sql.Tx, batch Batch) error
	InsertAccounts(tx *sql.Tx, batchID uuid.UUID, accounts []ledger.Snapshot) error
	// GetBatch returns the batch header with its run stats.
	GetBatch(ctx context.Context, batchID uuid.UUID) (Batch, error)
	// GetAccounts returns the accounts of a batch ordered by client id.
	GetAccounts(ctx context.Context, batchID uuid.UUID) ([]ledger.Snapshot, error)
}
