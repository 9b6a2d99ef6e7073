package snapshots

import (
	"database/sql"

	"github.com/fastprodman/txengine/internal/repos/snapshots"
)

var _ snapshots.Snapshots = (*snapshotsRepo)(nil)

type snapshotsRepo struct{ db *sql.DB }

func New(db *sql.DB) *snapshotsRepo {
	return &snapshotsRepo{db: db}
}
