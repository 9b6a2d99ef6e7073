package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fastprodman/txengine/internal/ledger"
	"github.com/fastprodman/txengine/internal/pipeline"
	"github.com/fastprodman/txengine/internal/report"
	"github.com/fastprodman/txengine/internal/repos/snapshots"
	"github.com/fastprodman/txengine/internal/services/batch"
)

// MaxBatchBytes caps the CSV body accepted by POST /batches.
const MaxBatchBytes = 64 << 20

// Service is what the handlers need from the batch service.
type Service interface {
	Run(ctx context.Context, r io.Reader) (batch.Batch, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (snapshots.Batch, error)
	GetAccounts(ctx context.Context, batchID uuid.UUID) ([]ledger.Snapshot, error)
}

// HandlerProvider wraps a Service and exposes HTTP handlers.
type HandlerProvider struct {
	svc Service
}

func NewHandler(svc Service) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

type batchResponse struct {
	BatchID  uuid.UUID        `json:"batchId"`
	Stats    pipeline.Summary `json:"stats"`
	Accounts []report.Account `json:"accounts"`
}

type batchHeaderResponse struct {
	BatchID   uuid.UUID        `json:"batchId"`
	CreatedAt time.Time        `json:"createdAt"`
	Stats     pipeline.Summary `json:"stats"`
}

type accountsResponse struct {
	BatchID  uuid.UUID        `json:"batchId"`
	Accounts []report.Account `json:"accounts"`
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		// Headers are already sent; all that is left is to log.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseBatchID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "batchId"))
}

// writeLookupError maps a failed read of a stored batch to a response.
func writeLookupError(w http.ResponseWriter, batchID uuid.UUID, op string, err error) {
	switch {
	case errors.Is(err, snapshots.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, batch.ErrPersistenceDisabled):
		writeError(w, http.StatusNotImplemented, "batch storage is disabled")
	case errors.Is(err, batch.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "batch storage unavailable")
	default:
		slog.Error(op+" failed", "batch_id", batchID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Handlers ---

// CreateBatchHandler handles POST /batches with a CSV body.
func (h *HandlerProvider) CreateBatchHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBatchBytes)
	//nolint:errcheck
	defer r.Body.Close()

	res, err := h.svc.Run(r.Context(), r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError

		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "batch too large")
		case errors.Is(err, batch.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, snapshots.ErrDuplicateBatch):
			writeError(w, http.StatusConflict, "duplicate batch")
		case errors.Is(err, snapshots.ErrUnstorable):
			writeError(w, http.StatusUnprocessableEntity, "batch balances exceed storage range")
		case errors.Is(err, batch.ErrStorageUnavailable):
			writeError(w, http.StatusServiceUnavailable, "batch storage unavailable")
		default:
			slog.Error("batch run failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}

		return
	}

	writeJSON(w, http.StatusOK, batchResponse{
		BatchID:  res.ID,
		Stats:    res.Stats,
		Accounts: report.FromSnapshots(res.Accounts),
	})
}

// GetBatchHandler handles GET /batches/{batchId}.
func (h *HandlerProvider) GetBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batchId in path")

		return
	}

	b, err := h.svc.GetBatch(r.Context(), batchID)
	if err != nil {
		writeLookupError(w, batchID, "get batch", err)

		return
	}

	writeJSON(w, http.StatusOK, batchHeaderResponse{
		BatchID:   b.ID,
		CreatedAt: b.CreatedAt,
		Stats:     b.Stats,
	})
}

// GetAccountsHandler handles GET /batches/{batchId}/accounts.
func (h *HandlerProvider) GetAccountsHandler(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batchId in path")

		return
	}

	accounts, err := h.svc.GetAccounts(r.Context(), batchID)
	if err != nil {
		writeLookupError(w, batchID, "get accounts", err)

		return
	}

	writeJSON(w, http.StatusOK, accountsResponse{
		BatchID:  batchID,
		Accounts: report.FromSnapshots(accounts),
	})
}
