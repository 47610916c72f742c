package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"loyalty/internal/adapters/storage"
	"loyalty/internal/application/orchestrators"
	"loyalty/internal/domain/brand"
	"loyalty/internal/domain/ledger"
	"loyalty/internal/domain/member"
	"loyalty/internal/domain/tier"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// badRequestErrors are domain rule violations a caller can fix.
var badRequestErrors = []error{
	ledger.ErrInvalidType, ledger.ErrZeroAmount, ledger.ErrPositiveDebit,
	ledger.ErrEmptyCreatedBy, ledger.ErrCorrectionScope,
	tier.ErrEmptyReason, tier.ErrEmptyActor,
	brand.ErrInvalidInterval, brand.ErrNegativeRetries, brand.ErrInvalidPointsRate,
}

// writeDomainError maps an orchestrator error to a status code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, orchestrators.ErrSyncAlreadyRunning),
		errors.Is(err, member.ErrVersionConflict),
		errors.Is(err, brand.ErrWindowRegression),
		errors.Is(err, tier.ErrSameTier):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tier.ErrTierNotInBrand):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		for _, target := range badRequestErrors {
			if errors.Is(err, target) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		internalError(w, err)
	}
}

// queryLimit parses ?limit=, returning 0 (the projection default) when absent or invalid.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
