package handler

import (
	"context"
	"errors"
	"net/http"

	"tokenomics-indexer/internal/history"
)

// HistoryReader serves stored ranges.
type HistoryReader interface {
	Recent(ctx context.Context, rng history.Range) (*history.Result, error)
}

// Tokenomics serves GET /api/tokenomics?days=N|all.
func Tokenomics(reader HistoryReader, allowedDays []int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := history.ParseRange(r.URL.Query().Get("days"), allowedDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := reader.Recent(r.Context(), rng)
		switch {
		case errors.Is(err, history.ErrNoRecords):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			w.Header().Set("Cache-Control", "public, max-age=300")
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data":    result,
			})
		}
	}
}
