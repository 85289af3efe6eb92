package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"tokenomics-indexer/internal/service"
)

// Indexer runs the daily pipeline on demand.
type Indexer interface {
	Index(ctx context.Context, opts service.IndexOptions) service.Outcome
}

// Index serves POST /api/index?force=true. When token is set the request
// must carry it as a bearer token.
func Index(indexer Indexer, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" && !authorized(r, token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		force := false
		if raw := r.URL.Query().Get("force"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "force must be a boolean")
				return
			}
			force = parsed
		}

		// A started run completes even if the caller disconnects.
		out := indexer.Index(context.WithoutCancel(r.Context()), service.IndexOptions{
			Force:   force,
			Trigger: service.TriggerManual,
		})

		status := http.StatusOK
		if !out.Success {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, out)
	}
}

func authorized(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
