package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tokenomics-indexer/internal/storage"
)

// BlobReader reads stored objects.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Data serves GET /data/{key}, the public URL of each stored record.
func Data(blobs BlobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if key == "" || strings.Contains(key, "/") || !strings.HasSuffix(key, ".json") {
			writeError(w, http.StatusBadRequest, "invalid key")
			return
		}

		content, err := blobs.Get(r.Context(), key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "public, max-age=300")
			_, _ = w.Write(content)
		}
	}
}
