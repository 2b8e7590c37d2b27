package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/storage"
)

// ObjectReader fetches stored objects.
type ObjectReader interface {
	Get(ctx context.Context, key string) (storage.Object, error)
}

// Uploads streams stored complaint images.
func Uploads(objects ObjectReader, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, err := objects.Get(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				writeError(w, http.StatusNotFound, "file not found")
				return
			}
			logger.WithError(err).Error("reading upload")
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		defer obj.Body.Close()

		contentType := obj.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if obj.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, obj.Body); err != nil {
			logger.WithError(err).Warn("streaming upload")
		}
	}
}
