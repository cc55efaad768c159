package api

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/fakes3/internal/storage"
)

const s3Xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// DefaultMaxBodySize caps request bodies when no limit is configured.
const DefaultMaxBodySize int64 = 512 << 20

// maxXMLBodySize caps XML request documents such as CompleteMultipartUpload.
const maxXMLBodySize int64 = 4 << 20

// Handler handles S3 API requests.
type Handler struct {
	storage     storage.Storage
	maxBodySize int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodySize limits the size of object and part uploads.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// NewHandler creates a new Handler.
func NewHandler(store storage.Storage, opts ...Option) *Handler {
	h := &Handler{
		storage:     store,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Context keys
type contextKey string

const (
	bucketKey contextKey = "bucket"
	keyKey    contextKey = "key"
)

// WithBucket adds bucket name to request context.
func WithBucket(r *http.Request, bucket string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), bucketKey, bucket))
}

// WithKey adds object key to request context.
func WithKey(r *http.Request, key string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), keyKey, key))
}

// GetBucket returns bucket name from request context.
func GetBucket(r *http.Request) string {
	if bucket, ok := r.Context().Value(bucketKey).(string); ok {
		return bucket
	}
	return ""
}

// GetKey returns object key from request context.
func GetKey(r *http.Request) string {
	if key, ok := r.Context().Value(keyKey).(string); ok {
		return key
	}
	return ""
}

// uploadBody returns the decoded, size-limited body of an upload request.
func (h *Handler) uploadBody(w http.ResponseWriter, r *http.Request) io.Reader {
	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if IsAWSChunked(r.Header.Get("Content-Encoding"), r.Header.Get("X-Amz-Content-Sha256")) {
		return NewChunkedReader(body)
	}
	return body
}

// writeXML encodes v fully before committing the status line.
func writeXML(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
