package api

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/fakes3/internal/storage"
)

// PutObject handles PUT /{bucket}/{key} - PutObject.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	input := &storage.PutObjectInput{
		Bucket:      bucket,
		Key:         key,
		Body:        h.uploadBody(w, r),
		ContentType: r.Header.Get("Content-Type"),
	}

	// A supplied Content-MD5 becomes the object's fingerprint as-is.
	if md5Header := r.Header.Get("Content-MD5"); md5Header != "" {
		fp, err := contentMD5Hex(md5Header)
		if err != nil {
			WriteErrorWithResource(w, ErrInvalidDigest, "/"+bucket+"/"+key)
			return
		}
		input.Fingerprint = fp
	}

	meta, err := h.storage.PutObject(r.Context(), input)
	if err != nil {
		writeStorageError(w, r, err, "put_object")
		return
	}

	w.Header().Set("ETag", quoteETag(meta.Fingerprint))
	w.WriteHeader(http.StatusOK)
}

// GetObject handles GET /{bucket}/{key} - GetObject.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	meta, err := h.storage.GetObjectMetadata(r.Context(), bucket, key)
	if err != nil {
		writeStorageError(w, r, err, "get_object")
		return
	}

	start, end := int64(0), meta.Size-1
	status := http.StatusOK
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		start, end, err = parseRange(rangeHeader, meta.Size)
		if err != nil {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(meta.Size, 10))
			WriteErrorWithResource(w, ErrInvalidRange, "/"+bucket+"/"+key)
			return
		}
		status = http.StatusPartialContent
	}

	stream, err := h.storage.StreamRange(r.Context(), bucket, key, start, end)
	if err != nil {
		writeStorageError(w, r, err, "get_object")
		return
	}
	defer stream.Close()

	setObjectHeaders(w, key, meta)
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	if status == http.StatusPartialContent {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, meta.Size))
	}

	w.WriteHeader(status)
	if _, err := stream.WriteTo(w); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object body")
	}
}

// HeadObject handles HEAD /{bucket}/{key} - HeadObject.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	meta, err := h.storage.GetObjectMetadata(r.Context(), bucket, key)
	if err != nil {
		// HEAD responses carry no body.
		w.WriteHeader(s3ErrorFor(err).HTTPStatus)
		return
	}

	setObjectHeaders(w, key, meta)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// setObjectHeaders sets the representation headers shared by GET and HEAD.
func setObjectHeaders(w http.ResponseWriter, key string, meta *storage.Metadata) {
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("ETag", quoteETag(meta.Fingerprint))
	w.Header().Set("Last-Modified", meta.CreationDate.UTC().Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")
	if len(meta.Parts) > 0 {
		w.Header().Set("X-Amz-Mp-Parts-Count", strconv.Itoa(len(meta.Parts)))
	}
	if !inlineContentType(meta.ContentType) {
		w.Header().Set("Content-Disposition", "attachment; filename="+path.Base(key))
	}
}

// inlineContentType reports whether browsers should render the type instead of downloading it.
func inlineContentType(contentType string) bool {
	for _, p := range []string{"image/", "text/", "video/"} {
		if strings.HasPrefix(contentType, p) {
			return true
		}
	}
	return false
}

var errUnsatisfiableRange = errors.New("unsatisfiable range")

// parseRange resolves a single bytes range against an object of the given size.
// The end is clamped to the last byte; a start past the end is unsatisfiable.
func parseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("%w: %q", errUnsatisfiableRange, header)
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", errUnsatisfiableRange, header)
	}

	var start, end int64
	switch {
	case first == "":
		// Suffix range: -500 means the last 500 bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: %q", errUnsatisfiableRange, header)
		}
		start = max(size-n, 0)
		end = size - 1
	default:
		var err error
		start, err = strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return 0, 0, fmt.Errorf("%w: %q", errUnsatisfiableRange, header)
		}
		end = size - 1
		if last != "" {
			end, err = strconv.ParseInt(last, 10, 64)
			if err != nil || end < start {
				return 0, 0, fmt.Errorf("%w: %q", errUnsatisfiableRange, header)
			}
			end = min(end, size-1)
		}
	}

	if start >= size {
		return 0, 0, fmt.Errorf("%w: %q", errUnsatisfiableRange, header)
	}
	return start, end, nil
}

// DeleteObject handles DELETE /{bucket}/{key} - DeleteObject.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteObject(r.Context(), GetBucket(r), GetKey(r)); err != nil {
		writeStorageError(w, r, err, "delete_object")
		return
	}

	// S3 returns 204 even if the object doesn't exist.
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRequest is the request body for DeleteObjects.
type DeleteRequest struct {
	XMLName xml.Name           `xml:"Delete"`
	Quiet   bool               `xml:"Quiet"`
	Objects []ObjectIdentifier `xml:"Object"`
}

// ObjectIdentifier names one key in a DeleteObjects request.
type ObjectIdentifier struct {
	Key string `xml:"Key"`
}

// DeleteResult is the response for DeleteObjects.
type DeleteResult struct {
	XMLName xml.Name        `xml:"DeleteResult"`
	Xmlns   string          `xml:"xmlns,attr"`
	Deleted []DeletedObject `xml:"Deleted"`
	Errors  []DeleteError   `xml:"Error"`
}

// DeletedObject reports a key removed by DeleteObjects.
type DeletedObject struct {
	Key string `xml:"Key"`
}

// DeleteError reports a key DeleteObjects could not remove.
type DeleteError struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// maxDeleteObjects is the S3 limit on keys per DeleteObjects request.
const maxDeleteObjects = 1000

// DeleteObjects handles POST /{bucket}?delete - DeleteObjects.
func (h *Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if _, err := h.storage.HeadBucket(r.Context(), bucket); err != nil {
		writeStorageError(w, r, err, "delete_objects")
		return
	}

	var req DeleteRequest
	if err := xml.NewDecoder(http.MaxBytesReader(w, r.Body, maxXMLBodySize)).Decode(&req); err != nil {
		WriteError(w, ErrMalformedXML)
		return
	}
	if len(req.Objects) == 0 || len(req.Objects) > maxDeleteObjects {
		WriteError(w, ErrMalformedXML)
		return
	}

	result := DeleteResult{Xmlns: s3Xmlns}
	for _, obj := range req.Objects {
		if err := h.storage.DeleteObject(r.Context(), bucket, obj.Key); err != nil {
			s3err := s3ErrorFor(err)
			if s3err == ErrInternalError {
				log.Error().Err(err).Str("bucket", bucket).Str("key", obj.Key).Msg("Failed to delete object")
			}
			result.Errors = append(result.Errors, DeleteError{
				Key:     obj.Key,
				Code:    s3err.Code,
				Message: s3err.Message,
			})
			continue
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, DeletedObject{Key: obj.Key})
		}
	}

	writeXML(w, http.StatusOK, result)
}
