package api

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"

	"github.com/kumasuke/fakes3/internal/storage"
)

// ListBucketResult is the response for ListObjects and ListObjectsV2.
type ListBucketResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Xmlns       string   `xml:"xmlns,attr"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	Delimiter   string   `xml:"Delimiter,omitempty"`
	MaxKeys     int      `xml:"MaxKeys"`
	IsTruncated bool     `xml:"IsTruncated"`

	// ListObjects (V1)
	Marker     *string `xml:"Marker,omitempty"`
	NextMarker string  `xml:"NextMarker,omitempty"`

	// ListObjectsV2
	KeyCount              *int   `xml:"KeyCount,omitempty"`
	ContinuationToken     string `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string `xml:"NextContinuationToken,omitempty"`
	StartAfter            string `xml:"StartAfter,omitempty"`

	Contents       []ObjectInfo   `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ObjectInfo represents a single object in listing.
type ObjectInfo struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
	Owner        *Owner `xml:"Owner,omitempty"`
}

// CommonPrefix represents a common prefix.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

const (
	// maxListKeys is both the default and the ceiling of max-keys.
	maxListKeys = 1000
	// listBatchSize is how many keys are pulled from storage per round when grouping.
	listBatchSize = 1000
)

// listPage is one page of a listing after delimiter grouping.
type listPage struct {
	objects     []storage.Object
	prefixes    []string
	isTruncated bool
	// last is the final key or common prefix on the page; the next page resumes after it.
	last string
}

// collectPage walks the bucket from startAfter, folding keys that contain the delimiter
// past the prefix into common prefixes, until maxKeys entries are gathered.
func (h *Handler) collectPage(ctx context.Context, bucket, prefix, delimiter, startAfter string, maxKeys int) (*listPage, error) {
	page := &listPage{}

	// A marker that is itself a common prefix resumes after everything under it.
	var currentPrefix string
	if delimiter != "" && strings.HasSuffix(startAfter, delimiter) {
		currentPrefix = startAfter
	}

	marker := startAfter
	count := 0
	for {
		out, err := h.storage.ListObjects(ctx, &storage.ListObjectsInput{
			Bucket:     bucket,
			Prefix:     prefix,
			StartAfter: marker,
			MaxKeys:    listBatchSize,
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range out.Objects {
			marker = obj.Key
			if currentPrefix != "" && strings.HasPrefix(obj.Key, currentPrefix) {
				continue
			}

			commonPrefix := ""
			if delimiter != "" {
				if i := strings.Index(obj.Key[len(prefix):], delimiter); i >= 0 {
					commonPrefix = obj.Key[:len(prefix)+i+len(delimiter)]
				}
			}

			if count == maxKeys {
				page.isTruncated = true
				return page, nil
			}
			count++

			if commonPrefix != "" {
				page.prefixes = append(page.prefixes, commonPrefix)
				page.last = commonPrefix
				currentPrefix = commonPrefix
				continue
			}
			page.objects = append(page.objects, obj)
			page.last = obj.Key
		}

		if !out.IsTruncated {
			return page, nil
		}
	}
}

// parseMaxKeys reads max-keys, defaulting to and capping at 1000.
func parseMaxKeys(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("max-keys")
	if raw == "" {
		return maxListKeys, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return min(n, maxListKeys), true
}

func (p *listPage) result(bucket, prefix, delimiter string, maxKeys int) ListBucketResult {
	result := ListBucketResult{
		Xmlns:       s3Xmlns,
		Name:        bucket,
		Prefix:      prefix,
		Delimiter:   delimiter,
		MaxKeys:     maxKeys,
		IsTruncated: p.isTruncated,
		Contents:    make([]ObjectInfo, len(p.objects)),
	}

	for i, obj := range p.objects {
		result.Contents[i] = ObjectInfo{
			Key:          obj.Key,
			LastModified: formatTimestamp(obj.CreationDate),
			ETag:         quoteETag(obj.Fingerprint),
			Size:         obj.Size,
			StorageClass: "STANDARD",
		}
	}

	for _, cp := range p.prefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, CommonPrefix{Prefix: cp})
	}
	return result
}

// ListObjects handles GET /{bucket} - ListObjects (V1).
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	marker := query.Get("marker")

	maxKeys, ok := parseMaxKeys(r)
	if !ok {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket)
		return
	}

	page, err := h.collectPage(r.Context(), bucket, prefix, delimiter, marker, maxKeys)
	if err != nil {
		writeStorageError(w, r, err, "list_objects")
		return
	}

	result := page.result(bucket, prefix, delimiter, maxKeys)
	result.Marker = &marker
	if page.isTruncated {
		result.NextMarker = page.last
	}
	for i := range result.Contents {
		result.Contents[i].Owner = &defaultOwner
	}

	writeXML(w, http.StatusOK, result)
}

// ListObjectsV2 handles GET /{bucket}?list-type=2 - ListObjectsV2.
func (h *Handler) ListObjectsV2(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	continuationToken := query.Get("continuation-token")
	startAfter := query.Get("start-after")

	maxKeys, ok := parseMaxKeys(r)
	if !ok {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket)
		return
	}

	resumeAfter := startAfter
	if continuationToken != "" {
		decoded, err := decodeContinuationToken(continuationToken)
		if err != nil {
			WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket)
			return
		}
		resumeAfter = decoded
	}

	page, err := h.collectPage(r.Context(), bucket, prefix, delimiter, resumeAfter, maxKeys)
	if err != nil {
		writeStorageError(w, r, err, "list_objects_v2")
		return
	}

	result := page.result(bucket, prefix, delimiter, maxKeys)
	keyCount := len(page.objects) + len(page.prefixes)
	result.KeyCount = &keyCount
	result.ContinuationToken = continuationToken
	result.StartAfter = startAfter
	if page.isTruncated {
		result.NextContinuationToken = encodeContinuationToken(page.last)
	}

	writeXML(w, http.StatusOK, result)
}

// Continuation tokens are opaque to clients; they carry the last key of the previous page.
func encodeContinuationToken(key string) string {
	return base64.URLEncoding.EncodeToString([]byte(key))
}

func decodeContinuationToken(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
