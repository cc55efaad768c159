package api

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/kumasuke/fakes3/internal/storage"
)

// ListAllMyBucketsResult is the response for ListBuckets.
type ListAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Xmlns   string   `xml:"xmlns,attr"`
	Owner   Owner    `xml:"Owner"`
	Buckets Buckets  `xml:"Buckets"`
}

// Owner represents bucket owner information.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

// Buckets is a container for bucket list.
type Buckets struct {
	Bucket []BucketInfo `xml:"Bucket"`
}

// BucketInfo represents a single bucket.
type BucketInfo struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

// defaultOwner is reported for every bucket and object; there are no accounts.
var defaultOwner = Owner{
	ID:          "123",
	DisplayName: "FakeS3",
}

// timestampLayout is the ISO-8601 form S3 uses in XML bodies.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// CreateBucket handles PUT /{bucket} - CreateBucket.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if !storage.ValidBucketName(bucket) {
		WriteErrorWithResource(w, ErrInvalidBucketName, "/"+bucket)
		return
	}

	if err := h.storage.CreateBucket(r.Context(), bucket); err != nil {
		writeStorageError(w, r, err, "create_bucket")
		return
	}

	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket} - DeleteBucket.
func (h *Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteBucket(r.Context(), GetBucket(r)); err != nil {
		writeStorageError(w, r, err, "delete_bucket")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HeadBucket handles HEAD /{bucket} - HeadBucket.
func (h *Handler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	_, err := h.storage.HeadBucket(r.Context(), GetBucket(r))
	if err != nil {
		// HEAD responses carry no body.
		w.WriteHeader(s3ErrorFor(err).HTTPStatus)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListBuckets handles GET / - ListBuckets.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.storage.ListBuckets(r.Context())
	if err != nil {
		writeStorageError(w, r, err, "list_buckets")
		return
	}

	result := ListAllMyBucketsResult{
		Xmlns: s3Xmlns,
		Owner: defaultOwner,
		Buckets: Buckets{
			Bucket: make([]BucketInfo, len(buckets)),
		},
	}

	for i, b := range buckets {
		result.Buckets.Bucket[i] = BucketInfo{
			Name:         b.Name,
			CreationDate: formatTimestamp(b.CreationDate),
		}
	}

	writeXML(w, http.StatusOK, result)
}

// LocationConstraint is the response for GetBucketLocation.
type LocationConstraint struct {
	XMLName  xml.Name `xml:"LocationConstraint"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:",chardata"`
}

// GetBucketLocation handles GET /{bucket}?location - GetBucketLocation.
func (h *Handler) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	if _, err := h.storage.HeadBucket(r.Context(), GetBucket(r)); err != nil {
		writeStorageError(w, r, err, "get_bucket_location")
		return
	}

	// Empty means us-east-1.
	writeXML(w, http.StatusOK, LocationConstraint{Xmlns: s3Xmlns})
}

// VersioningConfiguration is the response for GetBucketVersioning.
type VersioningConfiguration struct {
	XMLName xml.Name `xml:"VersioningConfiguration"`
	Xmlns   string   `xml:"xmlns,attr"`
	Status  string   `xml:"Status,omitempty"`
}

// GetBucketVersioning handles GET /{bucket}?versioning. Buckets are never versioned,
// so the configuration is always empty.
func (h *Handler) GetBucketVersioning(w http.ResponseWriter, r *http.Request) {
	if _, err := h.storage.HeadBucket(r.Context(), GetBucket(r)); err != nil {
		writeStorageError(w, r, err, "get_bucket_versioning")
		return
	}

	writeXML(w, http.StatusOK, VersioningConfiguration{Xmlns: s3Xmlns})
}
