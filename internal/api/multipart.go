package api

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/fakes3/internal/storage"
)

// InitiateMultipartUploadResult is the response for CreateMultipartUpload.
type InitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadId string   `xml:"UploadId"`
}

// CompleteMultipartUploadResult is the response for CompleteMultipartUpload.
type CompleteMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// CompleteMultipartUploadRequest is the request body for CompleteMultipartUpload.
type CompleteMultipartUploadRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []CompletePart `xml:"Part"`
}

// CompletePart represents a part in CompleteMultipartUpload request.
type CompletePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// ListPartsResult is the response for ListParts.
type ListPartsResult struct {
	XMLName              xml.Name   `xml:"ListPartsResult"`
	Xmlns                string     `xml:"xmlns,attr"`
	Bucket               string     `xml:"Bucket"`
	Key                  string     `xml:"Key"`
	UploadId             string     `xml:"UploadId"`
	PartNumberMarker     int        `xml:"PartNumberMarker"`
	NextPartNumberMarker int        `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int        `xml:"MaxParts"`
	IsTruncated          bool       `xml:"IsTruncated"`
	StorageClass         string     `xml:"StorageClass"`
	Parts                []PartInfo `xml:"Part"`
}

// PartInfo represents a part in ListParts response.
type PartInfo struct {
	PartNumber   int    `xml:"PartNumber"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

// checkUploadID verifies the upload id names this bucket and key. Ids are derived, not
// stored, so a mismatch means the client is talking about some other upload.
func checkUploadID(w http.ResponseWriter, r *http.Request) bool {
	bucket, key := GetBucket(r), GetKey(r)
	if r.URL.Query().Get("uploadId") != UploadID(bucket, key) {
		WriteErrorWithResource(w, ErrNoSuchUpload, "/"+bucket+"/"+key)
		return false
	}
	return true
}

// CreateMultipartUpload handles POST /{bucket}/{key}?uploads - CreateMultipartUpload.
func (h *Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if !storage.ValidKey(key) {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket+"/"+key)
		return
	}

	// Nothing is recorded until the first part arrives.
	if _, err := h.storage.HeadBucket(r.Context(), bucket); err != nil {
		writeStorageError(w, r, err, "create_multipart_upload")
		return
	}

	writeXML(w, http.StatusOK, InitiateMultipartUploadResult{
		Xmlns:    s3Xmlns,
		Bucket:   bucket,
		Key:      key,
		UploadId: UploadID(bucket, key),
	})
}

// UploadPart handles PUT /{bucket}/{key}?partNumber={partNumber}&uploadId={uploadId} - UploadPart.
func (h *Handler) UploadPart(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if !checkUploadID(w, r) {
		return
	}

	partNumber, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil || partNumber < storage.MinPartNumber || partNumber > storage.MaxPartNumber {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket+"/"+key)
		return
	}

	var wantMD5 string
	if md5Header := r.Header.Get("Content-MD5"); md5Header != "" {
		wantMD5, err = contentMD5Hex(md5Header)
		if err != nil {
			WriteErrorWithResource(w, ErrInvalidDigest, "/"+bucket+"/"+key)
			return
		}
	}

	part, err := h.storage.StagePart(r.Context(), bucket, key, partNumber, h.uploadBody(w, r))
	if err != nil {
		writeStorageError(w, r, err, "upload_part")
		return
	}

	if wantMD5 != "" && wantMD5 != part.Fingerprint {
		log.Debug().Str("bucket", bucket).Str("key", key).Int("part", partNumber).
			Str("expected", wantMD5).Str("actual", part.Fingerprint).Msg("Part digest mismatch")
		WriteErrorWithResource(w, ErrBadDigest, "/"+bucket+"/"+key)
		return
	}

	w.Header().Set("ETag", quoteETag(part.Fingerprint))
	w.WriteHeader(http.StatusOK)
}

// CompleteMultipartUpload handles POST /{bucket}/{key}?uploadId={uploadId} - CompleteMultipartUpload.
func (h *Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	resource := "/" + bucket + "/" + key

	if !checkUploadID(w, r) {
		return
	}

	var req CompleteMultipartUploadRequest
	if err := xml.NewDecoder(http.MaxBytesReader(w, r.Body, maxXMLBodySize)).Decode(&req); err != nil {
		WriteErrorWithResource(w, ErrMalformedXML, resource)
		return
	}

	if len(req.Parts) == 0 {
		WriteErrorWithResource(w, ErrMalformedXML, resource)
		return
	}
	for i := 1; i < len(req.Parts); i++ {
		if req.Parts[i].PartNumber <= req.Parts[i-1].PartNumber {
			WriteErrorWithResource(w, ErrInvalidPartOrder, resource)
			return
		}
	}

	staged, err := h.storage.ListParts(r.Context(), bucket, key)
	if err != nil {
		writeStorageError(w, r, err, "complete_multipart_upload")
		return
	}
	if len(staged) == 0 {
		WriteErrorWithResource(w, ErrNoSuchUpload, resource)
		return
	}

	byNumber := make(map[int]string, len(staged))
	for _, p := range staged {
		byNumber[p.PartNumber] = p.Fingerprint
	}

	etags := make([]string, len(req.Parts))
	parts := make([]storage.PartInfo, len(req.Parts))
	for i, p := range req.Parts {
		fp, ok := byNumber[p.PartNumber]
		if !ok || normalizeETag(p.ETag) != fp {
			WriteErrorWithResource(w, ErrInvalidPart, resource)
			return
		}
		etags[i] = fp
		parts[i] = storage.PartInfo{PartNumber: p.PartNumber, Fingerprint: fp}
	}
	// Every staged part is merged, so the list must name all of them.
	if len(staged) != len(req.Parts) {
		WriteErrorWithResource(w, ErrInvalidPart, resource)
		return
	}

	etag, err := CompositeETag(etags)
	if err != nil {
		WriteErrorWithResource(w, ErrInvalidPart, resource)
		return
	}

	if _, err := h.storage.CompleteMultipart(r.Context(), &storage.CompleteMultipartInput{
		Bucket:      bucket,
		Key:         key,
		Fingerprint: etag,
		Parts:       parts,
	}); err != nil {
		writeStorageError(w, r, err, "complete_multipart_upload")
		return
	}

	writeXML(w, http.StatusOK, CompleteMultipartUploadResult{
		Xmlns:    s3Xmlns,
		Location: resource,
		Bucket:   bucket,
		Key:      key,
		ETag:     quoteETag(etag),
	})
}

// AbortMultipartUpload handles DELETE /{bucket}/{key}?uploadId={uploadId} - AbortMultipartUpload.
func (h *Handler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	if !checkUploadID(w, r) {
		return
	}

	if err := h.storage.AbortMultipart(r.Context(), GetBucket(r), GetKey(r)); err != nil {
		writeStorageError(w, r, err, "abort_multipart_upload")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListParts handles GET /{bucket}/{key}?uploadId={uploadId} - ListParts.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if !checkUploadID(w, r) {
		return
	}

	query := r.URL.Query()
	maxParts := 1000
	if raw := query.Get("max-parts"); raw != "" {
		if mp, err := strconv.Atoi(raw); err == nil && mp > 0 {
			maxParts = min(mp, 1000)
		}
	}
	var marker int
	if raw := query.Get("part-number-marker"); raw != "" {
		if pnm, err := strconv.Atoi(raw); err == nil && pnm > 0 {
			marker = pnm
		}
	}

	staged, err := h.storage.ListParts(r.Context(), bucket, key)
	if err != nil {
		writeStorageError(w, r, err, "list_parts")
		return
	}

	result := ListPartsResult{
		Xmlns:            s3Xmlns,
		Bucket:           bucket,
		Key:              key,
		UploadId:         UploadID(bucket, key),
		PartNumberMarker: marker,
		MaxParts:         maxParts,
		StorageClass:     "STANDARD",
	}

	for _, part := range staged {
		if part.PartNumber <= marker {
			continue
		}
		if len(result.Parts) == maxParts {
			result.IsTruncated = true
			break
		}
		result.Parts = append(result.Parts, PartInfo{
			PartNumber:   part.PartNumber,
			LastModified: formatTimestamp(part.LastModified),
			ETag:         quoteETag(part.Fingerprint),
			Size:         part.Size,
		})
	}
	if result.IsTruncated {
		result.NextPartNumberMarker = result.Parts[len(result.Parts)-1].PartNumber
	}

	writeXML(w, http.StatusOK, result)
}
