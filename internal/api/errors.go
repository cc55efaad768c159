// Package api provides S3 API handlers.
package api

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kumasuke/fakes3/internal/storage"
)

// RequestIDHeader carries the id echoed in error bodies.
const RequestIDHeader = "X-Amz-Request-Id"

// S3Error represents an S3 error response.
type S3Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`

	HTTPStatus int `xml:"-"`
}

func (e *S3Error) Error() string {
	return e.Message
}

func newS3Error(status int, code, message string) *S3Error {
	return &S3Error{Code: code, Message: message, HTTPStatus: status}
}

// Errors returned by the handlers, grouped by status.
var (
	ErrBucketAlreadyExists = newS3Error(http.StatusConflict, "BucketAlreadyExists",
		"Bucket name is already in use!")
	ErrBucketNotEmpty = newS3Error(http.StatusConflict, "BucketNotEmpty",
		"The bucket you tried to delete is not empty.")

	ErrInvalidBucketName = newS3Error(http.StatusBadRequest, "InvalidBucketName",
		"Invalid characters in bucketName or bucketName has invalid length (must be 1-255)")
	ErrInvalidRequest = newS3Error(http.StatusBadRequest, "InvalidRequest",
		"Invalid Request")
	ErrEntityTooLarge = newS3Error(http.StatusBadRequest, "EntityTooLarge",
		"Your proposed upload exceeds the maximum allowed object size.")
	ErrInvalidDigest = newS3Error(http.StatusBadRequest, "InvalidDigest",
		"The Content-MD5 you specified is not valid.")
	ErrBadDigest = newS3Error(http.StatusBadRequest, "BadDigest",
		"The Content-MD5 you specified did not match what we received.")
	ErrInvalidPart = newS3Error(http.StatusBadRequest, "InvalidPart",
		"One or more of the specified parts could not be found. The part may not have been uploaded, or the specified entity tag may not match the part's entity tag.")
	ErrInvalidPartOrder = newS3Error(http.StatusBadRequest, "InvalidPartOrder",
		"The list of parts was not in ascending order. Parts must be ordered by part number.")
	ErrMalformedXML = newS3Error(http.StatusBadRequest, "MalformedXML",
		"The XML you provided was not well-formed or did not validate against our published schema.")
	ErrInvalidArgument = newS3Error(http.StatusBadRequest, "InvalidArgument",
		"Invalid Argument")

	ErrNoSuchBucket = newS3Error(http.StatusNotFound, "NoSuchBucket",
		"The specified bucket does not exist.")
	ErrNoSuchKey = newS3Error(http.StatusNotFound, "NoSuchKey",
		"The specified key does not exist.")
	ErrNoSuchUpload = newS3Error(http.StatusNotFound, "NoSuchUpload",
		"The specified upload does not exist. The upload ID may be invalid, or the upload may have been aborted or completed.")

	ErrMethodNotAllowed = newS3Error(http.StatusMethodNotAllowed, "MethodNotAllowed",
		"The specified method is not allowed against this resource.")

	ErrNotImplemented = newS3Error(http.StatusNotImplemented, "NotImplemented",
		"A header or query you provided implies functionality that is not implemented.")

	ErrInternalError = newS3Error(http.StatusInternalServerError, "InternalError",
		"We encountered an internal error. Please try again.")

	ErrInvalidRange = newS3Error(http.StatusRequestedRangeNotSatisfiable, "InvalidRange",
		"The requested range is not satisfiable.")
)

// WriteError writes an S3 error response.
func WriteError(w http.ResponseWriter, err *S3Error) {
	WriteErrorWithResource(w, err, "")
}

// WriteErrorWithResource writes an S3 error response with resource info.
func WriteErrorWithResource(w http.ResponseWriter, err *S3Error, resource string) {
	response := *err
	response.Resource = resource
	response.RequestID = requestID(w)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(err.HTTPStatus)

	if err := xml.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// requestID reuses the id assigned by the server middleware, or mints one.
func requestID(w http.ResponseWriter) string {
	if id := w.Header().Get(RequestIDHeader); id != "" {
		return id
	}
	id := uuid.NewString()
	w.Header().Set(RequestIDHeader, id)
	return id
}

// s3ErrorFor maps a storage failure onto the S3 error table.
func s3ErrorFor(err error) *S3Error {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrBucketNotFound):
		return ErrNoSuchBucket
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrNoSuchKey
	case errors.Is(err, storage.ErrBucketAlreadyExists):
		return ErrBucketAlreadyExists
	case errors.Is(err, storage.ErrBucketNotEmpty):
		return ErrBucketNotEmpty
	case errors.Is(err, storage.ErrInvalidBucketName):
		return ErrInvalidBucketName
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, storage.ErrInvalidPartNumber):
		return ErrInvalidArgument
	case errors.Is(err, storage.ErrInvalidFingerprint):
		return ErrInvalidDigest
	case errors.As(err, &maxBytes):
		return ErrEntityTooLarge
	case errors.Is(err, errMalformedChunk):
		return ErrInvalidRequest
	default:
		return ErrInternalError
	}
}

// writeStorageError writes the S3 error for a failed storage call, logging anything unexpected.
func writeStorageError(w http.ResponseWriter, r *http.Request, err error, op string) {
	bucket, key := GetBucket(r), GetKey(r)
	resource := "/" + bucket
	if key != "" {
		resource += "/" + key
	}

	s3err := s3ErrorFor(err)
	if s3err == ErrNoSuchBucket {
		resource = "/" + bucket
	}
	if s3err == ErrInternalError {
		if errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Str("op", op).Str("bucket", bucket).Str("key", key).Msg("Request cancelled")
		} else {
			log.Error().Err(err).Str("op", op).Str("bucket", bucket).Str("key", key).Msg("Storage operation failed")
		}
	}
	WriteErrorWithResource(w, s3err, resource)
}
