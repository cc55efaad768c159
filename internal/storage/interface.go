// Package storage provides the filesystem-backed object store for FakeS3.
package storage

import (
	"context"
	"io"
	"time"
)

// Bucket represents a storage bucket.
type Bucket struct {
	Name         string
	CreationDate time.Time
}

// Metadata is the persisted descriptor of a committed object.
type Metadata struct {
	Size         int64
	Fingerprint  string
	ContentType  string
	CreationDate time.Time
	// Parts is set only for objects assembled from a multipart upload.
	Parts []PartInfo
}

// Object represents a committed object in a listing.
type Object struct {
	Key string
	Metadata
}

// PartInfo identifies one part of a completed multipart upload.
type PartInfo struct {
	PartNumber  int
	Fingerprint string
}

// Part represents a staged part of an in-progress multipart upload.
type Part struct {
	PartNumber   int
	Size         int64
	Fingerprint  string
	LastModified time.Time
}

// PutObjectInput holds parameters for a single-part put.
type PutObjectInput struct {
	Bucket string
	Key    string
	Body   io.Reader
	// Fingerprint is computed as the MD5 of Body when empty.
	Fingerprint string
	// ContentType is sniffed from the content when empty.
	ContentType string
}

// CompleteMultipartInput holds parameters for assembling staged parts.
type CompleteMultipartInput struct {
	Bucket      string
	Key         string
	Fingerprint string
	Parts       []PartInfo
}

// ListObjectsInput holds parameters for listing objects.
type ListObjectsInput struct {
	Bucket string
	Prefix string
	// StartAfter resumes a listing after the given key.
	StartAfter string
	MaxKeys    int
}

// ListObjectsOutput holds the result of listing objects.
// When IsTruncated is set, the last key is the StartAfter of the next page.
type ListObjectsOutput struct {
	Objects     []Object
	IsTruncated bool
}

// Storage defines the operations the protocol layer invokes on the store.
type Storage interface {
	// Bucket operations
	CreateBucket(ctx context.Context, name string) error
	DeleteBucket(ctx context.Context, name string) error
	HeadBucket(ctx context.Context, name string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)

	// Object operations
	PutObject(ctx context.Context, input *PutObjectInput) (*Metadata, error)
	GetObjectMetadata(ctx context.Context, bucket, key string) (*Metadata, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, input *ListObjectsInput) (*ListObjectsOutput, error)
	StreamRange(ctx context.Context, bucket, key string, start, end int64) (*RangeStream, error)

	// Multipart upload operations
	StagePart(ctx context.Context, bucket, key string, partNumber int, body io.Reader) (*Part, error)
	ListParts(ctx context.Context, bucket, key string) ([]Part, error)
	CompleteMultipart(ctx context.Context, input *CompleteMultipartInput) (*Metadata, error)
	AbortMultipart(ctx context.Context, bucket, key string) error
}
