package storage

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Default chunk sizes for merging parts and streaming ranges.
const (
	DefaultMergeChunkSize = 32 * 1024 * 1024
	DefaultReadChunkSize  = 2 * 1024 * 1024
)

// Observer receives one call per completed storage operation.
type Observer interface {
	Observe(op string, bytes int64, err error, dur time.Duration)
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithMergeChunkSize sets the buffer size used when assembling multipart uploads.
func WithMergeChunkSize(n int) Option {
	return func(fs *FileSystem) {
		if n > 0 {
			fs.mergeChunkSize = n
		}
	}
}

// WithReadChunkSize sets the maximum chunk size yielded by range streams.
func WithReadChunkSize(n int) Option {
	return func(fs *FileSystem) {
		if n > 0 {
			fs.readChunkSize = n
		}
	}
}

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(fs *FileSystem) {
		fs.observer = o
	}
}

// FileSystem implements Storage on a local directory tree.
type FileSystem struct {
	dataDir        string
	mergeChunkSize int
	readChunkSize  int
	observer       Observer
}

var _ Storage = (*FileSystem)(nil)

// NewFileSystem creates a file system storage backend rooted at dataDir.
func NewFileSystem(dataDir string, opts ...Option) (*FileSystem, error) {
	if dataDir == "" {
		return nil, errors.New("no data directory configured")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fs := &FileSystem{
		dataDir:        abs,
		mergeChunkSize: DefaultMergeChunkSize,
		readChunkSize:  DefaultReadChunkSize,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// DataDir returns the absolute root directory of the store.
func (fs *FileSystem) DataDir() string {
	return fs.dataDir
}

func (fs *FileSystem) observe(op string, start time.Time, n int64, err error) {
	if fs.observer == nil {
		return
	}
	fs.observer.Observe(op, n, err, time.Since(start))
}

// GetObjectMetadata returns the metadata of a committed object.
func (fs *FileSystem) GetObjectMetadata(ctx context.Context, bucket, key string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, dir, err := fs.existingObjectDir(bucket, key)
	if err != nil {
		return nil, err
	}
	return readCommitted(dir)
}

// PutObject stores a complete object, replacing any previous content and metadata.
func (fs *FileSystem) PutObject(ctx context.Context, input *PutObjectInput) (meta *Metadata, err error) {
	start := time.Now()
	defer func() {
		var n int64
		if meta != nil {
			n = meta.Size
		}
		fs.observe("put_object", start, n, err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Fingerprint != "" && !ValidFingerprint(input.Fingerprint) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFingerprint, input.Fingerprint)
	}
	_, dir, err := fs.existingObjectDir(input.Bucket, input.Key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioErr("create object directory", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return nil, ioErr("create temp", dir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath) // Clean up temp file if we don't rename it
	}()

	body := bufio.NewReaderSize(&contextReader{ctx: ctx, r: input.Body}, sniffLen)
	contentType := input.ContentType
	if contentType == "" {
		head, err := body.Peek(sniffLen)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, fmt.Errorf("failed to read object body: %w", err)
		}
		contentType = DetectContentType(head)
	}

	var writer io.Writer = tmpFile
	var sum hash.Hash
	if input.Fingerprint == "" {
		sum = md5.New()
		writer = io.MultiWriter(tmpFile, sum)
	}

	written, err := io.Copy(writer, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return nil, ioErr("sync", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, ioErr("close", tmpPath, err)
	}

	fingerprint := input.Fingerprint
	if sum != nil {
		fingerprint = hex.EncodeToString(sum.Sum(nil))
	}

	meta = &Metadata{
		Size:         written,
		Fingerprint:  fingerprint,
		ContentType:  contentType,
		CreationDate: time.Now().UTC(),
	}
	if err := publish(dir, tmpPath, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// publish commits fully written content at tmpPath as the object in dir.
// The old metadata goes first so that no reader pairs it with the new bytes;
// the new metadata goes last and is what makes the object visible.
func publish(dir, tmpPath string, meta *Metadata) error {
	if err := removeMetadata(dir); err != nil {
		return err
	}
	contentPath := filepath.Join(dir, contentFile)
	if err := os.Rename(tmpPath, contentPath); err != nil {
		return ioErr("rename content", contentPath, err)
	}
	if err := writeMetadata(dir, meta); err != nil {
		return err
	}
	if err := SyncDir(dir); err != nil {
		return ioErr("sync directory", dir, err)
	}
	return nil
}

// DeleteObject removes a committed object. Deleting a missing key is not an error.
// Staged parts of an in-progress upload for the same key are left alone.
func (fs *FileSystem) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	start := time.Now()
	defer func() { fs.observe("delete_object", start, 0, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	bucketDir, dir, err := fs.existingObjectDir(bucket, key)
	if err != nil {
		return err
	}

	if err := removeMetadata(dir); err != nil {
		return err
	}
	contentPath := filepath.Join(dir, contentFile)
	if err := os.Remove(contentPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioErr("remove content", contentPath, err)
	}

	pruneEmptyDirs(dir, bucketDir)
	return nil
}
