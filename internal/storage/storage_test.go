package storage

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFileSystem(t *testing.T, opts ...Option) *FileSystem {
	t.Helper()
	fs, err := NewFileSystem(t.TempDir(), opts...)
	require.NoError(t, err)
	return fs
}

func newTestBucket(t *testing.T, fs *FileSystem, name string) {
	t.Helper()
	require.NoError(t, fs.CreateBucket(context.Background(), name))
}

func putString(t *testing.T, fs *FileSystem, bucket, key, content string) *Metadata {
	t.Helper()
	meta, err := fs.PutObject(context.Background(), &PutObjectInput{
		Bucket: bucket,
		Key:    key,
		Body:   strings.NewReader(content),
	})
	require.NoError(t, err)
	return meta
}

func stageString(t *testing.T, fs *FileSystem, bucket, key string, partNumber int, content string) *Part {
	t.Helper()
	part, err := fs.StagePart(context.Background(), bucket, key, partNumber, strings.NewReader(content))
	require.NoError(t, err)
	return part
}

func readAll(t *testing.T, fs *FileSystem, bucket, key string) string {
	t.Helper()
	stream, err := fs.StreamRange(context.Background(), bucket, key, 0, EndOfObject)
	require.NoError(t, err)
	var sb strings.Builder
	_, err = stream.WriteTo(&sb)
	require.NoError(t, err)
	return sb.String()
}

type observation struct {
	op    string
	bytes int64
	err   error
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []observation
}

func (r *recordingObserver) Observe(op string, bytes int64, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, observation{op: op, bytes: bytes, err: err})
}

func (r *recordingObserver) find(op string) (observation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.ops {
		if o.op == op {
			return o, true
		}
	}
	return observation{}, false
}

// failingReader returns its error after yielding data.
type failingReader struct {
	data string
	err  error
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

var _ io.Reader = (*failingReader)(nil)
