package storage

import (
	"context"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EndOfObject as the end offset of StreamRange reads through the last byte.
const EndOfObject int64 = -1

// RangeStream yields the bytes of an object between two offsets in bounded chunks.
// It can be iterated once; the underlying file is released when iteration stops
// for any reason, or by Close if the stream is never iterated.
type RangeStream struct {
	ctx       context.Context
	file      *os.File
	path      string
	remaining int64 // -1 reads to EOF
	chunkSize int
	consumed  bool

	closeOnce sync.Once
	onClose   func(n int64, err error)
	read      int64
	err       error
}

// StreamRange opens a committed object for reading from start through end, inclusive.
// If end is before start (EndOfObject included) the stream runs to the end of the object.
// Offsets are not checked against the object size; a range past the end simply yields
// fewer bytes.
func (fs *FileSystem) StreamRange(ctx context.Context, bucket, key string, start, end int64) (*RangeStream, error) {
	opened := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, dir, err := fs.existingObjectDir(bucket, key)
	if err != nil {
		return nil, err
	}
	if _, err := readCommitted(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, contentFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, notFoundOr(ErrObjectNotFound, "open content", path, err)
	}
	if start < 0 {
		start = 0
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, ioErr("seek", path, err)
	}

	remaining := int64(-1)
	if end >= start {
		remaining = end - start + 1
	}

	return &RangeStream{
		ctx:       ctx,
		file:      f,
		path:      path,
		remaining: remaining,
		chunkSize: fs.readChunkSize,
		onClose: func(n int64, err error) {
			fs.observe("stream_range", opened, n, err)
		},
	}, nil
}

// Chunks returns the byte chunks of the range. Each chunk is a fresh slice the
// caller may keep. Breaking out of the loop releases the file.
func (s *RangeStream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.consumed {
			yield(nil, ErrStreamConsumed)
			return
		}
		s.consumed = true
		defer s.Close()

		for s.remaining != 0 {
			if err := s.ctx.Err(); err != nil {
				s.err = err
				yield(nil, err)
				return
			}

			n := s.chunkSize
			if s.remaining > 0 && s.remaining < int64(n) {
				n = int(s.remaining)
			}
			buf := make([]byte, n)
			read, err := io.ReadFull(s.file, buf)
			if read > 0 {
				s.read += int64(read)
				if s.remaining > 0 {
					s.remaining -= int64(read)
				}
				if !yield(buf[:read], nil) {
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				s.err = notFoundOr(ErrObjectNotFound, "read content", s.path, err)
				yield(nil, s.err)
				return
			}
		}
	}
}

// WriteTo copies the whole range to w.
func (s *RangeStream) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for chunk, err := range s.Chunks() {
		if err != nil {
			return written, err
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Close releases the file. It is safe to call more than once.
func (s *RangeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.file.Close()
		if s.onClose != nil {
			s.onClose(s.read, s.err)
		}
	})
	return err
}

