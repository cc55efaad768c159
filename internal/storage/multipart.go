package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Part numbers accepted by StagePart.
const (
	MinPartNumber = 1
	MaxPartNumber = 10000
)

type stagedPart struct {
	number int
	path   string
	size   int64
	mtime  time.Time
}

func partFileName(partNumber int) string {
	return strconv.Itoa(partNumber) + partSuffix
}

func parsePartFileName(name string) (int, bool) {
	num, ok := strings.CutSuffix(name, partSuffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < MinPartNumber || n > MaxPartNumber {
		return 0, false
	}
	return n, true
}

// listStaged returns the staged parts of an object directory ordered by part number.
func listStaged(dir string) ([]stagedPart, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, ioErr("list parts", dir, err)
	}

	var parts []stagedPart
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		n, ok := parsePartFileName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, ioErr("stat part", filepath.Join(dir, entry.Name()), err)
		}
		parts = append(parts, stagedPart{
			number: n,
			path:   filepath.Join(dir, entry.Name()),
			size:   info.Size(),
			mtime:  info.ModTime().UTC(),
		})
	}

	// Numeric, not lexical: part 10 follows part 2.
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].number < parts[j].number
	})
	return parts, nil
}

// StagePart writes or overwrites one part of a multipart upload.
func (fs *FileSystem) StagePart(ctx context.Context, bucket, key string, partNumber int, body io.Reader) (part *Part, err error) {
	start := time.Now()
	defer func() {
		var n int64
		if part != nil {
			n = part.Size
		}
		fs.observe("stage_part", start, n, err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if partNumber < MinPartNumber || partNumber > MaxPartNumber {
		return nil, ErrInvalidPartNumber
	}
	_, dir, err := fs.existingObjectDir(bucket, key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioErr("create object directory", dir, err)
	}

	// Each stage writes its own temp file, so concurrent parts never share a handle.
	tmpFile, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return nil, ioErr("create temp", dir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	sum := md5.New()
	written, err := io.Copy(io.MultiWriter(tmpFile, sum), &contextReader{ctx: ctx, r: body})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to write part: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return nil, ioErr("sync", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, ioErr("close", tmpPath, err)
	}

	partPath := filepath.Join(dir, partFileName(partNumber))
	if err := os.Rename(tmpPath, partPath); err != nil {
		return nil, ioErr("rename part", partPath, err)
	}

	return &Part{
		PartNumber:   partNumber,
		Size:         written,
		Fingerprint:  hex.EncodeToString(sum.Sum(nil)),
		LastModified: time.Now().UTC(),
	}, nil
}

// ListParts returns the staged parts of an upload in part-number order.
func (fs *FileSystem) ListParts(ctx context.Context, bucket, key string) ([]Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, dir, err := fs.existingObjectDir(bucket, key)
	if err != nil {
		return nil, err
	}
	staged, err := listStaged(dir)
	if err != nil {
		return nil, err
	}

	parts := make([]Part, 0, len(staged))
	for _, sp := range staged {
		fp, err := md5File(sp.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // consumed by a concurrent completion
			}
			return nil, ioErr("hash part", sp.path, err)
		}
		parts = append(parts, Part{
			PartNumber:   sp.number,
			Size:         sp.size,
			Fingerprint:  fp,
			LastModified: sp.mtime,
		})
	}
	return parts, nil
}

// CompleteMultipart merges every staged part, in part-number order, into the final object.
//
// The merged bytes go to a temp file that is published only after the last part has been
// copied, and staged parts are removed only once the metadata is written. A crash at any
// point leaves either the untouched upload or a committed object; retrying is safe in both.
func (fs *FileSystem) CompleteMultipart(ctx context.Context, input *CompleteMultipartInput) (meta *Metadata, err error) {
	start := time.Now()
	defer func() {
		var n int64
		if meta != nil {
			n = meta.Size
		}
		fs.observe("complete_multipart", start, n, err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidFingerprint(input.Fingerprint) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFingerprint, input.Fingerprint)
	}
	_, dir, err := fs.existingObjectDir(input.Bucket, input.Key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioErr("create object directory", dir, err)
	}

	parts, err := listStaged(dir)
	if err != nil {
		return nil, err
	}

	tmpFile, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return nil, ioErr("create temp", dir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	m := &merger{ctx: ctx, dst: tmpFile}
	if len(parts) > 0 {
		m.buf = make([]byte, fs.mergeChunkSize)
	}
	for _, p := range parts {
		if err := m.appendFile(p.path); err != nil {
			return nil, err
		}
	}
	if err := tmpFile.Sync(); err != nil {
		return nil, ioErr("sync", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, ioErr("close", tmpPath, err)
	}

	meta = &Metadata{
		Size:         m.size,
		Fingerprint:  input.Fingerprint,
		ContentType:  DetectContentType(m.head),
		CreationDate: time.Now().UTC(),
		Parts:        input.Parts,
	}
	if err := publish(dir, tmpPath, meta); err != nil {
		return nil, err
	}

	for _, p := range parts {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("part", p.path).Msg("Failed to remove merged part")
		}
	}

	log.Debug().
		Str("bucket", input.Bucket).
		Str("key", input.Key).
		Int("parts", len(parts)).
		Int64("size", m.size).
		Msg("Completed multipart upload")

	return meta, nil
}

// AbortMultipart discards every staged part of an upload.
func (fs *FileSystem) AbortMultipart(ctx context.Context, bucket, key string) (err error) {
	start := time.Now()
	defer func() { fs.observe("abort_multipart", start, 0, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	bucketDir, dir, err := fs.existingObjectDir(bucket, key)
	if err != nil {
		return err
	}
	parts, err := listStaged(dir)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ioErr("remove part", p.path, err)
		}
	}

	pruneEmptyDirs(dir, bucketDir)
	return nil
}

// merger appends files to dst in bounded chunks, remembering the leading bytes for sniffing.
type merger struct {
	ctx  context.Context
	dst  io.Writer
	buf  []byte
	head []byte
	size int64
}

func (m *merger) appendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ioErr("open part", path, err)
	}
	defer f.Close()

	for {
		if err := m.ctx.Err(); err != nil {
			return err
		}
		n, rerr := f.Read(m.buf)
		if n > 0 {
			if len(m.head) < sniffLen {
				m.head = append(m.head, m.buf[:min(n, sniffLen-len(m.head))]...)
			}
			if _, err := m.dst.Write(m.buf[:n]); err != nil {
				return ioErr("write merged content", path, err)
			}
			m.size += int64(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return ioErr("read part", path, rerr)
		}
	}
}
