package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
)

// writeFileAtomic writes data to a temp file next to path and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return ioErr("create temp", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmp.Write(data); err != nil {
		return ioErr("write", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return ioErr("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return ioErr("close", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return ioErr("chmod", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return ioErr("rename", path, err)
	}
	return nil
}

// SyncDir best-effort fsyncs a directory so that recently renamed files become durable.
// On platforms where directory fsync is unsupported, the error is ignored.
func SyncDir(dir string) error {
	if dir == "" {
		return nil
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	if err := df.Sync(); err != nil {
		// tmpfs and friends return EINVAL for directory sync.
		if errors.Is(err, syscall.EINVAL) {
			return nil
		}
		return err
	}
	return nil
}

// pruneEmptyDirs removes dir and its ancestors up to (not including) stop while they are empty.
func pruneEmptyDirs(dir, stop string) {
	stop = filepath.Clean(stop)
	for dir = filepath.Clean(dir); dir != stop; dir = filepath.Dir(dir) {
		if !strings.HasPrefix(dir, stop+string(filepath.Separator)) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// isRegularFile reports whether path exists and is a regular file.
func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// contextReader stops reading once its context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// md5File returns the hex MD5 of the file at path.
func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
