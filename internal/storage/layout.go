package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"
)

// Marker files inside an object directory.
const (
	markerPrefix = ".fakes3_"
	contentFile  = markerPrefix + "content"
	metadataFile = markerPrefix + "metadata"
	partSuffix   = markerPrefix + "content_part"
	tmpPrefix    = markerPrefix + "tmp-"
)

// DefaultMaxKeys is used when a listing is requested without a positive cap.
const DefaultMaxKeys = 1000

var bucketNameRegex = regexp.MustCompile(`^[a-z0-9_-]{1,255}$`)

// ValidBucketName reports whether name may be used as a bucket name.
func ValidBucketName(name string) bool {
	return bucketNameRegex.MatchString(name)
}

// ValidKey reports whether key can name an object.
func ValidKey(key string) bool {
	return validateKey(key) == nil
}

// validateKey rejects keys that would escape the bucket or collide with marker files.
func validateKey(key string) error {
	if key == "" || strings.ContainsRune(key, 0) {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.HasPrefix(seg, markerPrefix) || strings.HasSuffix(seg, partSuffix) {
			return ErrInvalidKey
		}
		if filepath.Separator != '/' && strings.ContainsRune(seg, filepath.Separator) {
			return ErrInvalidKey
		}
	}
	return nil
}

// bucketPath resolves the directory of a bucket.
func (fs *FileSystem) bucketPath(bucket string) (string, error) {
	if !ValidBucketName(bucket) {
		return "", ErrInvalidBucketName
	}
	return filepath.Join(fs.dataDir, bucket), nil
}

// objectPath resolves the directory of an object.
func (fs *FileSystem) objectPath(bucket, key string) (string, error) {
	bucketDir, err := fs.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(bucketDir, filepath.FromSlash(key)), nil
}

// existingBucket resolves a bucket directory and checks that it exists.
func (fs *FileSystem) existingBucket(bucket string) (string, os.FileInfo, error) {
	path, err := fs.bucketPath(bucket)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, notFoundOr(ErrBucketNotFound, "stat bucket", path, err)
	}
	if !info.IsDir() {
		return "", nil, ErrBucketNotFound
	}
	return path, info, nil
}

// existingObjectDir resolves an object directory inside an existing bucket.
func (fs *FileSystem) existingObjectDir(bucket, key string) (string, string, error) {
	bucketDir, _, err := fs.existingBucket(bucket)
	if err != nil {
		return "", "", err
	}
	dir, err := fs.objectPath(bucket, key)
	if err != nil {
		return "", "", err
	}
	return bucketDir, dir, nil
}

// CreateBucket creates a new bucket directory.
func (fs *FileSystem) CreateBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := fs.bucketPath(name)
	if err != nil {
		return err
	}

	if err := os.Mkdir(path, 0755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrBucketAlreadyExists
		}
		return ioErr("create bucket", path, err)
	}
	return nil
}

// DeleteBucket removes a bucket that holds no committed objects.
// Staged parts and empty directories left behind by aborted work go with it.
func (fs *FileSystem) DeleteBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, _, err := fs.existingBucket(name)
	if err != nil {
		return err
	}

	hasObjects := false
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() || p == path {
			return nil
		}
		if _, err := readCommitted(p); err == nil {
			hasObjects = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return ioErr("scan bucket", path, err)
	}
	if hasObjects {
		return ErrBucketNotEmpty
	}

	if err := os.RemoveAll(path); err != nil {
		return ioErr("delete bucket", path, err)
	}
	return nil
}

// HeadBucket returns bucket metadata if it exists.
func (fs *FileSystem) HeadBucket(ctx context.Context, name string) (*Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, info, err := fs.existingBucket(name)
	if err != nil {
		return nil, err
	}
	return &Bucket{Name: name, CreationDate: info.ModTime().UTC()}, nil
}

// ListBuckets returns all buckets sorted by name.
func (fs *FileSystem) ListBuckets(ctx context.Context) ([]Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, ioErr("list buckets", fs.dataDir, err)
	}

	buckets := make([]Bucket, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !ValidBucketName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // deleted while listing
			}
			return nil, ioErr("stat bucket", filepath.Join(fs.dataDir, entry.Name()), err)
		}
		buckets = append(buckets, Bucket{
			Name:         entry.Name(),
			CreationDate: info.ModTime().UTC(),
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Name < buckets[j].Name
	})
	return buckets, nil
}

// keyEntry is one step of an ordered walk: either the object directory itself or
// everything nested beneath it.
type keyEntry struct {
	key     string // the directory's key, plus a trailing "/" for the nested entry
	name    string
	subtree bool
}

// keyWalk visits object directories in byte order of their keys, the order S3 lists in.
// Sorting a directory's own key and key+"/" together with its siblings' keys interleaves
// nested keys correctly: "a" < "a-b" < "a/x" < "ab".
type keyWalk struct {
	ctx        context.Context
	prefix     string
	startAfter string
	visit      func(key, dir string) error
}

// wantsKey reports whether key belongs in the listing.
func (w *keyWalk) wantsKey(key string) bool {
	return strings.HasPrefix(key, w.prefix) && key > w.startAfter
}

// wantsSubtree reports whether any key under nested (ending in "/") can be listed.
func (w *keyWalk) wantsSubtree(nested string) bool {
	if !strings.HasPrefix(nested, w.prefix) && !strings.HasPrefix(w.prefix, nested) {
		return false
	}
	// Every key under nested sorts before startAfter unless startAfter is itself nested there.
	return nested > w.startAfter || strings.HasPrefix(w.startAfter, nested)
}

func (w *keyWalk) walk(dir, base string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // removed while listing
		}
		return ioErr("list objects", dir, err)
	}

	entries := make([]keyEntry, 0, 2*len(dirEntries))
	for _, d := range dirEntries {
		if !d.IsDir() || strings.HasPrefix(d.Name(), markerPrefix) {
			continue
		}
		key := base + d.Name()
		entries = append(entries,
			keyEntry{key: key, name: d.Name()},
			keyEntry{key: key + "/", name: d.Name(), subtree: true},
		)
	}
	slices.SortFunc(entries, func(a, b keyEntry) int {
		return strings.Compare(a.key, b.key)
	})

	for _, e := range entries {
		path := filepath.Join(dir, e.name)
		switch {
		case e.subtree && w.wantsSubtree(e.key):
			err = w.walk(path, e.key)
		case !e.subtree && w.wantsKey(e.key):
			err = w.visit(e.key, path)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ListObjects lists committed objects whose key starts with the prefix, in byte order of key.
// Directories mid-assembly and intermediate path segments are skipped.
func (fs *FileSystem) ListObjects(ctx context.Context, input *ListObjectsInput) (out *ListObjectsOutput, err error) {
	start := time.Now()
	defer func() { fs.observe("list_objects", start, 0, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, _, err := fs.existingBucket(input.Bucket)
	if err != nil {
		return nil, err
	}

	maxKeys := input.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	out = &ListObjectsOutput{Objects: []Object{}}
	w := &keyWalk{
		ctx:        ctx,
		prefix:     input.Prefix,
		startAfter: input.StartAfter,
		visit: func(key, dir string) error {
			meta, err := readCommitted(dir)
			if errors.Is(err, ErrObjectNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if len(out.Objects) == maxKeys {
				out.IsTruncated = true
				return filepath.SkipAll
			}
			out.Objects = append(out.Objects, Object{Key: key, Metadata: *meta})
			return nil
		},
	}
	err = w.walk(root, "")
	if errors.Is(err, filepath.SkipAll) {
		err = nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var ioe *IOError
		if errors.As(err, &ioe) {
			return nil, err
		}
		return nil, ioErr("list objects", root, err)
	}
	return out, nil
}
