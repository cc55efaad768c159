package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// CreationDateLayout is the ISO-8601 form persisted for creation dates.
const CreationDateLayout = "2006-01-02T15:04:05.000Z"

var fingerprintRegex = regexp.MustCompile(`^[0-9a-f]+(-[0-9]+)?$`)

// ValidFingerprint reports whether fp is lowercase hex with an optional -<n> part-count suffix.
func ValidFingerprint(fp string) bool {
	return fingerprintRegex.MatchString(fp)
}

type metadataOnDisk struct {
	Size         int64        `json:"size"`
	Fingerprint  string       `json:"fingerprint"`
	ContentType  string       `json:"content_type"`
	CreationDate string       `json:"creation_date"`
	Parts        []partOnDisk `json:"parts,omitempty"`
}

type partOnDisk struct {
	PartNumber  int    `json:"part_number"`
	Fingerprint string `json:"fingerprint"`
}

func encodeMetadata(m *Metadata) ([]byte, error) {
	if m.Size < 0 {
		return nil, fmt.Errorf("negative object size %d", m.Size)
	}
	rec := metadataOnDisk{
		Size:         m.Size,
		Fingerprint:  m.Fingerprint,
		ContentType:  m.ContentType,
		CreationDate: m.CreationDate.UTC().Format(CreationDateLayout),
	}
	for _, p := range m.Parts {
		rec.Parts = append(rec.Parts, partOnDisk{PartNumber: p.PartNumber, Fingerprint: p.Fingerprint})
	}
	return json.Marshal(rec)
}

func decodeMetadata(data []byte) (*Metadata, error) {
	var rec metadataOnDisk
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if rec.Size < 0 {
		return nil, fmt.Errorf("negative object size %d", rec.Size)
	}
	created, err := time.Parse(CreationDateLayout, rec.CreationDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse creation date: %w", err)
	}

	m := &Metadata{
		Size:         rec.Size,
		Fingerprint:  rec.Fingerprint,
		ContentType:  rec.ContentType,
		CreationDate: created,
	}
	for _, p := range rec.Parts {
		m.Parts = append(m.Parts, PartInfo{PartNumber: p.PartNumber, Fingerprint: p.Fingerprint})
	}
	return m, nil
}

// readMetadata loads the metadata marker of an object directory.
func readMetadata(dir string) (*Metadata, error) {
	path := filepath.Join(dir, metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notFoundOr(ErrObjectNotFound, "read metadata", path, err)
	}
	m, err := decodeMetadata(data)
	if err != nil {
		return nil, ioErr("decode metadata", path, err)
	}
	return m, nil
}

// writeMetadata atomically replaces the metadata marker of an object directory.
func writeMetadata(dir string, m *Metadata) error {
	data, err := encodeMetadata(m)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, metadataFile), data, 0644)
}

// readCommitted returns the metadata of a committed object. A directory missing
// either marker is reported as ErrObjectNotFound.
func readCommitted(dir string) (*Metadata, error) {
	if !isRegularFile(filepath.Join(dir, contentFile)) {
		return nil, ErrObjectNotFound
	}
	m, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}
	// Content may have been removed by a concurrent delete.
	if !isRegularFile(filepath.Join(dir, contentFile)) {
		return nil, ErrObjectNotFound
	}
	return m, nil
}

// removeMetadata drops the metadata marker, making the object invisible.
func removeMetadata(dir string) error {
	path := filepath.Join(dir, metadataFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioErr("remove metadata", path, err)
	}
	return nil
}
