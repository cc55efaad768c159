package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMetadata(t *testing.T) {
	created := time.Date(2026, 10, 18, 10, 11, 12, 345678901, time.UTC)
	data, err := encodeMetadata(&Metadata{
		Size:         42,
		Fingerprint:  "abc123",
		ContentType:  "text/plain",
		CreationDate: created,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"size": 42,
		"fingerprint": "abc123",
		"content_type": "text/plain",
		"creation_date": "2026-10-18T10:11:12.345Z"
	}`, string(data))

	m, err := decodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.Size)
	assert.Equal(t, "abc123", m.Fingerprint)
	assert.Equal(t, "text/plain", m.ContentType)
	assert.True(t, created.Truncate(time.Millisecond).Equal(m.CreationDate))
	assert.Nil(t, m.Parts)
}

func TestEncodeMetadataWithParts(t *testing.T) {
	in := &Metadata{
		Size:         10,
		Fingerprint:  "ff00-2",
		ContentType:  DefaultContentType,
		CreationDate: time.Now(),
		Parts: []PartInfo{
			{PartNumber: 1, Fingerprint: "aa"},
			{PartNumber: 2, Fingerprint: "bb"},
		},
	}
	data, err := encodeMetadata(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parts":[{"part_number":1,"fingerprint":"aa"}`)

	out, err := decodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, in.Parts, out.Parts)
}

func TestDecodeMetadataRejectsBadRecords(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":      `{size`,
		"negative size": `{"size":-1,"fingerprint":"a","content_type":"x","creation_date":"2026-10-18T10:11:12.345Z"}`,
		"bad date":      `{"size":1,"fingerprint":"a","content_type":"x","creation_date":"yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeMetadata([]byte(raw))
			assert.Error(t, err)
		})
	}

	_, err := encodeMetadata(&Metadata{Size: -1})
	assert.Error(t, err)
}

func TestValidFingerprint(t *testing.T) {
	for _, fp := range []string{"d41d8cd98f00b204e9800998ecf8427e", "abc-3", "0-10000"} {
		assert.True(t, ValidFingerprint(fp), fp)
	}
	for _, fp := range []string{"", "ABC", "abc-", "-3", "abc-x", "\"abc\"", "abc-3-4"} {
		assert.False(t, ValidFingerprint(fp), fp)
	}
}

func TestWriteMetadataIsAtomic(t *testing.T) {
	dir := t.TempDir()

	first := &Metadata{Size: 1, Fingerprint: "aa", ContentType: "a/b", CreationDate: time.Now()}
	second := &Metadata{Size: 2, Fingerprint: "bb", ContentType: "c/d", CreationDate: time.Now()}
	require.NoError(t, writeMetadata(dir, first))
	require.NoError(t, writeMetadata(dir, second))

	m, err := readMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, "bb", m.Fingerprint)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, metadataFile, entries[0].Name())

	info, err := os.Stat(filepath.Join(dir, metadataFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestReadMetadataMissing(t *testing.T) {
	_, err := readMetadata(t.TempDir())
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
