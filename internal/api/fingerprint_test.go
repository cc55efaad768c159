package api

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestUploadID(t *testing.T) {
	assert.Equal(t, md5Hex("demo/a/b.txt"), UploadID("demo", "a/b.txt"))
	assert.Equal(t, UploadID("demo", "k"), UploadID("demo", "k"))
	assert.NotEqual(t, UploadID("demo", "k"), UploadID("demo", "k2"))
}

func TestContentMD5Hex(t *testing.T) {
	sum := md5.Sum([]byte("hello"))
	got, err := contentMD5Hex(base64.StdEncoding.EncodeToString(sum[:]))
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", got)

	_, err = contentMD5Hex("not base64!")
	assert.Error(t, err)

	_, err = contentMD5Hex(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestCompositeETag(t *testing.T) {
	p1, p2 := md5Hex("part one"), md5Hex("part two")

	raw1, _ := hex.DecodeString(p1)
	raw2, _ := hex.DecodeString(p2)
	want := md5.Sum(append(raw1, raw2...))

	got, err := CompositeETag([]string{`"` + p1 + `"`, p2})
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:])+"-2", got)

	empty, err := CompositeETag(nil)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e-0", empty)

	_, err = CompositeETag([]string{"nothex"})
	assert.ErrorIs(t, err, errInvalidETag)
}

func TestNormalizeETag(t *testing.T) {
	assert.Equal(t, "abc", normalizeETag(`"ABC"`))
	assert.Equal(t, "abc-2", normalizeETag(` "abc-2" `))
	assert.Equal(t, `"abc"`, quoteETag("abc"))
}
