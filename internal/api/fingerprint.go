package api

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var errInvalidETag = errors.New("invalid part etag")

// UploadID is the multipart upload id of a key. It is derived from the bucket and key
// rather than stored, so every upload to the same key shares it.
func UploadID(bucket, key string) string {
	sum := md5.Sum([]byte(bucket + "/" + key))
	return hex.EncodeToString(sum[:])
}

// contentMD5Hex converts a base64 Content-MD5 header value to the hex fingerprint form.
func contentMD5Hex(header string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return "", fmt.Errorf("decode Content-MD5: %w", err)
	}
	if len(raw) != md5.Size {
		return "", fmt.Errorf("Content-MD5 is %d bytes, want %d", len(raw), md5.Size)
	}
	return hex.EncodeToString(raw), nil
}

// normalizeETag strips the quotes clients send around ETags.
func normalizeETag(etag string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(etag), `"`))
}

// quoteETag renders a fingerprint as an HTTP entity tag.
func quoteETag(fp string) string {
	return `"` + fp + `"`
}

// CompositeETag computes the multipart ETag: the MD5 of the concatenated binary part
// digests, suffixed with the part count.
func CompositeETag(partETags []string) (string, error) {
	h := md5.New()
	for _, etag := range partETags {
		raw, err := hex.DecodeString(normalizeETag(etag))
		if err != nil || len(raw) != md5.Size {
			return "", fmt.Errorf("%w: %q", errInvalidETag, etag)
		}
		h.Write(raw)
	}
	return fmt.Sprintf("%s-%d", hex.EncodeToString(h.Sum(nil)), len(partETags)), nil
}
