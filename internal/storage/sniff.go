package storage

import (
	"github.com/gabriel-vasile/mimetype"
	"github.com/h2non/filetype"
)

// sniffLen is how many leading bytes of an object are inspected for its content type.
const sniffLen = 4096

// DefaultContentType is reported for content with no recognizable signature.
const DefaultContentType = "application/octet-stream"

// DetectContentType guesses a MIME type from the leading bytes of an object.
// Binary formats are matched by magic-byte signature first; text and anything
// filetype does not know fall through to mimetype's detector tree.
func DetectContentType(head []byte) string {
	if len(head) == 0 {
		return DefaultContentType
	}
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return mimetype.Detect(head).String()
}
