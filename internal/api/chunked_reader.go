package api

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errMalformedChunk = errors.New("malformed aws-chunked body")

// ChunkedReader decodes an aws-chunked request body.
//
//	<hex-size>[;chunk-signature=<signature>]\r\n
//	<data>\r\n
//	...
//	0[;chunk-signature=<final-signature>]\r\n
//	[<trailer-name>:<value>\r\n ...]
//	\r\n
type ChunkedReader struct {
	reader    *bufio.Reader
	remaining int64 // remaining bytes in current chunk
	done      bool
}

// NewChunkedReader creates a new ChunkedReader.
func NewChunkedReader(r io.Reader) *ChunkedReader {
	return &ChunkedReader{
		reader: bufio.NewReader(r),
	}
}

// Read implements io.Reader.
func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if cr.remaining == 0 {
		if err := cr.readChunkHeader(); err != nil {
			return 0, err
		}
		if cr.remaining == 0 {
			cr.done = true
			if err := cr.skipTrailers(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
	}

	toRead := min(int64(len(p)), cr.remaining)
	n, err := cr.reader.Read(p[:toRead])
	cr.remaining -= int64(n)

	if cr.remaining == 0 && n > 0 {
		if err := cr.readCRLF(); err != nil {
			return n, err
		}
	}

	if err == io.EOF {
		// The terminating zero-size chunk never arrived.
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// readChunkHeader parses <hex-size>[;extensions]\r\n.
func (cr *ChunkedReader) readChunkHeader() error {
	line, err := cr.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	line = strings.TrimRight(line, "\r\n")
	sizeStr, _, _ := strings.Cut(line, ";")

	size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
	if err != nil || size < 0 {
		return fmt.Errorf("%w: invalid chunk size %q", errMalformedChunk, sizeStr)
	}

	cr.remaining = size
	return nil
}

func (cr *ChunkedReader) readCRLF() error {
	line, err := cr.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if strings.TrimRight(line, "\r\n") != "" {
		return fmt.Errorf("%w: missing CRLF after chunk data", errMalformedChunk)
	}
	return nil
}

// skipTrailers consumes trailing headers such as x-amz-checksum-crc32 up to the blank line.
func (cr *ChunkedReader) skipTrailers() error {
	for {
		line, err := cr.reader.ReadString('\n')
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// IsAWSChunked checks if the request uses aws-chunked encoding.
func IsAWSChunked(contentEncoding, contentSHA256 string) bool {
	if strings.Contains(contentEncoding, "aws-chunked") {
		return true
	}
	// STREAMING-AWS4-HMAC-SHA256-PAYLOAD, STREAMING-UNSIGNED-PAYLOAD-TRAILER and friends.
	return strings.HasPrefix(contentSHA256, "STREAMING-")
}
