package storage

import (
	"errors"
	"fmt"
	"os"
)

// Storage errors
var (
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	ErrBucketNotEmpty      = errors.New("bucket not empty")
	ErrInvalidBucketName   = errors.New("invalid bucket name")
	ErrObjectNotFound      = errors.New("object not found")
	ErrInvalidKey          = errors.New("invalid object key")
	ErrInvalidPartNumber   = errors.New("invalid part number")
	ErrInvalidFingerprint  = errors.New("invalid fingerprint")
	ErrStreamConsumed      = errors.New("range stream already consumed")
	ErrIO                  = errors.New("storage io failure")
)

// IOError reports a filesystem failure other than not-found.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrIO) match any IOError.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// notFoundOr maps a missing file to notFound and wraps anything else as an IOError.
func notFoundOr(notFound error, op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return notFound
	}
	return ioErr(op, path, err)
}

// IsNotFound reports whether err means the bucket or object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrBucketNotFound)
}
