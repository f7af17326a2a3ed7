// Package storage provides the read-side object store the file connector
// loads data files from: the local filesystem or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrReadFailed     = errors.New("read failed")
	ErrListFailed     = errors.New("list failed")
)

// ObjectStorage reads objects by slash-separated key.
type ObjectStorage interface {
	// Open returns a reader over the object's content. The caller closes it.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Exists reports whether the object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns every object key under prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// IsGlob reports whether name contains glob metacharacters.
func IsGlob(name string) bool {
	return strings.ContainsAny(name, "*?[")
}

// Glob lists the objects whose key matches pattern. Only the last path
// element may contain metacharacters; the directory part is a listing
// prefix.
func Glob(ctx context.Context, s ObjectStorage, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	dir := path.Dir(pattern)
	prefix := ""
	if dir != "." {
		prefix = dir + "/"
	}
	keys, err := s.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, key := range keys {
		if path.Dir(key) != path.Dir(pattern) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			matches = append(matches, key)
		}
	}
	return matches, nil
}

// ReadAll opens objectPath and reads it fully.
func ReadAll(ctx context.Context, s ObjectStorage, objectPath string) ([]byte, error) {
	rc, err := s.Open(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
