// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package storage keeps uploaded documents on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file exceeds the upload size limit")
	// ErrInvalidKey is returned for keys that were not issued by Save.
	ErrInvalidKey = errors.New("invalid storage key")
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Local stores blobs as files below a root directory under random keys.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Local{root: root}, nil
}

// Save writes r under a new key and returns the key and the number of bytes
// written. The key keeps the lower-cased extension of filename when it is
// plain. A maxBytes of zero or less means no limit.
func (l *Local) Save(filename string, r io.Reader, maxBytes int64) (string, int64, error) {
	key := uuid.NewString()
	if ext := strings.ToLower(filepath.Ext(filename)); extPattern.MatchString(ext) {
		key += ext
	}

	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	size, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("writing upload: %w", err)
	}
	if maxBytes > 0 && size > maxBytes {
		return "", 0, ErrTooLarge
	}

	if err := os.Rename(tmp.Name(), filepath.Join(l.root, key)); err != nil {
		return "", 0, fmt.Errorf("storing upload: %w", err)
	}
	return key, size, nil
}

// Open returns a reader for a stored blob.
func (l *Local) Open(key string) (io.ReadCloser, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path) //nolint:gosec // key is validated
}

// Delete removes a stored blob. Missing blobs are not an error.
func (l *Local) Delete(key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) path(key string) (string, error) {
	id, ext, _ := strings.Cut(key, ".")
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidKey
	}
	if ext != "" && !extPattern.MatchString("."+ext) {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.root, key), nil
}
