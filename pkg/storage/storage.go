package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested path does not exist in storage.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by WriteNew when the path is already taken.
	ErrExists = errors.New("already exists")
)

// Storage provides an abstraction over key-value style document storage.
//
// Write replaces a document atomically. WriteNew only succeeds when nothing
// is stored at path yet, so documents written through it are never
// overwritten.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	WriteNew(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
