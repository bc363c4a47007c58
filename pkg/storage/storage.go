package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested path does not exist in storage.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by WriteIfRevision and DeleteIfRevision when
	// the stored object no longer matches the expected revision.
	ErrConflict = errors.New("revision conflict")
)

// Storage provides an abstraction over key-value style file storage.
//
// Revisions are opaque strings. An empty revision passed to WriteIfRevision
// means the object must not exist yet.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	ReadRevision(ctx context.Context, path string) ([]byte, string, error)
	Write(ctx context.Context, path string, data []byte) error
	WriteIfRevision(ctx context.Context, path string, data []byte, revision string) (string, error)
	Delete(ctx context.Context, path string) error
	DeleteIfRevision(ctx context.Context, path string, revision string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
