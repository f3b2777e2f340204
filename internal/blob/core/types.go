// Package core defines the blob storage abstraction implemented by the
// infra backends and consumed by the snapshot archiver.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names a blob backend in configuration.
type Driver string

// Supported drivers.
const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// PutOptions carries the content type and flat user metadata stored with an
// object. Snapshot uploads record the project name and document timestamp.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info is the metadata returned for a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only object store. Put fails with ErrExists when the key
// is taken; List returns keys in lexical order.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key is already stored.
	ErrExists = errors.New("blobstore: key already exists")
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("blobstore: key not found")
)

// CloneMetadata returns an independent copy of in.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
