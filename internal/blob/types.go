// Package blob re-exports the blob abstractions and selects a backend from
// configuration.
package blob

import (
	"github.com/almecha/GlucoseIoT/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// Sentinel errors shared by every backend.
var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)
