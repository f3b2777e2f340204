package blob

import (
	"github.com/almecha/GlucoseIoT/internal/infra/blob/memory"
	"github.com/almecha/GlucoseIoT/internal/infra/blob/s3"
)

// NewMemory returns an in-process store.
func NewMemory() Store { return memory.New() }

// NewMockS3ForTests returns an S3 store backed by an in-process transport.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }
