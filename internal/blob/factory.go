package blob

import (
	"context"
	"fmt"

	"github.com/almecha/GlucoseIoT/internal/infra/blob/fs"
	"github.com/almecha/GlucoseIoT/internal/infra/blob/memory"
	"github.com/almecha/GlucoseIoT/internal/infra/blob/s3"
)

// Config selects and parameterizes a blob backend.
type Config struct {
	Driver   string
	FSRoot   string
	S3Bucket string
	S3Region string
	// S3Endpoint enables S3-compatible services such as MinIO.
	S3Endpoint  string
	S3PathStyle bool
}

// Open returns the backend named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
