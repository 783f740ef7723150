package blob

import (
	"context"
	"fmt"
)

// Options selects a blob backend and its driver-specific settings.
type Options struct {
	Driver string // fs|s3|memory
	Dir    string // root directory when Driver is fs
	Bucket string // bucket name when Driver is s3
}

// Open constructs the Store selected by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(opts.Dir)
	case DriverS3:
		return NewS3(ctx, s3ConfigFromEnv(opts.Bucket))
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
