package storage

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gocloud.dev/blob/fileblob"
)

func NewLocal(ctx context.Context, path string) (Bucket, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create '%s'", path)
	}

	b, err := fileblob.OpenBucket(path, nil)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to open local bucket '%s'", path)
	}

	return &bucket{name: "file://" + path, bucket: b}, nil
}
