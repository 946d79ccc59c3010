package storage

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const uploadAttempts = 3

// Download copies the object key of bucket to the local file path.
func Download(ctx context.Context, bucket Bucket, key string, path string) error {
	log.Debugf("download '%s' to '%s'", key, path)

	f, err := os.Create(path)

	if err != nil {
		return errors.Wrapf(err, "unable to create '%s'", path)
	}

	if err = bucket.Read(ctx, key, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}

	return f.Close()
}

// Upload copies the local file path to the object key of bucket, retrying transient failures.
func Upload(ctx context.Context, bucket Bucket, key string, path string, contentType string) error {
	log.Debugf("upload '%s' to '%s'", path, key)

	return retry.Do(
		func() error {
			f, err := os.Open(path)

			if err != nil {
				return retry.Unrecoverable(errors.Wrapf(err, "unable to open '%s'", path))
			}

			defer f.Close()

			return bucket.Write(ctx, key, f, contentType)
		},
		retry.Context(ctx),
		retry.Attempts(uploadAttempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

// UploadDir uploads every file below dir under prefix, keeping the relative layout. contentType
// maps a file name to its media type and may be nil.
func UploadDir(ctx context.Context, bucket Bucket, prefix string, dir string, contentType func(name string) string) (int, error) {
	count := 0

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)

		if err != nil {
			return err
		}

		ct := ""
		if contentType != nil {
			ct = contentType(d.Name())
		}

		if err = Upload(ctx, bucket, path.Join(prefix, filepath.ToSlash(rel)), p, ct); err != nil {
			return err
		}

		count++
		return nil
	})

	if err != nil {
		return count, errors.Wrapf(err, "unable to upload '%s'", dir)
	}

	return count, nil
}
