package storage

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
)

// Bucket is the object storage finished renditions are published to.
type Bucket interface {
	Get(ctx context.Context, key string) (data []byte, err error)
	Read(ctx context.Context, key string, output io.Writer) (err error)
	Write(ctx context.Context, key string, input io.Reader, contentType string) (err error)
	Delete(ctx context.Context, prefix string) (err error)
	Close() error
}

type beforeWrite func(as func(interface{}) bool) error

type bucket struct {
	name   string
	bucket *blob.Bucket
	before beforeWrite
}

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, key)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to read '%s' from %s", key, b.name)
	}

	return data, nil
}

func (b *bucket) Read(ctx context.Context, key string, output io.Writer) error {
	reader, err := b.bucket.NewReader(ctx, key, nil)

	if err != nil {
		return errors.Wrapf(err, "unable to open '%s' from %s", key, b.name)
	}

	defer reader.Close()

	if _, err = io.Copy(output, reader); err != nil {
		return errors.Wrapf(err, "unable to read '%s' from %s", key, b.name)
	}

	return nil
}

func (b *bucket) Write(ctx context.Context, key string, input io.Reader, contentType string) error {
	opts := &blob.WriterOptions{ContentType: contentType, BeforeWrite: b.before}

	writer, err := b.bucket.NewWriter(ctx, key, opts)

	if err != nil {
		return errors.Wrapf(err, "unable to open writer for '%s' on %s", key, b.name)
	}

	if _, err = io.Copy(writer, input); err != nil {
		_ = writer.Close()
		return errors.Wrapf(err, "unable to write '%s' to %s", key, b.name)
	}

	if err = writer.Close(); err != nil {
		return errors.Wrapf(err, "unable to write '%s' to %s", key, b.name)
	}

	return nil
}

func (b *bucket) Delete(ctx context.Context, prefix string) error {
	iter := b.bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	for {
		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return errors.Wrapf(err, "unable to list '%s' on %s", prefix, b.name)
		}

		if obj.IsDir {
			continue
		}

		if err = b.bucket.Delete(ctx, obj.Key); err != nil {
			return errors.Wrapf(err, "unable to delete '%s' from %s", obj.Key, b.name)
		}
	}

	return nil
}

func (b *bucket) Close() error {
	return b.bucket.Close()
}
