package storage

import (
	"context"

	"github.com/pkg/errors"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2/google"
)

const gcsScope = "https://www.googleapis.com/auth/devstorage.read_write"

func NewGCS(ctx context.Context, bucketName string, client *gcp.HTTPClient) (Bucket, error) {
	b, err := gcsblob.OpenBucket(ctx, client, bucketName, nil)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to open gcs bucket '%s'", bucketName)
	}

	return &bucket{name: "gs://" + bucketName, bucket: b}, nil
}

// NewGCSDefault opens a GCS bucket with the application default credentials.
func NewGCSDefault(ctx context.Context, bucketName string) (Bucket, error) {
	creds, err := google.FindDefaultCredentials(ctx, gcsScope)

	if err != nil {
		return nil, errors.Wrap(err, "unable to find google credentials")
	}

	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))

	if err != nil {
		return nil, errors.Wrap(err, "unable to create gcp client")
	}

	return NewGCS(ctx, bucketName, client)
}
