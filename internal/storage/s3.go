package storage

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"gocloud.dev/blob/s3blob"
)

// NewS3 opens an S3 (or S3 compatible) bucket. Objects are written world readable so players
// can fetch them directly.
func NewS3(ctx context.Context, bucketName string, config *aws.Config) (Bucket, error) {
	sess, err := session.NewSession(config)

	if err != nil {
		return nil, errors.Wrap(err, "unable to create aws session")
	}

	b, err := s3blob.OpenBucket(ctx, sess, bucketName, nil)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to open s3 bucket '%s'", bucketName)
	}

	return &bucket{name: "s3://" + bucketName, bucket: b, before: publicRead}, nil
}

func publicRead(as func(interface{}) bool) error {
	var input *s3manager.UploadInput

	if as(&input) {
		input.ACL = aws.String(s3.ObjectCannedACLPublicRead)
	}

	return nil
}
