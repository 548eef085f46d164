package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader writes the day exports into a bucket, under an optional key prefix
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Uploader bucketPath is "bucket" or "bucket/some/prefix"
func NewS3Uploader(s3UploadClient manager.UploadAPIClient, bucketPath string) (S3Uploader, error) {
	if s3UploadClient == nil {
		return S3Uploader{}, errors.New("s3 upload client nil")
	}
	bucketPath = strings.Trim(bucketPath, "/")
	if bucketPath == "" {
		return S3Uploader{}, errors.New("bucket path is empty")
	}
	bucket, prefix, _ := strings.Cut(bucketPath, "/")
	return S3Uploader{
		uploader: manager.NewUploader(s3UploadClient),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (u S3Uploader) objectKey(filename string) string {
	if u.prefix == "" {
		return filename
	}
	return u.prefix + "/" + filename
}

func (u S3Uploader) Upload(ctx context.Context, filename string, contentType string, buffer *bytes.Buffer) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.objectKey(filename)),
		ContentType: aws.String(contentType),
		Body:        buffer,
	})
	if err != nil {
		return fmt.Errorf("upload failed filename=[%s], bucket=[%s]: %w", u.objectKey(filename), u.bucket, err)
	}
	return nil
}
