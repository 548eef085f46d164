package infrastructure

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3Client struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

func (f *fakeS3Client) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket = aws.ToString(input.Bucket)
	f.key = aws.ToString(input.Key)
	f.contentType = aws.ToString(input.ContentType)
	f.body, _ = io.ReadAll(input.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) UploadPart(ctx context.Context, input *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return &s3.UploadPartOutput{}, nil
}

func (f *fakeS3Client) CreateMultipartUpload(ctx context.Context, input *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{}, nil
}

func (f *fakeS3Client) CompleteMultipartUpload(ctx context.Context, input *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3Client) AbortMultipartUpload(ctx context.Context, input *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestNewS3Uploader_Invalid(t *testing.T) {
	_, err := NewS3Uploader(nil, "bucket")
	assert.Error(t, err)
	_, err = NewS3Uploader(&fakeS3Client{}, "/")
	assert.Error(t, err)
}

func TestS3Uploader_Upload(t *testing.T) {
	client := &fakeS3Client{}
	uploader, err := NewS3Uploader(client, "exports/intervals/")
	require.NoError(t, err)

	err = uploader.Upload(context.Background(), "u1/steps/2024-03-01.csv", "text/csv", bytes.NewBufferString("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "exports", client.bucket)
	assert.Equal(t, "intervals/u1/steps/2024-03-01.csv", client.key)
	assert.Equal(t, "text/csv", client.contentType)
	assert.Equal(t, "a,b\n", string(client.body))
}
