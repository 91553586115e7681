package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectInfo describes an object found by Head.
type ObjectInfo struct {
	Size         int64
	ETag         string
	LastModified time.Time
}

// Client is the subset of bucket operations ferry needs. Every error returned
// is an *Error carrying its Kind.
type Client interface {
	// Head probes for an object. Absence is an error of KindNotFound.
	Head(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// Put stores body under key. size is the number of bytes body will yield.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error
	// HeadBucket checks that the bucket exists and is reachable.
	HeadBucket(ctx context.Context, bucket string) error
}

// S3Client implements Client on top of the AWS SDK.
type S3Client struct {
	api      *s3.Client
	uploader *manager.Uploader
}

// NewS3Client wraps api. Bodies larger than partSize are sent as multipart uploads.
func NewS3Client(api *s3.Client, partSize int64) *S3Client {
	uploader := manager.NewUploader(api, func(u *manager.Uploader) {
		if partSize >= manager.MinUploadPartSize {
			u.PartSize = partSize
		}
		u.LeavePartsOnError = false
	})
	return &S3Client{api: api, uploader: uploader}
}

func (c *S3Client) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, wrap("head", bucket, key, err)
	}
	return ObjectInfo{
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Put uploads body. A negative size leaves the length to the uploader.
func (c *S3Client) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	_, err := c.uploader.Upload(ctx, input)
	return wrap("put", bucket, key, err)
}

func (c *S3Client) HeadBucket(ctx context.Context, bucket string) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return wrap("head-bucket", bucket, "", err)
}
