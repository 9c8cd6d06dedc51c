package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"asset-pipeline/internal/config"
	"asset-pipeline/internal/domain/asset"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

const (
	emptyAWSSessionToken     = ""
	errObjectNotFound        = "object not found"
	errUnknownBucketFmt      = "unknown bucket %q"
	errFailedCreateSessionFm = "failed to create AWS session: %w"
	errFailedPutObjectFmt    = "failed to put object %s/%s: %w"
	errFailedGetObjectFmt    = "failed to get object %s/%s: %w"
	errFailedReadObjectFmt   = "failed to read object %s/%s: %w"
	errFailedDeleteObjectFmt = "failed to delete object %s/%s: %w"
)

// Client maps the two logical buckets onto their configured S3 buckets.
type Client struct {
	svc     *s3.S3
	buckets map[asset.Bucket]string
}

func NewClient(cfg *config.AWSConfig) (*Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			emptyAWSSessionToken,
		),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf(errFailedCreateSessionFm, err)
	}

	return &Client{
		svc: s3.New(sess),
		buckets: map[asset.Bucket]string{
			asset.BucketPublic:  cfg.PublicBucket,
			asset.BucketPrivate: cfg.PrivateBucket,
		},
	}, nil
}

func (c *Client) bucketName(bucket asset.Bucket) (string, error) {
	name, ok := c.buckets[bucket]
	if !ok {
		return "", apperrors.BadRequest(fmt.Sprintf(errUnknownBucketFmt, bucket))
	}
	return name, nil
}

func (c *Client) Put(ctx context.Context, bucket asset.Bucket, key string, body io.ReadSeeker, contentType string) error {
	name, err := c.bucketName(bucket)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.svc.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf(errFailedPutObjectFmt, bucket, key, err)
	}

	return nil
}

// Get reads a whole object. A missing key maps to ErrNotFound.
func (c *Client) Get(ctx context.Context, bucket asset.Bucket, key string) ([]byte, error) {
	name, err := c.bucketName(bucket)
	if err != nil {
		return nil, err
	}

	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, apperrors.NotFound(errObjectNotFound)
		}
		return nil, fmt.Errorf(errFailedGetObjectFmt, bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf(errFailedReadObjectFmt, bucket, key, err)
	}

	return data, nil
}

func (c *Client) Delete(ctx context.Context, bucket asset.Bucket, key string) error {
	name, err := c.bucketName(bucket)
	if err != nil {
		return err
	}

	_, err = c.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf(errFailedDeleteObjectFmt, bucket, key, err)
	}

	return nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
