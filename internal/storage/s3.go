package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of the S3 client used to read images.
type ObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads images referenced as s3://bucket/key (or compatible APIs).
type S3Source struct {
	client ObjectAPI
}

func NewS3Source(client ObjectAPI) *S3Source {
	return &S3Source{client: client}
}

func (s *S3Source) Open(ctx context.Context, ref string) (*Image, error) {
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return nil, err
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head object %s: %w", ref, err)
	}

	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", ref, err)
	}

	contentType := aws.ToString(head.ContentType)
	if contentType == "" {
		contentType = aws.ToString(obj.ContentType)
	}

	return &Image{
		Name:        path.Base(key),
		ContentType: contentType,
		Size:        aws.ToInt64(head.ContentLength),
		Body:        obj.Body,
	}, nil
}

// ParseS3Ref splits s3://bucket/key into its bucket and key.
func ParseS3Ref(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 ref: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 ref scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("s3 ref missing bucket")
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 ref missing object key")
	}
	return u.Host, key, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

var _ Source = (*S3Source)(nil)
