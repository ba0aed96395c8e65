package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSConfig selects the account and endpoint used for s3:// image refs.
type AWSConfig struct {
	Region   string
	Profile  string
	Endpoint string
}

// NewS3Client loads the shared AWS configuration. A custom endpoint switches to
// path-style addressing for MinIO and similar servers.
func NewS3Client(ctx context.Context, cfg AWSConfig) (*s3.Client, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// LazySource builds its Source on first use, so commands that never touch
// an s3:// ref do not load AWS credentials.
type LazySource struct {
	build func(ctx context.Context) (Source, error)

	mu    sync.Mutex
	built bool
	src   Source
	err   error
}

func NewLazySource(build func(ctx context.Context) (Source, error)) *LazySource {
	return &LazySource{build: build}
}

func (l *LazySource) Open(ctx context.Context, ref string) (*Image, error) {
	src, err := l.source(ctx)
	if err != nil {
		return nil, err
	}
	return src.Open(ctx, ref)
}

// source builds once. A build cut short by ctx is not kept, so the next
// caller tries again.
func (l *LazySource) source(ctx context.Context) (Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.built {
		return l.src, l.err
	}

	src, err := l.build(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	l.src, l.err, l.built = src, err, true
	return src, err
}

// NewLazyS3Source reads s3:// refs with a client built from cfg on first use.
func NewLazyS3Source(cfg AWSConfig) *LazySource {
	return NewLazySource(func(ctx context.Context) (Source, error) {
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Source(client), nil
	})
}
