package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrUnsupportedRef is returned when no source understands an image reference.
var ErrUnsupportedRef = errors.New("unsupported image reference")

// Image is an opened thumbnail ready to be streamed to the upload endpoint.
// Callers must Close it.
type Image struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

func (i *Image) Close() error {
	if i == nil || i.Body == nil {
		return nil
	}
	return i.Body.Close()
}

// Source opens image references. Implementations decide which refs they accept.
type Source interface {
	Open(ctx context.Context, ref string) (*Image, error)
}

// Sources routes s3:// references to the object store and everything else to
// the local filesystem.
type Sources struct {
	Local Source
	S3    Source
}

func (s Sources) Open(ctx context.Context, ref string) (*Image, error) {
	if strings.HasPrefix(ref, "s3://") {
		if s.S3 == nil {
			return nil, errors.Join(ErrUnsupportedRef, errors.New("s3 source not configured"))
		}
		return s.S3.Open(ctx, ref)
	}
	if s.Local == nil {
		return nil, ErrUnsupportedRef
	}
	return s.Local.Open(ctx, ref)
}

var _ Source = Sources{}
