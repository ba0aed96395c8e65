package storage

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalSource reads images from the filesystem.
type LocalSource struct{}

func (LocalSource) Open(_ context.Context, ref string) (*Image, error) {
	path := filepath.Clean(ref)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat image %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("image %s is a directory", path)
	}

	// sniff from the first 512 bytes without consuming them
	reader := bufio.NewReaderSize(f, 512)
	head, _ := reader.Peek(512)
	contentType := http.DetectContentType(head)
	if contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
			contentType = byExt
		}
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return &Image{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Body:        readCloser{Reader: reader, Closer: f},
	}, nil
}

var _ Source = LocalSource{}
