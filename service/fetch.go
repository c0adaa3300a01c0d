package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/omdwivedi00/Iden-hide/utils"
)

// Fetcher downloads remote images into the upload directory so the
// URL-based endpoints can reuse the file pipeline.
type Fetcher struct {
	client    *http.Client
	uploadDir string
	maxSize   int64
}

func NewFetcher(uploadDir string, maxSize int64, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		uploadDir: uploadDir,
		maxSize:   maxSize,
	}
}

// Fetch downloads url and returns the local path and original
// filename. The caller removes the file when done.
func (f *Fetcher) Fetch(ctx context.Context, url string) (localPath, filename string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("invalid image url: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	filename = path.Base(req.URL.Path)
	if filename == "." || filename == "/" || filename == "" {
		filename = "remote.jpg"
	}

	localPath = filepath.Join(f.uploadDir, fmt.Sprintf("%d_%s", utils.GenerateID(), filename))
	out, err := os.Create(localPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		os.Remove(localPath)
		return "", "", fmt.Errorf("failed to download image: %w", err)
	}
	if n > f.maxSize {
		os.Remove(localPath)
		return "", "", fmt.Errorf("remote image exceeds size limit (%d bytes)", f.maxSize)
	}

	return localPath, filename, nil
}
