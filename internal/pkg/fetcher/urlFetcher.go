package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/HarshTuring/docklens/internal/entity"
)

// Fetcher downloads an image from a remote URL on the caller's behalf.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (data []byte, filename string, err error)
}

type urlFetcher struct {
	http    *http.Client
	maxSize int64
}

func NewURLFetcher(timeout time.Duration, maxSize int64) Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &urlFetcher{
		http:    &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

func (f *urlFetcher) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", entity.ErrInvalidImageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", entity.ErrInvalidImageURL
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", entity.ErrURLFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", entity.ErrURLFetchFailed, resp.StatusCode)
	}

	contentType := strings.Split(resp.Header.Get("Content-Type"), ";")[0]
	if contentType != "" && !allowedContentTypes[contentType] {
		return nil, "", entity.ErrInvalidImageType
	}

	// Не читаем больше лимита: LimitReader на один байт больше,
	// чтобы отличить ровно лимит от превышения
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", entity.ErrURLFetchFailed, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", entity.ErrImageTooLarge
	}
	if len(data) == 0 {
		return nil, "", entity.ErrEmptyImage
	}

	filename := path.Base(u.Path)
	if filename == "." || filename == "/" || filename == "" {
		filename = "download"
	}

	return data, filename, nil
}
