package directory

import (
	"context"
	"fmt"
	"time"

	"dirchat/internal/models"

	"github.com/go-resty/resty/v2"
)

// HTTPFetcher pulls the directory from a sheet-backed JSON endpoint.
type HTTPFetcher struct {
	client *resty.Client
	url    string
}

// NewHTTPFetcher builds a fetcher for the given source URL.
func NewHTTPFetcher(url string) *HTTPFetcher {
	return &HTTPFetcher{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    url,
	}
}

// Fetch downloads the full directory.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]models.BusinessRecord, error) {
	var records []models.BusinessRecord
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&records).
		Get(f.url)
	if err != nil {
		return nil, fmt.Errorf("fetch directory: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch directory: %s", resp.Status())
	}
	return records, nil
}
