package gdrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	// DefaultBatchURL is the Drive v3 batch endpoint
	DefaultBatchURL = "https://www.googleapis.com/batch/drive/v3"
	// MaxBatchSize is the most calls Drive accepts in one batch request
	MaxBatchSize = 100
)

// ErrNotFound is returned by Locate when no file in the folder has the name
var ErrNotFound = errors.New("file not found in folder")

// Client wraps the Drive API for folder lookups and batched description updates
type Client struct {
	service    *drive.Service
	httpClient *http.Client

	// BatchURL is where batched updates are posted
	BatchURL string
	// BatchSize caps the number of updates per batch request
	BatchSize int
}

// NewClient creates a Drive client on top of an authenticated HTTP client.
// Extra options are passed through to the generated Drive service.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("an authenticated http client is required")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		service:    service,
		httpClient: httpClient,
		BatchURL:   DefaultBatchURL,
		BatchSize:  MaxBatchSize,
	}, nil
}
