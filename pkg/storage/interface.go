package storage

import (
	"context"
	"io"
	"time"
)

// StorageProvider persists uploaded evidence photos. The URL a provider
// returns is what gets written onto the emergency record.
type StorageProvider interface {
	Upload(ctx context.Context, request *UploadRequest) (*UploadResponse, error)
	Delete(ctx context.Context, key string) error
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

type UploadRequest struct {
	Key         string    `json:"key"`
	Reader      io.Reader `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
}

type UploadResponse struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}
