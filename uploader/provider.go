package uploader

import (
	"context"
	"fmt"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
)

// Result reports a completed upload. MediaKey is the collaborator's
// confirmation token and is recorded in the ledger verbatim.
type Result struct {
	MediaKey string
}

// Provider uploads one fully materialized local file. An empty album
// uploads ungrouped; repeated uploads with the same album reuse the
// existing destination group.
type Provider interface {
	Upload(ctx context.Context, localPath string, album string) (*Result, error)
	Close() error
}

// CreateUploader creates an upload provider based on configuration
func CreateUploader(cfg *config.UploaderConfig, log logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid uploader configuration: %w", err)
	}

	switch cfg.UploaderType {
	case config.UploaderTypePhotos:
		return NewPhotosUploader(cfg.Photos, &cfg.Common, log)
	case config.UploaderTypeS3:
		return NewS3Uploader(cfg.S3, &cfg.Common, log)
	default:
		return nil, fmt.Errorf("unsupported uploader type: %s", cfg.UploaderType)
	}
}
