package source

import (
	"context"
	"fmt"
	"io"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// Provider is the remote file server the discovery walk and the retrieval
// engine run against.
type Provider interface {
	// List returns the files and the subdirectories directly inside dir.
	List(ctx context.Context, dir string) ([]model.RemoteEntry, []string, error)
	// Retrieve streams the remote file into w, starting at offset when the
	// provider supports resuming.
	Retrieve(ctx context.Context, remotePath string, w io.Writer, offset int64) error
	// SupportsResume reports whether Retrieve honors a non-zero offset.
	SupportsResume() bool
	Close() error
}

// CreateSource creates a source provider based on configuration
func CreateSource(cfg *config.SourceConfig, log logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source configuration: %w", err)
	}

	switch cfg.SourceType {
	case config.SourceTypeFTP:
		return NewFTPSource(cfg.FTP, &cfg.Common, log)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.SourceType)
	}
}
