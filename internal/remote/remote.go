package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/tanq16/megumi/internal/config"
)

// Store is the remote-file-access capability consumed by the transfer
// engine: list a directory, stat a file, open it for reads at an offset,
// and remove it after a verified download.
type Store interface {
	List(ctx context.Context, dir string) ([]string, error)
	Stat(ctx context.Context, path string) (int64, error)
	OpenRange(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
	Close() error
}

// Connect builds the Store selected by the config PROTOCOL key.
func Connect(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Protocol {
	case config.ProtocolSFTP:
		return connectSFTP(cfg.Host, cfg.User, cfg.Password)
	case config.ProtocolS3:
		return connectS3(ctx)
	}
	return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
}
