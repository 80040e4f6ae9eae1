package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"localpro-backend/internal/common/config"
	"localpro-backend/internal/common/logger"
)

// LocalDiskStore writes uploads to a directory served under /uploads.
type LocalDiskStore struct {
	dir     string
	baseURL string
	logger  logger.Logger
}

func NewLocalDiskStore(cfg config.StorageConfig, log logger.Logger) (*LocalDiskStore, error) {
	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &LocalDiskStore{
		dir:     cfg.UploadsDir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:  log.WithFields(map[string]interface{}{"component": "blobstore"}),
	}, nil
}

// Put stores content under a uuid-prefixed filename to avoid collisions
// between applicants uploading files with the same name.
func (s *LocalDiskStore) Put(ctx context.Context, name string, content io.Reader) (*StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	storageID := uuid.New().String() + "_" + sanitizeFilename(name)
	path := filepath.Join(s.dir, storageID)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	size, err := io.Copy(f, content)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close file: %w", closeErr)
	}

	s.logger.Debug("stored upload", map[string]interface{}{
		"storageId": storageID,
		"size":      size,
	})

	return &StoredObject{
		StorageID: storageID,
		URL:       s.baseURL + "/" + storageID,
		Size:      size,
	}, nil
}

func (s *LocalDiskStore) Delete(_ context.Context, storageID string) error {
	// storageID is always a bare filename generated by Put; reject anything else.
	if storageID != filepath.Base(storageID) {
		return fmt.Errorf("invalid storage id: %s", storageID)
	}
	return os.Remove(filepath.Join(s.dir, storageID))
}

// sanitizeFilename strips path separators and whitespace from client-supplied names.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
