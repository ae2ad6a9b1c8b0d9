package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WatermarkStore persists the poller's last fully scanned block.
type WatermarkStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, block uint64) error
}

type watermarkFile struct {
	Pool      string `json:"pool"`
	LastBlock uint64 `json:"last_block"`
	UpdatedAt string `json:"updated_at"`
}

// FileWatermarkStore keeps the watermark in a small JSON file. The file is
// replaced atomically on every save.
type FileWatermarkStore struct {
	path string
	pool string
}

func NewFileWatermarkStore(path, pool string) *FileWatermarkStore {
	return &FileWatermarkStore{path: path, pool: pool}
}

func (s *FileWatermarkStore) Load(_ context.Context) (uint64, bool, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat watermark: %w", err)
	}
	if stat.IsDir() {
		return 0, false, fmt.Errorf("watermark path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, false, fmt.Errorf("read watermark: %w", err)
	}

	var wm watermarkFile
	if err := json.Unmarshal(data, &wm); err != nil {
		return 0, false, fmt.Errorf("parse watermark: %w", err)
	}
	// A file written for another pool is ignored.
	if wm.Pool != "" && s.pool != "" && wm.Pool != s.pool {
		return 0, false, nil
	}

	return wm.LastBlock, true, nil
}

func (s *FileWatermarkStore) Save(_ context.Context, block uint64) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watermark dir: %w", err)
		}
	}

	data, err := json.Marshal(watermarkFile{
		Pool:      s.pool,
		LastBlock: block,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal watermark: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write watermark tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename watermark: %w", err)
	}

	return nil
}
