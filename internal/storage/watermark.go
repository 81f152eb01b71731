package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type watermarkFile struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileWatermarkStore keeps the watermark in a JSON file next to the run.
type FileWatermarkStore struct {
	path string
}

func NewFileWatermarkStore(path string) *FileWatermarkStore {
	return &FileWatermarkStore{path: path}
}

func (s *FileWatermarkStore) LoadWatermark(ctx context.Context) (uint64, bool, error) {
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
	return wm.LastProcessedBlock, true, nil
}

// SaveWatermark replaces the file atomically.
func (s *FileWatermarkStore) SaveWatermark(ctx context.Context, block uint64) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watermark dir: %w", err)
		}
	}

	data, err := json.Marshal(watermarkFile{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
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
