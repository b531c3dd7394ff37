package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// loadIndex reads the JSON index file into m. A missing file leaves m empty.
func loadIndex(path string, m *map[string]*Entry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache index: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal cache index: %w", err)
	}
	return nil
}

// saveIndex rewrites the whole index atomically (temp file + rename).
func saveIndex(path string, m map[string]*Entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create index temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close index temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
