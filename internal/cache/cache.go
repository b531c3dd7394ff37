// Package cache implements the persistent content cache: a JSON index keyed
// by URL fingerprint plus a directory of cached artifact files. Repeated
// requests for the same content are served from here instead of re-fetching.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/urlnorm"
)

// Entry describes one cached artifact.
type Entry struct {
	Fingerprint     string             `json:"fingerprint"`
	URL             string             `json:"url"`
	NormalizedURL   string             `json:"normalized_url"`
	FilePath        string             `json:"file_path"`
	FormatID        string             `json:"format_id,omitempty"`
	Quality         string             `json:"quality"`
	DurationSeconds int                `json:"duration"`
	Title           string             `json:"title"`
	SourceType      urlnorm.SourceType `json:"url_type"`
	CachedAt        time.Time          `json:"cached_at"`
}

// Stats summarizes the cache for the ops surface.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
}

// Cache owns the index file and the artifact directory. All mutations rewrite
// the whole index under the mutex, so concurrent inserts for different
// fingerprints cannot lose each other.
type Cache struct {
	mu        sync.Mutex
	indexPath string
	dir       string
	index     map[string]*Entry
	logger    *zap.Logger
}

// New loads the index from indexPath (missing file tolerated) and ensures the
// artifact directory exists.
func New(indexPath, dir string, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		indexPath: indexPath,
		dir:       dir,
		index:     make(map[string]*Entry),
		logger:    logger,
	}
	if err := loadIndex(indexPath, &c.index); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the cached entry for a URL, or nil on a miss. An entry whose
// backing file has gone missing counts as a miss; the stale index entry is
// left alone until the next ClearAll.
func (c *Cache) Lookup(rawURL string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index[urlnorm.Fingerprint(rawURL)]
	if !ok {
		return nil
	}
	if _, err := os.Stat(entry.FilePath); err != nil {
		return nil
	}

	copied := *entry
	return &copied
}

// Variants returns every cached entry whose normalized URL matches the given
// URL and whose backing file still exists. This backs the cached-or-fresh
// choice offered to the requester.
func (c *Cache) Variants(rawURL string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := urlnorm.Normalize(rawURL)
	var out []Entry
	for _, entry := range c.index {
		if urlnorm.Normalize(entry.URL) != normalized {
			continue
		}
		if _, err := os.Stat(entry.FilePath); err != nil {
			continue
		}
		out = append(out, *entry)
	}
	return out
}

// Insert moves the artifact into cache-managed storage and records it under
// the URL's fingerprint, superseding any prior entry for that fingerprint.
func (c *Cache) Insert(rawURL, srcPath, formatID, quality string, durationSeconds int, title string, sourceType urlnorm.SourceType) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fingerprint := urlnorm.Fingerprint(rawURL)
	dst := filepath.Join(c.dir, fingerprint+filepath.Ext(srcPath))

	if err := moveFile(srcPath, dst); err != nil {
		return nil, fmt.Errorf("move artifact into cache: %w", err)
	}

	entry := &Entry{
		Fingerprint:     fingerprint,
		URL:             rawURL,
		NormalizedURL:   urlnorm.Normalize(rawURL),
		FilePath:        dst,
		FormatID:        formatID,
		Quality:         quality,
		DurationSeconds: durationSeconds,
		Title:           title,
		SourceType:      sourceType,
		CachedAt:        time.Now(),
	}

	if prior, ok := c.index[fingerprint]; ok && prior.FilePath != dst {
		// Superseded entry; drop its file quietly.
		if err := os.Remove(prior.FilePath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove superseded artifact",
				zap.String("path", prior.FilePath), zap.Error(err))
		}
	}

	c.index[fingerprint] = entry
	c.flushLocked()

	copied := *entry
	return &copied, nil
}

// ClearAll deletes every backing file and resets the index. Individual file
// deletion failures are collected and logged but do not abort the sweep; the
// returned counts cover what was actually deleted.
func (c *Cache) ClearAll() (deleted int, bytesFreed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs *multierror.Error
	for _, entry := range c.index {
		info, err := os.Stat(entry.FilePath)
		if err != nil {
			continue
		}
		if err := os.Remove(entry.FilePath); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", entry.FilePath, err))
			continue
		}
		deleted++
		bytesFreed += info.Size()
	}

	if err := errs.ErrorOrNil(); err != nil {
		c.logger.Warn("some cached artifacts could not be deleted", zap.Error(err))
	}

	c.index = make(map[string]*Entry)
	c.flushLocked()
	return deleted, bytesFreed
}

// Stats reports entry count and total bytes of artifacts that still exist.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	for _, entry := range c.index {
		info, err := os.Stat(entry.FilePath)
		if err != nil {
			continue
		}
		s.Entries++
		s.TotalBytes += info.Size()
	}
	return s
}

func (c *Cache) flushLocked() {
	if err := saveIndex(c.indexPath, c.index); err != nil {
		c.logger.Error("failed to persist cache index", zap.Error(err))
	}
}

// moveFile renames src to dst, falling back to copy+delete across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
