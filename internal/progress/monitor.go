// Package progress watches in-flight retrieval byte counts: it aborts a fetch
// the moment the size limit is crossed and throttles user-visible status
// updates so the delivery transport's edit-rate limits are respected.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mediafetch/botcore/internal/provider"
)

// Monitor consumes progress events for one job. Events arrive from the fetch
// goroutine while completion is awaited elsewhere, so all state sits behind a
// mutex.
type Monitor struct {
	mu         sync.Mutex
	maxBytes   int64
	throttle   time.Duration
	abort      context.CancelCauseFunc
	notify     func(text string)
	lastNotify time.Time
	aborted    bool
	now        func() time.Time
}

// NewMonitor creates a monitor for one retrieval. abort cancels the fetch
// context with a cause; notify carries throttled status text toward the
// requester (may be nil).
func NewMonitor(maxBytes int64, throttle time.Duration, abort context.CancelCauseFunc, notify func(string)) *Monitor {
	return &Monitor{
		maxBytes: maxBytes,
		throttle: throttle,
		abort:    abort,
		notify:   notify,
		now:      time.Now,
	}
}

// Handle is the provider.ProgressFunc for the job.
func (m *Monitor) Handle(p provider.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.aborted {
		return
	}

	if p.DownloadedBytes > m.maxBytes {
		m.aborted = true
		m.abort(provider.Errorf(provider.KindTooLarge,
			"download reached %d bytes, limit is %d", p.DownloadedBytes, m.maxBytes))
		return
	}

	if m.notify == nil {
		return
	}
	now := m.now()
	if now.Sub(m.lastNotify) < m.throttle {
		return
	}
	m.lastNotify = now
	m.notify(statusText(p))
}

// Aborted reports whether the size limit fired.
func (m *Monitor) Aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

func statusText(p provider.Progress) string {
	downloaded := float64(p.DownloadedBytes) / (1024 * 1024)
	if p.TotalBytes <= 0 {
		return fmt.Sprintf("Downloading: %.1f MB...", downloaded)
	}

	total := float64(p.TotalBytes) / (1024 * 1024)
	percent := float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
	text := fmt.Sprintf("Downloading: %.1f MB of %.1f MB (%.0f%%)", downloaded, total, percent)
	if p.ETASeconds > 0 {
		text += fmt.Sprintf(", ETA %d:%02d", p.ETASeconds/60, p.ETASeconds%60)
	}
	return text
}
