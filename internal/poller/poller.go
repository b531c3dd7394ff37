// Package poller runs one background task per subscriber, periodically
// diffing each watched channel's upload feed against a per-subscription
// watermark and notifying the owner about anything new. A task lives only
// while its owner has subscriptions; the manager starts tasks on demand and
// lets them die when the owner's last subscription goes away.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/feed"
	"github.com/mediafetch/botcore/internal/metrics"
	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/store"
	"github.com/mediafetch/botcore/internal/transport"
)

// Feed lists a channel's recent uploads, newest first.
type Feed interface {
	Latest(ctx context.Context, channelID string, max int) ([]feed.Upload, error)
}

// Lister is the fallback upload source used when the channel feed is
// unavailable; the retrieval provider satisfies it.
type Lister interface {
	LatestItems(ctx context.Context, channelURL string, max int) ([]provider.Item, error)
}

// Config carries the poller's tunables.
type Config struct {
	// CheckInterval is the pause between successful poll cycles and the
	// minimum age before a subscription is re-checked.
	CheckInterval time.Duration
	// ErrorBackoff replaces CheckInterval after a cycle with failures.
	ErrorBackoff time.Duration
	// MaxItems bounds how many feed entries one cycle inspects per channel.
	MaxItems int
}

// Manager owns the per-subscriber poll tasks.
type Manager struct {
	mu      sync.Mutex
	running map[int64]context.CancelFunc
	wg      sync.WaitGroup

	cfg       Config
	subs      *store.SubscriptionStore
	feed      Feed
	lister    Lister
	messenger transport.Messenger
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager creates the manager. No tasks are started; call EnsureRunning
// for each owner that should be polled. lister may be nil to disable the
// feed fallback.
func NewManager(cfg Config, subs *store.SubscriptionStore, f Feed, lister Lister,
	messenger transport.Messenger, logger *zap.Logger) *Manager {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 5
	}
	return &Manager{
		running:   make(map[int64]context.CancelFunc),
		cfg:       cfg,
		subs:      subs,
		feed:      f,
		lister:    lister,
		messenger: messenger,
		logger:    logger,
		now:       time.Now,
	}
}

// EnsureRunning starts a poll task for the owner unless one is already
// active. ctx bounds the task's lifetime; cancelling it stops the task at the
// next wait point.
func (m *Manager) EnsureRunning(ctx context.Context, ownerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[ownerID]; ok {
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	m.running[ownerID] = cancel
	m.wg.Add(1)
	metrics.ActivePollers.Inc()

	go m.run(taskCtx, ownerID)
	m.logger.Info("subscription poller started", zap.Int64("user_id", ownerID))
}

// Active reports the number of running poll tasks.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// StopOwner cancels one owner's task, if any. Called when the owner's last
// subscription goes away; the loop would also notice on its own, but only at
// its next wakeup.
func (m *Manager) StopOwner(ownerID int64) {
	m.mu.Lock()
	cancel, ok := m.running[ownerID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every task and blocks until they have exited.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, ownerID int64) {
	defer func() {
		m.mu.Lock()
		if cancel, ok := m.running[ownerID]; ok {
			cancel()
			delete(m.running, ownerID)
		}
		m.mu.Unlock()
		metrics.ActivePollers.Dec()
		m.wg.Done()
		m.logger.Info("subscription poller stopped", zap.Int64("user_id", ownerID))
	}()

	for {
		if !m.subs.HasSubscriptions(ownerID) {
			return
		}

		delay := m.cfg.CheckInterval
		if m.cycle(ctx, ownerID) {
			delay = m.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// cycle polls every due subscription of one owner and reports whether any
// poll failed. A failing subscription is skipped for this cycle; the others
// still run.
func (m *Manager) cycle(ctx context.Context, ownerID int64) bool {
	var failed bool
	now := m.now()

	for _, sub := range m.subs.ListByOwner(ownerID) {
		if ctx.Err() != nil {
			return failed
		}
		if !sub.NotificationsEnabled {
			continue
		}
		if !sub.LastCheckedAt.IsZero() && now.Sub(sub.LastCheckedAt) < m.cfg.CheckInterval {
			continue
		}
		uploads, err := m.fetchUploads(ctx, sub)
		if err != nil {
			m.logger.Warn("channel poll failed",
				zap.Int64("user_id", ownerID),
				zap.String("channel_id", sub.ChannelID),
				zap.Error(err))
			// LastCheckedAt stays put so the backoff wakeup re-polls this
			// channel instead of skipping it as recently checked.
			failed = true
			continue
		}
		m.subs.MarkChecked(ownerID, sub.ID, now)
		if len(uploads) == 0 {
			continue
		}

		// First poll only records the newest item; nothing that predates the
		// subscription is announced.
		if sub.LastSeenItemID == "" {
			m.subs.SetWatermark(ownerID, sub.ID, uploads[0].VideoID)
			continue
		}

		fresh := itemsAfter(uploads, sub.LastSeenItemID)
		for i := len(fresh) - 1; i >= 0; i-- {
			m.notify(ctx, ownerID, sub.Title, fresh[i])
		}
		if len(fresh) > 0 {
			m.subs.SetWatermark(ownerID, sub.ID, uploads[0].VideoID)
		}
	}
	return failed
}

// fetchUploads reads a channel's recent uploads from the Atom feed, falling
// back to the retrieval provider's channel listing when the feed is down.
func (m *Manager) fetchUploads(ctx context.Context, sub store.Subscription) ([]feed.Upload, error) {
	uploads, err := m.feed.Latest(ctx, sub.ChannelID, m.cfg.MaxItems)
	if err == nil {
		return uploads, nil
	}
	if m.lister == nil {
		return nil, err
	}

	channelURL := sub.URL
	if channelURL == "" {
		channelURL = "https://www.youtube.com/channel/" + sub.ChannelID
	}
	items, listErr := m.lister.LatestItems(ctx, channelURL, m.cfg.MaxItems)
	if listErr != nil {
		return nil, fmt.Errorf("feed: %v; provider: %w", err, listErr)
	}

	out := make([]feed.Upload, 0, len(items))
	for _, it := range items {
		out = append(out, feed.Upload{
			VideoID:     it.ID,
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt,
		})
	}
	return out, nil
}

// itemsAfter returns the uploads newer than the watermark, preserving the
// feed's newest-first order. A watermark no longer present in the feed means
// everything visible is new.
func itemsAfter(uploads []feed.Upload, watermark string) []feed.Upload {
	for i, u := range uploads {
		if u.VideoID == watermark {
			return uploads[:i]
		}
	}
	return uploads
}

func (m *Manager) notify(ctx context.Context, ownerID int64, channelTitle string, u feed.Upload) {
	text := fmt.Sprintf("🔔 New video from %s\n\n%s\n%s", channelTitle, u.Title, u.URL)
	if _, err := m.messenger.SendText(ctx, ownerID, text); err != nil {
		m.logger.Warn("failed to deliver upload notification",
			zap.Int64("user_id", ownerID), zap.Error(err))
	}
}
