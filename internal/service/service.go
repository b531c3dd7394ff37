// Package service is the request surface between the chat transport and the
// core: it turns user intents (download this URL, pick this quality, watch
// this channel) into cache lookups, queued jobs, subscription mutations and
// token round-trips. All user-visible replies flow through the Messenger
// passed in; the transport adapter only parses commands and resolves tokens.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/cache"
	"github.com/mediafetch/botcore/internal/metrics"
	"github.com/mediafetch/botcore/internal/poller"
	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/queue"
	"github.com/mediafetch/botcore/internal/store"
	"github.com/mediafetch/botcore/internal/token"
	"github.com/mediafetch/botcore/internal/transport"
	"github.com/mediafetch/botcore/internal/urlnorm"
)

const (
	searchResultLimit = 5
	qualityCapHeight  = 1080
)

// Service wires user intents to the queue, the cache and the stores.
type Service struct {
	queue     *queue.Queue
	cache     *cache.Cache
	users     *store.UserStore
	subs      *store.SubscriptionStore
	tokens    *token.Store
	provider  provider.Provider
	pollers   *poller.Manager
	messenger transport.Messenger
	logger    *zap.Logger
}

// New creates the service. pollers may be nil in tests that never subscribe.
func New(q *queue.Queue, c *cache.Cache, users *store.UserStore,
	subs *store.SubscriptionStore, tokens *token.Store, p provider.Provider,
	pollers *poller.Manager, messenger transport.Messenger, logger *zap.Logger) *Service {
	return &Service{
		queue:     q,
		cache:     c,
		users:     users,
		subs:      subs,
		tokens:    tokens,
		provider:  p,
		pollers:   pollers,
		messenger: messenger,
		logger:    logger,
	}
}

// SubmitDownload handles a pasted media URL. Cached content is offered as a
// choice against a fresh download; uncached YouTube links get a quality menu
// from a probe; everything else supported goes straight onto the queue.
func (s *Service) SubmitDownload(ctx context.Context, ownerID int64, rawURL string, target transport.Target) error {
	source := urlnorm.Classify(rawURL)
	if source == urlnorm.SourceUnknown {
		s.reply(ctx, target, "I don't recognize this link. Send me a YouTube or TikTok URL.")
		return fmt.Errorf("unsupported url: %s", rawURL)
	}

	if variants := s.cache.Variants(rawURL); len(variants) > 0 {
		metrics.CacheHits.Inc()
		return s.offerCachedOrFresh(ctx, ownerID, rawURL, variants, target)
	}
	metrics.CacheMisses.Inc()

	if source == urlnorm.SourceYouTube || source == urlnorm.SourceYouTubeMusic {
		return s.offerQualityMenu(ctx, ownerID, rawURL, source, target)
	}

	// TikTok has no meaningful format ladder; take the best.
	s.enqueue(ctx, ownerID, &queue.Job{
		OwnerID: ownerID,
		URL:     rawURL,
		Kind:    provider.FormatBestCapped,
		Source:  source,
		Target:  target,
	})
	return nil
}

// SubmitAudio enqueues an audio-only extraction. Audio never touches the
// content cache.
func (s *Service) SubmitAudio(ctx context.Context, ownerID int64, rawURL string, target transport.Target) error {
	source := urlnorm.Classify(rawURL)
	if source == urlnorm.SourceUnknown {
		s.reply(ctx, target, "I don't recognize this link. Send me a YouTube or TikTok URL.")
		return fmt.Errorf("unsupported url: %s", rawURL)
	}

	s.enqueue(ctx, ownerID, &queue.Job{
		OwnerID: ownerID,
		URL:     rawURL,
		Kind:    provider.FormatAudioOnly,
		Source:  source,
		Target:  target,
	})
	return nil
}

// Resolve dispatches a callback token from the transport. Expired or foreign
// tokens get a polite retry message.
func (s *Service) Resolve(ctx context.Context, ownerID int64, key string, target transport.Target) error {
	action, ok := s.tokens.Get(key)
	if !ok || action.OwnerID != ownerID {
		s.reply(ctx, target, "That choice has expired. Please send the link again.")
		return fmt.Errorf("resolve token: unknown or expired key")
	}

	switch action.Kind {
	case token.KindDownload:
		s.enqueue(ctx, ownerID, &queue.Job{
			OwnerID:       ownerID,
			URL:           action.URL,
			Kind:          provider.FormatBestCapped,
			Source:        urlnorm.Classify(action.URL),
			Target:        target,
			FromEphemeral: true,
		})
		return nil
	case token.KindAudio:
		s.enqueue(ctx, ownerID, &queue.Job{
			OwnerID:       ownerID,
			URL:           action.URL,
			Kind:          provider.FormatAudioOnly,
			Source:        urlnorm.Classify(action.URL),
			Target:        target,
			FromEphemeral: true,
		})
		return nil
	case token.KindQualityPick:
		return s.SelectQuality(ctx, ownerID, action, target)
	case token.KindCacheChoice:
		return s.SelectCacheOrFresh(ctx, ownerID, action, target)
	case token.KindSearchResult:
		return s.SubmitDownload(ctx, ownerID, action.URL, target)
	default:
		return fmt.Errorf("resolve token: unhandled kind %q", action.Kind)
	}
}

// SelectQuality enqueues the exact format the user picked from a probe menu.
func (s *Service) SelectQuality(ctx context.Context, ownerID int64, action token.Action, target transport.Target) error {
	kind := provider.FormatSpecific
	if action.FormatID == "" {
		kind = provider.FormatMaximum
	}
	s.enqueue(ctx, ownerID, &queue.Job{
		OwnerID:       ownerID,
		URL:           action.URL,
		Kind:          kind,
		FormatID:      action.FormatID,
		Quality:       action.Quality,
		Source:        urlnorm.Classify(action.URL),
		Target:        target,
		FromEphemeral: true,
	})
	return nil
}

// SelectCacheOrFresh serves a cached variant directly, or falls back to a
// fresh submission when the variant vanished between offer and pick.
func (s *Service) SelectCacheOrFresh(ctx context.Context, ownerID int64, action token.Action, target transport.Target) error {
	variants := s.cache.Variants(action.URL)
	if action.Index < 0 || action.Index >= len(variants) {
		s.reply(ctx, target, "That cached copy is gone; downloading fresh.")
		return s.SubmitDownload(ctx, ownerID, action.URL, target)
	}

	entry := variants[action.Index]
	if err := s.messenger.SendFile(ctx, target.ChatID, entry.FilePath, entry.Title, false); err != nil {
		return fmt.Errorf("deliver cached artifact: %w", err)
	}
	s.users.IncrementDownloads(ownerID)
	s.logger.Info("served from cache",
		zap.Int64("user_id", ownerID), zap.String("fingerprint", entry.Fingerprint))
	return nil
}

// Search runs a free-text media search and presents the top hits as choices.
func (s *Service) Search(ctx context.Context, ownerID int64, query string, target transport.Target) error {
	results, err := s.provider.Search(ctx, query, searchResultLimit)
	if err != nil {
		s.reply(ctx, target, "Search failed. Please try again later.")
		return fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		s.reply(ctx, target, "Nothing found for that query.")
		return nil
	}

	choices := make([]transport.Choice, 0, len(results))
	for i, r := range results {
		key := s.tokens.Put(token.Action{
			Kind:    token.KindSearchResult,
			URL:     r.URL,
			OwnerID: ownerID,
			Index:   i,
		})
		label := r.Title
		if r.Uploader != "" {
			label = fmt.Sprintf("%s — %s", r.Title, r.Uploader)
		}
		choices = append(choices, transport.Choice{Label: label, Token: key})
	}
	return s.messenger.SendChoices(ctx, target.ChatID, "Pick a result:", choices)
}

// Subscribe resolves a channel URL and registers it for the owner, starting
// their poll task if needed.
func (s *Service) Subscribe(ctx context.Context, ownerID int64, channelURL string, target transport.Target) error {
	info, err := s.provider.ChannelInfo(ctx, channelURL)
	if err != nil {
		s.reply(ctx, target, "I couldn't resolve that channel. Check the link and try again.")
		return fmt.Errorf("resolve channel %s: %w", channelURL, err)
	}

	sub, err := s.subs.Subscribe(ownerID, info.ChannelID, info.Title, info.URL)
	if err == store.ErrDuplicateChannel {
		s.reply(ctx, target, fmt.Sprintf("You're already subscribed to %s.", info.Title))
		return nil
	}
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if s.pollers != nil {
		s.pollers.EnsureRunning(context.WithoutCancel(ctx), ownerID)
	}
	s.reply(ctx, target, fmt.Sprintf("Subscribed to %s. I'll ping you about new uploads.", sub.Title))
	return nil
}

// Unsubscribe removes one subscription.
func (s *Service) Unsubscribe(ctx context.Context, ownerID int64, subID string, target transport.Target) error {
	if err := s.subs.Unsubscribe(ownerID, subID); err != nil {
		s.reply(ctx, target, "That subscription doesn't exist.")
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if s.pollers != nil && !s.subs.HasSubscriptions(ownerID) {
		s.pollers.StopOwner(ownerID)
	}
	s.reply(ctx, target, "Unsubscribed.")
	return nil
}

// UnsubscribeAll removes every subscription for the owner.
func (s *Service) UnsubscribeAll(ctx context.Context, ownerID int64, target transport.Target) error {
	removed := s.subs.UnsubscribeAll(ownerID)
	if s.pollers != nil && removed > 0 {
		s.pollers.StopOwner(ownerID)
	}
	s.reply(ctx, target, fmt.Sprintf("Removed %d subscription(s).", removed))
	return nil
}

// ToggleNotifications flips a subscription's notification flag.
func (s *Service) ToggleNotifications(ctx context.Context, ownerID int64, subID string, target transport.Target) error {
	enabled, err := s.subs.ToggleNotifications(ownerID, subID)
	if err != nil {
		s.reply(ctx, target, "That subscription doesn't exist.")
		return fmt.Errorf("toggle notifications: %w", err)
	}
	if enabled {
		s.reply(ctx, target, "Notifications on.")
	} else {
		s.reply(ctx, target, "Notifications off.")
	}
	return nil
}

// ListSubscriptions returns the owner's subscriptions, oldest first.
func (s *Service) ListSubscriptions(ownerID int64) []store.Subscription {
	return s.subs.ListByOwner(ownerID)
}

// QueuePosition reports the owner's 1-based queue position, 0 when idle.
func (s *Service) QueuePosition(ownerID int64) int {
	return s.queue.Position(ownerID)
}

// ClearCache wipes every cached artifact. Privileged; callers gate access.
func (s *Service) ClearCache() (deleted int, bytesFreed int64) {
	return s.cache.ClearAll()
}

// CacheStats reports the cache summary for the ops surface.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// QueueSnapshot returns the queue contents for the ops surface.
func (s *Service) QueueSnapshot() []queue.QueuedJob {
	return s.queue.Snapshot()
}

// Broadcast sends text to every known user and reports how many deliveries
// succeeded. Privileged; callers gate access.
func (s *Service) Broadcast(ctx context.Context, text string) int {
	delivered := 0
	for _, id := range s.users.IDs() {
		if _, err := s.messenger.SendText(ctx, id, text); err != nil {
			s.logger.Warn("broadcast delivery failed", zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// offerCachedOrFresh presents the cached variants plus a fresh-download
// escape hatch.
func (s *Service) offerCachedOrFresh(ctx context.Context, ownerID int64, rawURL string, variants []cache.Entry, target transport.Target) error {
	choices := make([]transport.Choice, 0, len(variants)+1)
	for i, v := range variants {
		key := s.tokens.Put(token.Action{
			Kind:    token.KindCacheChoice,
			URL:     rawURL,
			OwnerID: ownerID,
			Index:   i,
		})
		label := "⚡ Cached"
		if v.Quality != "" {
			label = fmt.Sprintf("⚡ Cached (%s)", v.Quality)
		}
		choices = append(choices, transport.Choice{Label: label, Token: key})
	}
	freshKey := s.tokens.Put(token.Action{
		Kind:    token.KindDownload,
		URL:     rawURL,
		OwnerID: ownerID,
	})
	choices = append(choices, transport.Choice{Label: "⬇️ Fresh download", Token: freshKey})

	return s.messenger.SendChoices(ctx, target.ChatID,
		"I already have this one. Instant delivery or fresh download?", choices)
}

// offerQualityMenu probes the URL and presents one choice per distinct video
// height up to the cap, plus best and audio options.
func (s *Service) offerQualityMenu(ctx context.Context, ownerID int64, rawURL string, source urlnorm.SourceType, target transport.Target) error {
	info, err := s.provider.Probe(ctx, rawURL, source)
	if err != nil {
		// Probe failures are not terminal; fall back to a best-effort fetch.
		s.logger.Warn("probe failed, enqueueing best",
			zap.String("url", rawURL), zap.Error(err))
		s.enqueue(ctx, ownerID, &queue.Job{
			OwnerID: ownerID,
			URL:     rawURL,
			Kind:    provider.FormatBestCapped,
			Source:  source,
			Target:  target,
		})
		return nil
	}

	choices := make([]transport.Choice, 0, 6)
	seen := make(map[int]bool)
	for _, f := range info.Formats {
		if f.Height == 0 || f.Height > qualityCapHeight || seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		quality := fmt.Sprintf("%dp", f.Height)
		key := s.tokens.Put(token.Action{
			Kind:     token.KindQualityPick,
			URL:      rawURL,
			OwnerID:  ownerID,
			FormatID: f.ID,
			Quality:  quality,
		})
		choices = append(choices, transport.Choice{Label: quality, Token: key})
	}

	bestKey := s.tokens.Put(token.Action{
		Kind:    token.KindDownload,
		URL:     rawURL,
		OwnerID: ownerID,
	})
	choices = append(choices, transport.Choice{Label: "🎬 Best", Token: bestKey})
	audioKey := s.tokens.Put(token.Action{
		Kind:    token.KindAudio,
		URL:     rawURL,
		OwnerID: ownerID,
	})
	choices = append(choices, transport.Choice{Label: "🎵 Audio", Token: audioKey})

	title := info.Title
	if title == "" {
		title = rawURL
	}
	return s.messenger.SendChoices(ctx, target.ChatID,
		fmt.Sprintf("%s\n\nPick a quality:", title), choices)
}

func (s *Service) enqueue(ctx context.Context, ownerID int64, job *queue.Job) {
	pos := s.queue.Enqueue(job)
	if pos > 1 {
		s.reply(ctx, job.Target, fmt.Sprintf("Queued. You're #%d in line.", pos))
	}
}

func (s *Service) reply(ctx context.Context, target transport.Target, text string) {
	if _, err := s.messenger.SendText(ctx, target.ChatID, text); err != nil {
		s.logger.Warn("failed to send reply", zap.Error(err))
	}
}
