package store

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateChannel is returned when an owner already watches a channel.
	ErrDuplicateChannel = errors.New("channel already subscribed")

	// ErrSubscriptionNotFound is returned when a subscription ID does not
	// exist for the given owner.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Subscription is one watched channel for one owner.
type Subscription struct {
	ID                   string    `json:"id"`
	ChannelID            string    `json:"channel_id"`
	Title                string    `json:"title"`
	URL                  string    `json:"url"`
	SubscribedAt         time.Time `json:"subscribed_at"`
	LastCheckedAt        time.Time `json:"last_checked_at"`
	LastSeenItemID       string    `json:"last_seen_item_id,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
}

// SubscriptionStore is the persisted map of owner -> subscription ID ->
// subscription. The poller mutates check timestamps and watermarks; user
// commands add, remove and toggle entries.
type SubscriptionStore struct {
	mu     sync.Mutex
	path   string
	subs   map[string]map[string]*Subscription
	logger *zap.Logger
}

// NewSubscriptionStore loads the registry from path, tolerating a missing
// file.
func NewSubscriptionStore(path string, logger *zap.Logger) (*SubscriptionStore, error) {
	s := &SubscriptionStore{
		path:   path,
		subs:   make(map[string]map[string]*Subscription),
		logger: logger,
	}
	if err := loadJSON(path, &s.subs); err != nil {
		return nil, err
	}
	return s, nil
}

// Subscribe adds a channel for an owner. One subscription per owner+channel;
// a duplicate channel is rejected with ErrDuplicateChannel.
func (s *SubscriptionStore) Subscribe(ownerID int64, channelID, title, channelURL string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(ownerID)
	owned := s.subs[key]
	for _, sub := range owned {
		if sub.ChannelID == channelID {
			return nil, ErrDuplicateChannel
		}
	}

	sub := &Subscription{
		ID:                   uuid.NewString(),
		ChannelID:            channelID,
		Title:                title,
		URL:                  channelURL,
		SubscribedAt:         time.Now(),
		NotificationsEnabled: true,
	}

	if owned == nil {
		owned = make(map[string]*Subscription)
		s.subs[key] = owned
	}
	owned[sub.ID] = sub
	s.flushLocked()

	copied := *sub
	return &copied, nil
}

// Unsubscribe removes a single subscription.
func (s *SubscriptionStore) Unsubscribe(ownerID int64, subID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(ownerID)
	owned, ok := s.subs[key]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if _, ok := owned[subID]; !ok {
		return ErrSubscriptionNotFound
	}

	delete(owned, subID)
	if len(owned) == 0 {
		delete(s.subs, key)
	}
	s.flushLocked()
	return nil
}

// UnsubscribeAll removes every subscription for an owner and reports how many
// were removed.
func (s *SubscriptionStore) UnsubscribeAll(ownerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(ownerID)
	removed := len(s.subs[key])
	if removed == 0 {
		return 0
	}

	delete(s.subs, key)
	s.flushLocked()
	return removed
}

// ToggleNotifications flips the notification flag and returns the new value.
func (s *SubscriptionStore) ToggleNotifications(ownerID int64, subID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.getLocked(ownerID, subID)
	if err != nil {
		return false, err
	}

	sub.NotificationsEnabled = !sub.NotificationsEnabled
	s.flushLocked()
	return sub.NotificationsEnabled, nil
}

// ListByOwner returns copies of an owner's subscriptions, oldest first.
func (s *SubscriptionStore) ListByOwner(ownerID int64) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.subs[ownerKey(ownerID)]
	out := make([]Subscription, 0, len(owned))
	for _, sub := range owned {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubscribedAt.Before(out[j].SubscribedAt)
	})
	return out
}

// Get returns a copy of a single subscription.
func (s *SubscriptionStore) Get(ownerID int64, subID string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.getLocked(ownerID, subID)
	if err != nil {
		return Subscription{}, err
	}
	return *sub, nil
}

// Owners returns every user ID with at least one subscription.
func (s *SubscriptionStore) Owners() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(s.subs))
	for key := range s.subs {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// HasSubscriptions reports whether an owner still watches anything. The
// poller uses this to decide when its task should die.
func (s *SubscriptionStore) HasSubscriptions(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[ownerKey(ownerID)]) > 0
}

// MarkChecked stamps a subscription's last poll time.
func (s *SubscriptionStore) MarkChecked(ownerID int64, subID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.getLocked(ownerID, subID)
	if err != nil {
		return
	}
	sub.LastCheckedAt = at
	s.flushLocked()
}

// SetWatermark advances the newest-seen item ID for a subscription.
func (s *SubscriptionStore) SetWatermark(ownerID int64, subID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.getLocked(ownerID, subID)
	if err != nil {
		return
	}
	sub.LastSeenItemID = itemID
	s.flushLocked()
}

func (s *SubscriptionStore) getLocked(ownerID int64, subID string) (*Subscription, error) {
	owned, ok := s.subs[ownerKey(ownerID)]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	sub, ok := owned[subID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// flushLocked persists the registry. Write failures are logged, never
// propagated; the mutation may be lost on restart.
func (s *SubscriptionStore) flushLocked() {
	if err := saveJSON(s.path, s.subs); err != nil {
		s.logger.Error("failed to persist subscriptions", zap.Error(err))
	}
}

func ownerKey(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10)
}
