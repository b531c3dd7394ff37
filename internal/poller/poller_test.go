package poller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/feed"
	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/store"
	"github.com/mediafetch/botcore/internal/transport"
)

type fakeLister struct {
	mu    sync.Mutex
	items []provider.Item
	err   error
	calls int
}

func (l *fakeLister) LatestItems(_ context.Context, _ string, max int) ([]provider.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	items := l.items
	if len(items) > max {
		items = items[:max]
	}
	return items, nil
}

type fakeFeed struct {
	mu      sync.Mutex
	uploads map[string][]feed.Upload
	errs    map[string]error
	calls   int
}

func (f *fakeFeed) Latest(_ context.Context, channelID string, max int) ([]feed.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[channelID]; err != nil {
		return nil, err
	}
	uploads := f.uploads[channelID]
	if len(uploads) > max {
		uploads = uploads[:max]
	}
	return uploads, nil
}

type textRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *textRecorder) SendText(_ context.Context, _ int64, text string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return len(r.texts), nil
}

func (r *textRecorder) EditText(context.Context, int64, int, string) error { return nil }
func (r *textRecorder) SendFile(context.Context, int64, string, string, bool) error {
	return nil
}
func (r *textRecorder) SendChoices(context.Context, int64, string, []transport.Choice) error {
	return nil
}

func (r *textRecorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func uploadsNewestFirst(ids ...string) []feed.Upload {
	out := make([]feed.Upload, 0, len(ids))
	for _, id := range ids {
		out = append(out, feed.Upload{
			VideoID: id,
			Title:   "Video " + id,
			URL:     "https://www.youtube.com/watch?v=" + id,
		})
	}
	return out
}

func newTestManager(t *testing.T, f *fakeFeed) (*Manager, *store.SubscriptionStore, *textRecorder) {
	t.Helper()
	subs, err := store.NewSubscriptionStore(filepath.Join(t.TempDir(), "subs.json"), zap.NewNop())
	require.NoError(t, err)

	rec := &textRecorder{}
	cfg := Config{CheckInterval: time.Hour, ErrorBackoff: 5 * time.Minute, MaxItems: 5}
	return NewManager(cfg, subs, f, nil, rec, zap.NewNop()), subs, rec
}

func TestCycleNotifiesNewUploadsOldestFirst(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{
		"UCabc": uploadsNewestFirst("v5", "v4", "v3"),
	}}
	m, subs, rec := newTestManager(t, f)

	sub, err := subs.Subscribe(7, "UCabc", "Some Channel", "https://www.youtube.com/@some")
	require.NoError(t, err)
	subs.SetWatermark(7, sub.ID, "v3")

	failed := m.cycle(context.Background(), 7)
	assert.False(t, failed)

	texts := rec.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "v4", "oldest new upload announced first")
	assert.Contains(t, texts[1], "v5")
	assert.Contains(t, texts[0], "Some Channel")

	got, err := subs.Get(7, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "v5", got.LastSeenItemID)
	assert.False(t, got.LastCheckedAt.IsZero())
}

func TestCycleFirstPollRecordsWatermarkSilently(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{
		"UCabc": uploadsNewestFirst("v9", "v8"),
	}}
	m, subs, rec := newTestManager(t, f)

	sub, err := subs.Subscribe(7, "UCabc", "Some Channel", "")
	require.NoError(t, err)

	m.cycle(context.Background(), 7)

	assert.Empty(t, rec.sent(), "nothing that predates the subscription is announced")
	got, _ := subs.Get(7, sub.ID)
	assert.Equal(t, "v9", got.LastSeenItemID)
}

func TestCycleWatermarkFellOutOfFeed(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{
		"UCabc": uploadsNewestFirst("v9", "v8"),
	}}
	m, subs, rec := newTestManager(t, f)

	sub, err := subs.Subscribe(7, "UCabc", "Some Channel", "")
	require.NoError(t, err)
	subs.SetWatermark(7, sub.ID, "v1")

	m.cycle(context.Background(), 7)

	assert.Len(t, rec.sent(), 2, "a vanished watermark means every visible item is new")
	got, _ := subs.Get(7, sub.ID)
	assert.Equal(t, "v9", got.LastSeenItemID)
}

func TestCycleSkipsDisabledAndRecentlyChecked(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{
		"UCmute":  uploadsNewestFirst("m2", "m1"),
		"UCfresh": uploadsNewestFirst("f2", "f1"),
	}}
	m, subs, _ := newTestManager(t, f)

	muted, err := subs.Subscribe(7, "UCmute", "Muted", "")
	require.NoError(t, err)
	_, err = subs.ToggleNotifications(7, muted.ID)
	require.NoError(t, err)

	fresh, err := subs.Subscribe(7, "UCfresh", "Fresh", "")
	require.NoError(t, err)
	subs.MarkChecked(7, fresh.ID, time.Now())

	m.cycle(context.Background(), 7)

	assert.Zero(t, f.calls, "muted and recently checked subscriptions are not polled")
}

func TestCycleIsolatesFailingChannel(t *testing.T) {
	f := &fakeFeed{
		uploads: map[string][]feed.Upload{
			"UCok": uploadsNewestFirst("k2", "k1"),
		},
		errs: map[string]error{
			"UCbroken": errors.New("feed returned status 500"),
		},
	}
	m, subs, rec := newTestManager(t, f)

	broken, err := subs.Subscribe(7, "UCbroken", "Broken", "")
	require.NoError(t, err)
	ok, err := subs.Subscribe(7, "UCok", "OK", "")
	require.NoError(t, err)
	subs.SetWatermark(7, broken.ID, "b0")
	subs.SetWatermark(7, ok.ID, "k1")

	failed := m.cycle(context.Background(), 7)

	assert.True(t, failed)
	texts := strings.Join(rec.sent(), "\n")
	assert.Contains(t, texts, "k2", "healthy channel still announced")
	gotBroken, _ := subs.Get(7, broken.ID)
	assert.Equal(t, "b0", gotBroken.LastSeenItemID, "failed poll leaves the watermark alone")
}

func TestFeedFailureFallsBackToProviderListing(t *testing.T) {
	f := &fakeFeed{errs: map[string]error{
		"UCabc": errors.New("feed returned status 503"),
	}}
	lister := &fakeLister{items: []provider.Item{
		{ID: "v5", Title: "Video v5", URL: "https://www.youtube.com/watch?v=v5"},
		{ID: "v4", Title: "Video v4", URL: "https://www.youtube.com/watch?v=v4"},
	}}
	m, subs, rec := newTestManager(t, f)
	m.lister = lister

	sub, err := subs.Subscribe(7, "UCabc", "Some Channel", "https://www.youtube.com/@some")
	require.NoError(t, err)
	subs.SetWatermark(7, sub.ID, "v4")

	failed := m.cycle(context.Background(), 7)

	assert.False(t, failed, "a successful fallback is not a failed poll")
	assert.Equal(t, 1, lister.calls)
	texts := rec.sent()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "v5")

	got, _ := subs.Get(7, sub.ID)
	assert.Equal(t, "v5", got.LastSeenItemID)
	assert.False(t, got.LastCheckedAt.IsZero())
}

func TestFailedPollIsRetriedNextCycle(t *testing.T) {
	f := &fakeFeed{errs: map[string]error{
		"UCabc": errors.New("feed returned status 500"),
	}}
	m, subs, _ := newTestManager(t, f)

	sub, err := subs.Subscribe(7, "UCabc", "Some Channel", "")
	require.NoError(t, err)

	require.True(t, m.cycle(context.Background(), 7))
	got, _ := subs.Get(7, sub.ID)
	assert.True(t, got.LastCheckedAt.IsZero(), "failed poll must not advance the checkpoint")

	// The backoff wakeup polls the same channel again instead of treating
	// it as recently checked.
	require.True(t, m.cycle(context.Background(), 7))
	assert.Equal(t, 2, f.calls)
}

func TestEnsureRunningStartsOneTaskPerOwner(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{}}
	m, subs, _ := newTestManager(t, f)
	_, err := subs.Subscribe(7, "UCabc", "Some Channel", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.EnsureRunning(ctx, 7)
	m.EnsureRunning(ctx, 7)
	assert.Equal(t, 1, m.Active())

	cancel()
	m.StopAll()
	assert.Zero(t, m.Active())
}

func TestStopOwnerCancelsSleepingTask(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{}}
	m, subs, _ := newTestManager(t, f) // hour-long sleep between cycles

	_, err := subs.Subscribe(7, "UCabc", "Some Channel", "")
	require.NoError(t, err)

	m.EnsureRunning(context.Background(), 7)
	require.Equal(t, 1, m.Active())

	subs.UnsubscribeAll(7)
	m.StopOwner(7)
	assert.Eventually(t, func() bool { return m.Active() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestTaskDiesWhenLastSubscriptionRemoved(t *testing.T) {
	f := &fakeFeed{uploads: map[string][]feed.Upload{}}
	m, subs, _ := newTestManager(t, f)
	m.cfg.CheckInterval = 10 * time.Millisecond
	m.cfg.ErrorBackoff = 10 * time.Millisecond

	_, err := subs.Subscribe(7, "UCabc", "Some Channel", "")
	require.NoError(t, err)

	m.EnsureRunning(context.Background(), 7)
	require.Equal(t, 1, m.Active())

	subs.UnsubscribeAll(7)
	assert.Eventually(t, func() bool { return m.Active() == 0 },
		time.Second, 5*time.Millisecond)
}
