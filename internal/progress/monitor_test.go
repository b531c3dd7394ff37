package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediafetch/botcore/internal/provider"
)

func TestSizeLimitAborts(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	m := NewMonitor(100, time.Second, cancel, nil)

	m.Handle(provider.Progress{DownloadedBytes: 50, TotalBytes: 200})
	assert.NoError(t, ctx.Err())
	assert.False(t, m.Aborted())

	m.Handle(provider.Progress{DownloadedBytes: 101, TotalBytes: 200})
	require.Error(t, ctx.Err())
	assert.True(t, m.Aborted())
	assert.Equal(t, provider.KindTooLarge, provider.Categorize(context.Cause(ctx)))
}

func TestAbortFiresOnce(t *testing.T) {
	var fired int
	abort := func(err error) { fired++ }

	m := NewMonitor(100, time.Second, abort, nil)
	m.Handle(provider.Progress{DownloadedBytes: 150})
	m.Handle(provider.Progress{DownloadedBytes: 200})
	m.Handle(provider.Progress{DownloadedBytes: 250})

	assert.Equal(t, 1, fired)
}

func TestNotifyThrottled(t *testing.T) {
	var sent []string
	current := time.Now()

	_, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	m := NewMonitor(1<<30, 5*time.Second, cancel, func(text string) { sent = append(sent, text) })
	m.now = func() time.Time { return current }

	m.Handle(provider.Progress{DownloadedBytes: 10, TotalBytes: 100})
	m.Handle(provider.Progress{DownloadedBytes: 20, TotalBytes: 100})
	assert.Len(t, sent, 1, "second event inside the throttle window must be dropped")

	current = current.Add(6 * time.Second)
	m.Handle(provider.Progress{DownloadedBytes: 30, TotalBytes: 100})
	assert.Len(t, sent, 2)
}

func TestNoNotifyAfterAbort(t *testing.T) {
	var sent []string
	_, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	m := NewMonitor(100, 0, cancel, func(text string) { sent = append(sent, text) })

	m.Handle(provider.Progress{DownloadedBytes: 150, TotalBytes: 200})
	m.Handle(provider.Progress{DownloadedBytes: 160, TotalBytes: 200})
	assert.Empty(t, sent)
}

func TestConcurrentHandle(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	m := NewMonitor(1000, 0, cancel, func(string) {})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			for j := int64(0); j < 100; j++ {
				m.Handle(provider.Progress{DownloadedBytes: n * 10, TotalBytes: 1000})
			}
		}(int64(i))
	}
	wg.Wait()

	assert.NoError(t, ctx.Err())
}

func TestStatusText(t *testing.T) {
	text := statusText(provider.Progress{DownloadedBytes: 5 * 1024 * 1024, TotalBytes: 10 * 1024 * 1024, ETASeconds: 75})
	assert.Contains(t, text, "5.0 MB of 10.0 MB")
	assert.Contains(t, text, "50%")
	assert.Contains(t, text, "ETA 1:15")

	text = statusText(provider.Progress{DownloadedBytes: 3 * 1024 * 1024})
	assert.Contains(t, text, "3.0 MB...")
}
