package ops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/cache"
	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/queue"
	"github.com/mediafetch/botcore/internal/service"
	"github.com/mediafetch/botcore/internal/store"
	"github.com/mediafetch/botcore/internal/token"
	"github.com/mediafetch/botcore/internal/transport"
	"github.com/mediafetch/botcore/internal/urlnorm"
)

type nullProvider struct{}

func (nullProvider) Probe(context.Context, string, urlnorm.SourceType) (*provider.MediaInfo, error) {
	return &provider.MediaInfo{}, nil
}
func (nullProvider) Fetch(context.Context, provider.FetchRequest, provider.ProgressFunc) (*provider.Artifact, error) {
	return nil, context.Canceled
}
func (nullProvider) Search(context.Context, string, int) ([]provider.SearchResult, error) {
	return nil, nil
}
func (nullProvider) ChannelInfo(context.Context, string) (*provider.ChannelInfo, error) {
	return nil, nil
}
func (nullProvider) LatestItems(context.Context, string, int) ([]provider.Item, error) {
	return nil, nil
}

type nullMessenger struct{}

func (nullMessenger) SendText(context.Context, int64, string) (int, error) { return 1, nil }
func (nullMessenger) EditText(context.Context, int64, int, string) error   { return nil }
func (nullMessenger) SendFile(context.Context, int64, string, string, bool) error {
	return nil
}
func (nullMessenger) SendChoices(context.Context, int64, string, []transport.Choice) error {
	return nil
}

func newRouter(t *testing.T, apiKeys []string) (*gin.Engine, *cache.Cache) {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop()

	c, err := cache.New(filepath.Join(dir, "index.json"), filepath.Join(dir, "cache"), log)
	require.NoError(t, err)
	users, err := store.NewUserStore(filepath.Join(dir, "users.json"), log)
	require.NoError(t, err)
	subs, err := store.NewSubscriptionStore(filepath.Join(dir, "subs.json"), log)
	require.NoError(t, err)

	m := nullMessenger{}
	q := queue.New(queue.Config{MaxArtifactSize: 1 << 20, SendTimeout: time.Second},
		nullProvider{}, c, users, m, transport.NewOperator(m, 0, log), log)
	svc := service.New(q, c, users, subs, token.NewStore(time.Hour), nullProvider{}, nil, m, log)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, apiKeys, svc, log)
	return router, c
}

func do(router *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthzIsPublic(t *testing.T) {
	router, _ := newRouter(t, []string{"secret"})

	w := do(router, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")
}

func TestMetricsIsPublic(t *testing.T) {
	router, _ := newRouter(t, []string{"secret"})

	w := do(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAPIRequiresKey(t *testing.T) {
	router, _ := newRouter(t, []string{"secret"})

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "missing key", header: nil, want: http.StatusUnauthorized},
		{name: "wrong key", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "api key header", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusOK},
		{name: "bearer header", header: map[string]string{"Authorization": "Bearer secret"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, "/api/v1/queue", "", tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestNoConfiguredKeysRejectsEverything(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := do(router, http.MethodGet, "/api/v1/queue", "", map[string]string{"X-API-Key": "anything"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCacheStatsAndClear(t *testing.T) {
	router, c := newRouter(t, []string{"secret"})
	auth := map[string]string{"X-API-Key": "secret"}

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0o644))
	_, err := c.Insert("https://youtu.be/abc123", src, "", "720p", 60, "Clip", urlnorm.SourceYouTube)
	require.NoError(t, err)

	w := do(router, http.MethodGet, "/api/v1/cache/stats", "", auth)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":1`)

	w = do(router, http.MethodDelete, "/api/v1/cache", "", auth)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":1`)
	assert.Contains(t, w.Body.String(), `"bytes_freed":10`)

	w = do(router, http.MethodGet, "/api/v1/cache/stats", "", auth)
	assert.Contains(t, w.Body.String(), `"entries":0`)
}

func TestBroadcastValidatesBody(t *testing.T) {
	router, _ := newRouter(t, []string{"secret"})
	auth := map[string]string{"X-API-Key": "secret", "Content-Type": "application/json"}

	w := do(router, http.MethodPost, "/api/v1/broadcast", `{}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/broadcast", `{"text":"hello"}`, auth)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"delivered":0`)
}
