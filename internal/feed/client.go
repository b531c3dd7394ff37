package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const defaultFeedURL = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// HTTPClient is the subset of http.Client the feed client needs; it allows
// mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches channel upload feeds.
type Client struct {
	http        HTTPClient
	feedURLTmpl string
}

// NewClient creates a feed client. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, feedURLTmpl: defaultFeedURL}
}

// Latest returns up to max recent uploads for a channel, newest first.
func (c *Client) Latest(ctx context.Context, channelID string, max int) ([]Upload, error) {
	url := fmt.Sprintf(c.feedURLTmpl, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch channel feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read channel feed: %w", err)
	}

	uploads, err := parseChannelFeed(body)
	if err != nil {
		return nil, err
	}
	if len(uploads) > max {
		uploads = uploads[:max]
	}
	return uploads, nil
}
