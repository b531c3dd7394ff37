// Package provider defines the contract with the media retrieval collaborator.
// The core treats retrieval as opaque: give it a URL and a format selector,
// get back a local file, a title and a duration, or a categorized error.
package provider

import (
	"context"
	"time"

	"github.com/mediafetch/botcore/internal/urlnorm"
)

// FormatKind selects how the artifact is chosen.
type FormatKind string

const (
	// FormatSpecific downloads one exact format by its provider ID.
	FormatSpecific FormatKind = "specific"
	// FormatBestCapped downloads the best variant up to 1080p.
	FormatBestCapped FormatKind = "best"
	// FormatMaximum downloads the absolute best variant, uncapped.
	FormatMaximum FormatKind = "max"
	// FormatAudioOnly extracts audio only.
	FormatAudioOnly FormatKind = "audio"
)

// Format is one downloadable variant reported by a probe.
type Format struct {
	ID       string
	Height   int
	Ext      string
	Note     string
	Filesize int64
}

// MediaInfo is the result of probing a URL without downloading.
type MediaInfo struct {
	Title           string
	DurationSeconds int
	Formats         []Format
}

// ChannelInfo describes a channel resolved from a URL.
type ChannelInfo struct {
	ChannelID string
	Title     string
	URL       string
}

// Item is one entry in a channel's recent uploads, newest first.
type Item struct {
	ID              string
	Title           string
	URL             string
	DurationSeconds int
	PublishedAt     time.Time
}

// SearchResult is one ranked hit from a media search.
type SearchResult struct {
	ID              string
	Title           string
	URL             string
	Uploader        string
	DurationSeconds int
}

// Progress is one retrieval progress event.
type Progress struct {
	Status          string
	TotalBytes      int64
	DownloadedBytes int64
	SpeedBps        float64
	ETASeconds      int
}

// ProgressFunc receives progress events. It may be called from a goroutine
// other than the one awaiting Fetch.
type ProgressFunc func(Progress)

// Artifact is a completed retrieval.
type Artifact struct {
	FilePath        string
	Title           string
	DurationSeconds int
}

// FetchRequest describes one retrieval.
type FetchRequest struct {
	URL       string
	Kind      FormatKind
	FormatID  string
	Source    urlnorm.SourceType
	OutputDir string
}

// Provider is the media retrieval collaborator.
type Provider interface {
	// Probe lists available formats and metadata without downloading.
	Probe(ctx context.Context, url string, source urlnorm.SourceType) (*MediaInfo, error)

	// Fetch retrieves the artifact described by req. Cancelling ctx aborts
	// the in-flight retrieval and removes any partial artifact.
	Fetch(ctx context.Context, req FetchRequest, progress ProgressFunc) (*Artifact, error)

	// Search returns up to max ranked results for a free-text query.
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)

	// ChannelInfo resolves a channel URL to its ID and title.
	ChannelInfo(ctx context.Context, url string) (*ChannelInfo, error)

	// LatestItems returns up to max recent uploads for a channel, newest
	// first.
	LatestItems(ctx context.Context, channelURL string, max int) ([]Item, error)
}
