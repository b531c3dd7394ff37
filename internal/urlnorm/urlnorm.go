// Package urlnorm canonicalizes media URLs so that superficially different
// links to the same content compare equal, and derives the stable cache key
// used by the content cache.
package urlnorm

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceType classifies which platform a URL points at.
type SourceType string

const (
	SourceYouTube      SourceType = "youtube"
	SourceYouTubeMusic SourceType = "youtube_music"
	SourceTikTok       SourceType = "tiktok"
	SourceUnknown      SourceType = "unknown"
)

// Normalize reduces a URL to its canonical comparison form. It never fails:
// input that cannot be parsed is returned unchanged. The operation is
// idempotent.
//
// Rules:
//   - youtu.be/<id>            -> https://www.youtube.com/watch?v=<id>
//   - *.youtube.com?v=<id>     -> https://www.youtube.com/watch?v=<id>
//   - tiktok.com/.../video/<id> -> https://www.tiktok.com/@user/video/<id>
//   - anything else            -> scheme://lowercase-host/path (query dropped)
func Normalize(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.ToLower(parsed.Host)

	// Short YouTube links carry the video ID in the path.
	if host == "youtu.be" {
		videoID := strings.TrimPrefix(parsed.Path, "/")
		if i := strings.IndexAny(videoID, "/?"); i >= 0 {
			videoID = videoID[:i]
		}
		return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	}

	// Full YouTube links keep only the video ID; tracking and playlist
	// parameters are dropped and the host collapses to the canonical one.
	if strings.Contains(host, "youtube.com") {
		if videoID := parsed.Query().Get("v"); videoID != "" {
			return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
		}
	}

	// TikTok links reduce to the numeric video ID under a placeholder
	// uploader segment.
	if strings.Contains(host, "tiktok.com") {
		parts := strings.Split(parsed.Path, "/")
		for i, part := range parts {
			if part == "video" && i+1 < len(parts) && parts[i+1] != "" {
				return fmt.Sprintf("https://www.tiktok.com/@user/video/%s", parts[i+1])
			}
		}
	}

	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, parsed.Path)
}

// Classify reports the source platform for a URL. It is a pure function of
// host and path and never fails.
func Classify(raw string) SourceType {
	lower := strings.ToLower(raw)

	if strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be") {
		if strings.Contains(lower, "music.youtube.com") {
			return SourceYouTubeMusic
		}
		return SourceYouTube
	}

	if strings.Contains(lower, "tiktok.com") {
		return SourceTikTok
	}

	return SourceUnknown
}
