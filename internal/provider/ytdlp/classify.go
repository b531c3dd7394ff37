package ytdlp

import (
	"fmt"
	"strings"

	"github.com/mediafetch/botcore/internal/provider"
)

// classifyRunError maps yt-dlp stderr text onto the provider error taxonomy
// so the worker can show the requester a categorized message.
func classifyRunError(runErr error, stderr string) error {
	lower := strings.ToLower(stderr)
	wrapped := fmt.Errorf("yt-dlp: %w: %s", runErr, strings.TrimSpace(stderr))

	switch {
	case strings.Contains(lower, "sign in") ||
		strings.Contains(lower, "cookies") ||
		strings.Contains(lower, "login required") ||
		strings.Contains(lower, "age-restricted"):
		return provider.NewError(provider.KindAuthRequired, wrapped)

	case strings.Contains(lower, "unsupported url") ||
		strings.Contains(lower, "is not a valid url") ||
		strings.Contains(lower, "unable to extract"):
		return provider.NewError(provider.KindUnsupported, wrapped)

	case strings.Contains(lower, "certificate") ||
		strings.Contains(lower, "ssl") ||
		strings.Contains(lower, "tls"):
		return provider.NewError(provider.KindSSL, wrapped)

	case strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary failure"):
		return provider.NewError(provider.KindNetwork, wrapped)

	default:
		return provider.NewError(provider.KindGeneric, wrapped)
	}
}
