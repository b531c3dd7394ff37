package ytdlp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mediafetch/botcore/internal/provider"
)

// downloadLineRe matches yt-dlp --newline progress output, e.g.
//
//	[download]  42.1% of 10.00MiB at 1.25MiB/s ETA 00:07
//	[download]  13.0% of ~523.10KiB at Unknown speed ETA Unknown
var downloadLineRe = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)% of ~?\s*([\d.]+)(KiB|MiB|GiB)(?:\s+at\s+([\d.]+)(KiB|MiB|GiB)/s)?(?:\s+ETA\s+(\d+):(\d+))?`)

// parseProgressLine turns one line of yt-dlp output into a progress event.
// Non-progress lines return ok=false.
func parseProgressLine(line string) (provider.Progress, bool) {
	m := downloadLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return provider.Progress{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return provider.Progress{}, false
	}
	totalValue, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return provider.Progress{}, false
	}

	total := int64(totalValue * unitBytes(m[3]))
	downloaded := int64(percent / 100 * float64(total))

	p := provider.Progress{
		Status:          "downloading",
		TotalBytes:      total,
		DownloadedBytes: downloaded,
	}

	if m[4] != "" {
		if speed, err := strconv.ParseFloat(m[4], 64); err == nil {
			p.SpeedBps = speed * unitBytes(m[5])
		}
	}
	if m[6] != "" && m[7] != "" {
		mins, _ := strconv.Atoi(m[6])
		secs, _ := strconv.Atoi(m[7])
		p.ETASeconds = mins*60 + secs
	}
	return p, true
}

func unitBytes(unit string) float64 {
	switch unit {
	case "KiB":
		return 1024
	case "MiB":
		return 1024 * 1024
	case "GiB":
		return 1024 * 1024 * 1024
	default:
		return 1
	}
}
