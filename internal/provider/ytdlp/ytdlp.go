// Package ytdlp implements the retrieval provider on top of the yt-dlp
// binary. Downloads land in a per-call temp directory and are handed back as
// a single artifact path; progress is parsed from yt-dlp's --newline output.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/urlnorm"
)

// Fetcher shells out to yt-dlp.
type Fetcher struct {
	binary        string
	cookiesFiles  []string
	socketTimeout time.Duration
	logger        *zap.Logger
}

// New creates a Fetcher. cookiesFiles are candidate cookie jar paths; the
// first one that exists is passed to yt-dlp for YouTube retrievals.
func New(binary string, cookiesFiles []string, socketTimeout time.Duration, logger *zap.Logger) *Fetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Fetcher{
		binary:        binary,
		cookiesFiles:  cookiesFiles,
		socketTimeout: socketTimeout,
		logger:        logger,
	}
}

var _ provider.Provider = (*Fetcher)(nil)

// probeResult mirrors the subset of yt-dlp -J output the core needs.
type probeResult struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	ChannelID  string  `json:"channel_id"`
	UploaderID string  `json:"uploader_id"`
	Uploader   string  `json:"uploader"`
	WebpageURL string  `json:"webpage_url"`
	Formats    []struct {
		FormatID   string  `json:"format_id"`
		Height     int     `json:"height"`
		Ext        string  `json:"ext"`
		FormatNote string  `json:"format_note"`
		Filesize   int64   `json:"filesize"`
		VCodec     string  `json:"vcodec"`
	} `json:"formats"`
	Entries []flatEntry `json:"entries"`
}

type flatEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Uploader string  `json:"uploader"`
}

// Probe lists formats and metadata for a URL without downloading.
func (f *Fetcher) Probe(ctx context.Context, url string, source urlnorm.SourceType) (*provider.MediaInfo, error) {
	args := f.baseArgs(source)
	args = append(args, "-J", url)

	out, err := f.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, provider.Errorf(provider.KindUnsupported, "parse probe output: %w", err)
	}

	info := &provider.MediaInfo{
		Title:           res.Title,
		DurationSeconds: int(res.Duration),
	}
	for _, ft := range res.Formats {
		if ft.VCodec == "none" {
			continue // audio-only variants are reached through FormatAudioOnly
		}
		info.Formats = append(info.Formats, provider.Format{
			ID:       ft.FormatID,
			Height:   ft.Height,
			Ext:      ft.Ext,
			Note:     ft.FormatNote,
			Filesize: ft.Filesize,
		})
	}
	return info, nil
}

// Fetch downloads one artifact. The download happens inside a fresh temp
// directory under req.OutputDir; on success the single produced file is the
// artifact and the caller owns it. Cancelling ctx kills yt-dlp and removes
// the partial output.
func (f *Fetcher) Fetch(ctx context.Context, req provider.FetchRequest, progress provider.ProgressFunc) (*provider.Artifact, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	tempDir, err := os.MkdirTemp(req.OutputDir, "fetch-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	args := f.baseArgs(req.Source)
	args = append(args, "--newline", "-o", filepath.Join(tempDir, "%(title)s.%(ext)s"))
	args = append(args, formatArgs(req)...)
	args = append(args, req.URL)

	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("attach stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("start %s: %w", f.binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if p, ok := parseProgressLine(scanner.Text()); ok && progress != nil {
			progress(p)
		}
	}

	if err := cmd.Wait(); err != nil {
		os.RemoveAll(tempDir)
		// A cancelled context carries the abort reason (e.g. size limit).
		if ctx.Err() != nil {
			if cause := context.Cause(ctx); cause != nil {
				return nil, cause
			}
			return nil, ctx.Err()
		}
		return nil, classifyRunError(err, stderr.String())
	}

	artifactPath, err := singleFileIn(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, provider.Errorf(provider.KindUnsupported, "no artifact produced: %w", err)
	}

	// Move the artifact out so the temp dir can go away.
	finalPath := filepath.Join(req.OutputDir, filepath.Base(artifactPath))
	if err := os.Rename(artifactPath, finalPath); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("move artifact: %w", err)
	}
	os.RemoveAll(tempDir)

	title := strings.TrimSuffix(filepath.Base(finalPath), filepath.Ext(finalPath))
	return &provider.Artifact{FilePath: finalPath, Title: title}, nil
}

// Search runs a free-text search and returns ranked results.
func (f *Fetcher) Search(ctx context.Context, query string, max int) ([]provider.SearchResult, error) {
	args := f.baseArgs(urlnorm.SourceYouTube)
	args = append(args, "-J", "--flat-playlist", fmt.Sprintf("ytsearch%d:%s", max, query))

	out, err := f.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, provider.Errorf(provider.KindUnsupported, "parse search output: %w", err)
	}

	results := make([]provider.SearchResult, 0, len(res.Entries))
	for _, e := range res.Entries {
		url := e.URL
		if url == "" && e.ID != "" {
			url = "https://www.youtube.com/watch?v=" + e.ID
		}
		results = append(results, provider.SearchResult{
			ID:              e.ID,
			Title:           e.Title,
			URL:             url,
			Uploader:        e.Uploader,
			DurationSeconds: int(e.Duration),
		})
	}
	return results, nil
}

// ChannelInfo resolves a channel URL to its ID and title.
func (f *Fetcher) ChannelInfo(ctx context.Context, url string) (*provider.ChannelInfo, error) {
	args := f.baseArgs(urlnorm.SourceYouTube)
	args = append(args, "-J", "--flat-playlist", "--playlist-items", "0", url)

	out, err := f.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, provider.Errorf(provider.KindUnsupported, "parse channel output: %w", err)
	}

	channelID := res.ChannelID
	if channelID == "" {
		channelID = res.UploaderID
	}
	if channelID == "" {
		return nil, provider.Errorf(provider.KindUnsupported, "no channel ID for %s", url)
	}

	title := res.Uploader
	if title == "" {
		title = res.Title
	}

	pageURL := res.WebpageURL
	if pageURL == "" {
		pageURL = url
	}

	return &provider.ChannelInfo{ChannelID: channelID, Title: title, URL: pageURL}, nil
}

// LatestItems returns up to max recent uploads for a channel, newest first.
func (f *Fetcher) LatestItems(ctx context.Context, channelURL string, max int) ([]provider.Item, error) {
	args := f.baseArgs(urlnorm.SourceYouTube)
	args = append(args, "-J", "--flat-playlist", "--playlist-end", fmt.Sprintf("%d", max), channelURL)

	out, err := f.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, provider.Errorf(provider.KindUnsupported, "parse channel listing: %w", err)
	}

	items := make([]provider.Item, 0, len(res.Entries))
	for _, e := range res.Entries {
		url := e.URL
		if url == "" && e.ID != "" {
			url = "https://www.youtube.com/watch?v=" + e.ID
		}
		items = append(items, provider.Item{
			ID:              e.ID,
			Title:           e.Title,
			URL:             url,
			DurationSeconds: int(e.Duration),
		})
	}
	return items, nil
}

// baseArgs are the flags shared by every invocation, including the cookie jar
// for YouTube sources when one exists on disk.
func (f *Fetcher) baseArgs(source urlnorm.SourceType) []string {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-check-certificates",
		"--socket-timeout", fmt.Sprintf("%d", int(f.socketTimeout.Seconds())),
	}
	if source == urlnorm.SourceYouTube || source == urlnorm.SourceYouTubeMusic {
		for _, path := range f.cookiesFiles {
			if _, err := os.Stat(path); err == nil {
				args = append(args, "--cookies", path)
				break
			}
		}
	}
	return args
}

func (f *Fetcher) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.binary, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyRunError(err, stderr.String())
	}
	return out.Bytes(), nil
}

// formatArgs maps a FetchRequest to yt-dlp format flags, mirroring the
// quality tiers the request surface offers.
func formatArgs(req provider.FetchRequest) []string {
	switch req.Kind {
	case provider.FormatAudioOnly:
		return []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3", "--audio-quality", "192K"}
	case provider.FormatMaximum:
		return []string{"-f", "best"}
	case provider.FormatSpecific:
		if req.FormatID != "" {
			return []string{"-f", req.FormatID}
		}
		return []string{"-f", "best[height<=1080]"}
	default: // FormatBestCapped
		return []string{"-f", "best[height<=1080]"}
	}
}

// singleFileIn returns the one regular file inside dir. yt-dlp writes exactly
// one output per invocation with our flags; if postprocessing left several,
// the largest wins.
func singleFileIn(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, e.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("empty output dir %s", dir)
	}
	return best, nil
}
