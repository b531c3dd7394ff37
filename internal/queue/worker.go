package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/metrics"
	"github.com/mediafetch/botcore/internal/progress"
	"github.com/mediafetch/botcore/internal/provider"
)

var audioExtensions = map[string]bool{
	".mp3": true,
	".m4a": true,
	".ogg": true,
	".wav": true,
}

// process runs one job end to end: fetch through the pool with size
// enforcement, final size check, delivery under a timeout, then cache commit
// for non-audio artifacts. Every failure path notifies the requester with a
// categorized message and the operator with raw detail, and returns so the
// loop can continue.
func (q *Queue) process(job *Job) {
	ctx := context.Background()
	log := q.logger.With(zap.Int64("user_id", job.OwnerID), zap.String("url", job.URL))

	q.status(ctx, job, "⏳ Download started...")

	fetchCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	monitor := progress.NewMonitor(q.cfg.MaxArtifactSize, q.cfg.StatusThrottle, abort, func(text string) {
		q.status(ctx, job, text)
	})

	req := provider.FetchRequest{
		URL:       job.URL,
		Kind:      job.Kind,
		FormatID:  job.FormatID,
		Source:    job.Source,
		OutputDir: q.cfg.DownloadDir,
	}

	// The pool bounds concurrent provider invocations; job ordering is
	// already serialized by the worker loop.
	q.pool <- struct{}{}
	artifact, err := q.provider.Fetch(fetchCtx, req, monitor.Handle)
	<-q.pool

	if err != nil {
		q.fail(ctx, job, log, err)
		return
	}

	info, err := os.Stat(artifact.FilePath)
	if err != nil {
		q.fail(ctx, job, log, fmt.Errorf("stat artifact: %w", err))
		return
	}
	if info.Size() > q.cfg.MaxArtifactSize {
		os.Remove(artifact.FilePath)
		q.fail(ctx, job, log, provider.Errorf(provider.KindTooLarge,
			"artifact is %d bytes, limit is %d", info.Size(), q.cfg.MaxArtifactSize))
		return
	}

	title := job.Title
	if title == "" {
		title = artifact.Title
	}
	isAudio := job.Kind == provider.FormatAudioOnly ||
		audioExtensions[strings.ToLower(filepath.Ext(artifact.FilePath))]

	q.status(ctx, job, "📤 Sending file...")

	sendCtx, cancelSend := context.WithTimeout(ctx, q.cfg.SendTimeout)
	err = q.messenger.SendFile(sendCtx, job.Target.ChatID, artifact.FilePath, title, isAudio)
	cancelSend()
	if err != nil {
		os.Remove(artifact.FilePath)
		q.fail(ctx, job, log, fmt.Errorf("deliver artifact: %w", err))
		return
	}

	metrics.DeliveredBytes.Add(float64(info.Size()))

	if isAudio {
		// Audio is never cached; the artifact served its purpose.
		os.Remove(artifact.FilePath)
	} else {
		duration := job.DurationSeconds
		if duration == 0 {
			duration = artifact.DurationSeconds
		}
		if _, err := q.cache.Insert(job.URL, artifact.FilePath, job.FormatID, qualityLabel(job), duration, title, job.Source); err != nil {
			// Delivery already succeeded; a cache miss next time is the
			// only consequence.
			log.Warn("failed to commit artifact to cache", zap.Error(err))
		}
	}

	q.users.IncrementDownloads(job.OwnerID)
	metrics.JobsTotal.WithLabelValues("delivered").Inc()
	q.status(ctx, job, "✅ Done! Anything else?")
	log.Info("job delivered", zap.Int64("bytes", info.Size()), zap.Bool("audio", isAudio))
}

// fail reports a terminal job failure: a short categorized message to the
// requester, raw detail to the operator channel and the log.
func (q *Queue) fail(ctx context.Context, job *Job, log *zap.Logger, err error) {
	log.Error("job failed", zap.Error(err))

	outcome := "failed"
	if provider.Categorize(err) == provider.KindTooLarge {
		outcome = "rejected_size"
	}
	metrics.JobsTotal.WithLabelValues(outcome).Inc()

	q.status(ctx, job, "❌ "+provider.UserMessage(err))
	q.operator.Notify(ctx, fmt.Sprintf("job failed for user %d (%s): %v", job.OwnerID, job.URL, err))
}

// status edits the job's status message in place, falling back to a fresh
// message when editing is impossible. A transport error here is logged and
// otherwise ignored; status text is best-effort.
func (q *Queue) status(ctx context.Context, job *Job, text string) {
	if job.Target.MessageID != 0 {
		if err := q.messenger.EditText(ctx, job.Target.ChatID, job.Target.MessageID, text); err == nil {
			return
		}
	}
	id, err := q.messenger.SendText(ctx, job.Target.ChatID, text)
	if err != nil {
		q.logger.Warn("failed to send status update",
			zap.Int64("user_id", job.OwnerID), zap.Error(err))
		return
	}
	job.Target.MessageID = id
}

func qualityLabel(job *Job) string {
	if job.Quality != "" {
		return job.Quality
	}
	switch job.Kind {
	case provider.FormatMaximum:
		return "max"
	default:
		return "best"
	}
}
