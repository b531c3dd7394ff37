// Package queue implements the ordered download pipeline: an in-memory FIFO
// of jobs consumed by a single worker loop. The worker offloads blocking
// retrievals to a bounded pool but processes one job at a time, so delivery
// order matches enqueue order. The queue is never persisted; restart drops
// pending jobs.
package queue

import (
	"time"

	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/transport"
	"github.com/mediafetch/botcore/internal/urlnorm"
)

// Job is one pending or in-flight request to retrieve and deliver a media
// artifact. Consumed exactly once.
type Job struct {
	OwnerID         int64
	URL             string
	Kind            provider.FormatKind
	FormatID        string
	Quality         string
	Title           string
	DurationSeconds int
	Source          urlnorm.SourceType
	Target          transport.Target
	FromEphemeral   bool
	EnqueuedAt      time.Time
}

// QueuedJob is a read-only view of a waiting or in-flight job for the ops
// surface.
type QueuedJob struct {
	OwnerID  int64  `json:"owner_id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
	InFlight bool   `json:"in_flight"`
}
