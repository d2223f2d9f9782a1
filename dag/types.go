package dag

import (
	"context"
	"time"
)

type Artifacts map[string]string // key → absolute path on disk or small text value

type Task interface {
	ID() string
	Deps() []string
	Run(ctx context.Context, in Artifacts) (Artifacts, error)
	MaxRetries() uint64
	// Timeout bounds a single attempt, zero means no limit beyond the run ctx.
	Timeout() time.Duration
}
