package pipeline

import (
	"context"

	"github.com/banshee-data/stereotrack/internal/vision/disparity"
	"github.com/banshee-data/stereotrack/internal/vision/frames"
)

// TrajectorySink receives the finished session record. Implementations
// live in export (files) and storage/sqlite (database).
type TrajectorySink interface {
	Flush(ctx context.Context, rec *Record) error
}

// ImagerySink receives each processed pair and its disparity map when
// imagery persistence is enabled. Implementations must not retain pair or
// dm after returning.
type ImagerySink interface {
	WriteFrame(ctx context.Context, sessionID string, pair frames.Pair, dm *disparity.Map) error
}

// TrajectorySinkFunc adapts a function to TrajectorySink.
type TrajectorySinkFunc func(ctx context.Context, rec *Record) error

// Flush implements TrajectorySink.
func (f TrajectorySinkFunc) Flush(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}
