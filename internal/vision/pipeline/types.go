package pipeline

import (
	"image"
	"time"
)

// TrackedSample is one fused trajectory point. Depth is 0 when the
// disparity at the tracked pixel was invalid.
type TrackedSample struct {
	FrameIndex int
	Timestamp  time.Duration // Offset of the frame from the first aligned frame
	X, Y       float64       // Left-view pixel coordinates
	Depth      float64       // Meters; 0 means unknown
	DepthValid bool
	Quality    float64
}

// LossReason says why a frame produced no sample.
type LossReason string

const (
	ReasonMiss    LossReason = "miss"    // Below quality; the tracker is still active
	ReasonLost    LossReason = "lost"    // The frame on which the tracker became lost
	ReasonWaiting LossReason = "waiting" // The tracker is lost and waiting for a reseed
)

// LossEvent records a frame whose tracker update failed.
type LossEvent struct {
	FrameIndex   int
	Timestamp    time.Duration
	LastPosition image.Point
	Quality      float64
	Reason       LossReason
}

// EventKind classifies an Event.
type EventKind string

const (
	EventSync   EventKind = "sync"
	EventSample EventKind = "sample"
	EventLoss   EventKind = "loss"
	EventReseed EventKind = "reseed"
)

// Event is delivered to Deps.OnEvent, in frame order, as the session runs.
type Event struct {
	Kind       EventKind
	FrameIndex int
	Sample     *TrackedSample // EventSample
	Loss       *LossEvent     // EventLoss
	Point      image.Point    // EventReseed
	Sync       *SyncInfo      // EventSync
}

// SyncInfo summarises stream synchronisation.
type SyncInfo struct {
	Lag           int
	Correlation   float64
	LowConfidence bool
}

// StopReason says how a session ended.
type StopReason string

const (
	StopEndOfStream StopReason = "end_of_stream"
	StopAborted     StopReason = "aborted"
	StopError       StopReason = "error"
)

// Stats summarises a session.
type Stats struct {
	Frames          int
	Samples         int
	DepthValid      int
	Misses          int
	Losses          int
	Reseeds         int
	MeanQuality     float64
	MeanLatency     time.Duration
	LatencyStdDev   time.Duration
	FramesPerSecond float64
}

// Record is everything a session produced. It is handed to the
// TrajectorySink exactly once.
type Record struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Seed       image.Point
	Sync       SyncInfo
	Samples    []TrackedSample
	Losses     []LossEvent
	Stats      Stats
	StopReason StopReason
	Error      string
}
