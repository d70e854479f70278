// Package pipeline orchestrates a stereo tracking session.
//
// A Session synchronises the two input streams once, seeds the tracker from
// the operator on the first aligned frame, then runs the per-frame loop:
// normalise the pair, compute disparity and depth while the tracker updates,
// fuse the tracked position with depth, and append the result. Per-frame
// failures become Events and LossEvents rather than errors; only the
// conditions that make a session meaningless (no frames, no seed) abort it.
// Whatever the exit path, the trajectory is flushed to the TrajectorySink.
//
// The package owns no algorithms. It delegates to streamsync, disparity,
// depth and tracker, and to the sinks in export and storage/sqlite.
package pipeline
