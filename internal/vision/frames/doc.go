// Package frames owns the FramePair data model and the deterministic,
// stateless image transforms applied before stereo matching and tracking.
//
// Order of operations for a raw pair: ToGray on both views, ResizeToMatch
// (right is scaled to the left view's resolution), then Equalize. All
// downstream coordinates (disparity, depth, tracked positions) are therefore
// in left-view pixel space.
package frames
