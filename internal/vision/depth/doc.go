// Package depth converts disparity maps to metric depth with the pinhole
// stereo relation depth = B*f/d.
//
// Depth 0 is the sentinel for unknown: pixels whose disparity is invalid or
// not strictly positive map to exactly 0 rather than to an epsilon-derived
// huge value. The Estimator is stateless.
package depth
