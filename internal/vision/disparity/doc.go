// Package disparity computes dense disparity maps from rectified grayscale
// stereo pairs by fixed-window block matching.
//
// Responsibilities: x-Sobel prefiltering, SAD cost aggregation over a square
// block, winner-take-all selection with uniqueness and texture validity
// checks, parabolic sub-pixel refinement quantised to 1/16 pixel, and
// speckle removal. Output is a pure function of the pair and Config; the
// Engine keeps no state across frames.
package disparity
