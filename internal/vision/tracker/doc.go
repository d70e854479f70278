// Package tracker follows a single operator-designated image point from
// frame to frame.
//
// The Tracker is a three-state machine (uninitialized, active, lost). Its
// appearance model is a fixed square template cut around the seed and
// matched by zero-mean normalised cross-correlation in a window around the
// constant-velocity prediction. Each Update either returns a position with
// its quality in [0,1] or an error; it never returns a position for a frame
// it failed on. After MaxMisses consecutive failures the tracker is lost and
// stays lost until Reseed.
package tracker
