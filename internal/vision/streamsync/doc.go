// Package streamsync estimates the integer frame offset between two video
// streams that recorded the same scene but started at different times, and
// hands back cursors repositioned so subsequent reads are time-aligned.
//
// Convention: a positive lag means stream B started first, so B's frame
// i+lag shows the same instant as A's frame i.
package streamsync
