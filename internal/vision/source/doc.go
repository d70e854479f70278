// Package source is the minimal pull interface to video input.
//
// Decoding is delegated: directories of still images are read directly, and
// video files are unpacked into a temporary image sequence by ffmpeg. The
// tracking core depends only on Stream.
package source
