package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// FFmpegPath is the ffmpeg binary used to unpack video files.
var FFmpegPath = "ffmpeg"

// Open opens path as a Stream. Directories are read as image sequences;
// any other file is unpacked into a temporary image sequence with ffmpeg,
// which is removed when the stream is closed.
func Open(ctx context.Context, path string) (Stream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s: %w", path, err)
	}
	if info.IsDir() {
		return OpenDir(path)
	}

	dir, err := os.MkdirTemp("", "stereotrack-frames-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	if err := ExtractFrames(ctx, path, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	d, err := OpenDir(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("video %s yielded no frames: %w", path, err)
	}
	d.cleanup = func() error { return os.RemoveAll(dir) }
	return d, nil
}

// ExtractFrames calls ffmpeg to decode a video into numbered png frames in dir.
func ExtractFrames(ctx context.Context, filename, dir string) error {
	cmd := exec.CommandContext(ctx, FFmpegPath, "-y", "-loglevel", "error",
		"-i", filename, dir+"/frame_%08d.png")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg failed to decode %s: %w: %s", filename, err, out)
	}
	return nil
}
