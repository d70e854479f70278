package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir streams the still images of one directory in lexical file-name order.
type Dir struct {
	path   string
	files  []string
	pos    int
	closed bool
	// cleanup runs on Close; set when the directory is a temporary extraction.
	cleanup func() error
}

// OpenDir opens a directory of png/jpeg frames.
func OpenDir(path string) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no png/jpeg frames found in %s", path)
	}
	sort.Strings(files)

	return &Dir{path: path, files: files}, nil
}

// Len returns the number of frames in the directory.
func (d *Dir) Len() int {
	return len(d.files)
}

// ReadFrame implements Stream.
func (d *Dir) ReadFrame() (image.Image, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.pos >= len(d.files) {
		return nil, ErrEndOfStream
	}
	name := d.files[d.pos]
	d.pos++

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", name, err)
	}
	return img, nil
}

// IsOpen implements Stream.
func (d *Dir) IsOpen() bool {
	return !d.closed && d.pos < len(d.files)
}

// Close implements Stream.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.cleanup != nil {
		return d.cleanup()
	}
	return nil
}
