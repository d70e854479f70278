package source

import (
	"errors"
	"image"
	"io"
)

var (
	// ErrEndOfStream is returned by ReadFrame once the stream is exhausted.
	ErrEndOfStream = io.EOF
	// ErrClosed is returned by ReadFrame after Close.
	ErrClosed = errors.New("source: stream closed")
)

// Stream is a forward-only sequence of frames.
type Stream interface {
	// ReadFrame returns the next frame or ErrEndOfStream.
	ReadFrame() (image.Image, error)
	// IsOpen reports whether the stream can still yield frames.
	IsOpen() bool
	// Close releases the stream's resources.
	Close() error
}

// Memory is an in-memory Stream, used by tests and by Replay.
type Memory struct {
	frames []image.Image
	pos    int
	closed bool
}

// NewMemory returns a Stream over frames.
func NewMemory[T image.Image](frames ...T) *Memory {
	m := &Memory{frames: make([]image.Image, len(frames))}
	for i, f := range frames {
		m.frames[i] = f
	}
	return m
}

// ReadFrame implements Stream.
func (m *Memory) ReadFrame() (image.Image, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.pos >= len(m.frames) {
		return nil, ErrEndOfStream
	}
	f := m.frames[m.pos]
	m.pos++
	return f, nil
}

// IsOpen implements Stream.
func (m *Memory) IsOpen() bool {
	return !m.closed && m.pos < len(m.frames)
}

// Close implements Stream.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// replay yields buffered frames before continuing with the wrapped stream.
type replay struct {
	prefix []image.Image
	rest   Stream
}

// Replay returns a Stream that yields prefix first and then the remainder of
// rest. It lets a consumer that has already read ahead (the synchroniser)
// hand back a cursor positioned at any buffered frame.
func Replay(prefix []image.Image, rest Stream) Stream {
	return &replay{prefix: prefix, rest: rest}
}

func (r *replay) ReadFrame() (image.Image, error) {
	if len(r.prefix) > 0 {
		f := r.prefix[0]
		r.prefix = r.prefix[1:]
		return f, nil
	}
	return r.rest.ReadFrame()
}

func (r *replay) IsOpen() bool {
	return len(r.prefix) > 0 || r.rest.IsOpen()
}

func (r *replay) Close() error {
	r.prefix = nil
	return r.rest.Close()
}
