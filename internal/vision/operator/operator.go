// Package operator models the human in the loop: the source of seed points
// at session start and of reseed points after a track is lost.
package operator

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Operator selects a point to track on a frame. ok is false when the
// operator declines to select a point.
type Operator interface {
	SelectPoint(ctx context.Context, frame *image.Gray) (p image.Point, ok bool, err error)
}

// Fixed always selects the same point. It backs the --seed flag and tests.
type Fixed struct {
	Point image.Point
}

// SelectPoint implements Operator.
func (f Fixed) SelectPoint(ctx context.Context, frame *image.Gray) (image.Point, bool, error) {
	if err := ctx.Err(); err != nil {
		return image.Point{}, false, err
	}
	return f.Point, true, nil
}

// None never selects a point.
type None struct{}

// SelectPoint implements Operator.
func (None) SelectPoint(ctx context.Context, frame *image.Gray) (image.Point, bool, error) {
	return image.Point{}, false, ctx.Err()
}

// Then answers the first selection with first and every later one with next.
// The CLI uses it to take the seed from --seed and reseeds from the terminal.
func Then(first, next Operator) Operator {
	return &then{first: first, next: next}
}

type then struct {
	mu    sync.Mutex
	first Operator
	next  Operator
	used  bool
}

// SelectPoint implements Operator.
func (t *then) SelectPoint(ctx context.Context, frame *image.Gray) (image.Point, bool, error) {
	t.mu.Lock()
	op := t.next
	if !t.used {
		op, t.used = t.first, true
	}
	t.mu.Unlock()
	return op.SelectPoint(ctx, frame)
}

// Prompt asks for "x,y" on Out and reads the answer from In. An empty line
// or end of input means no point.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// SelectPoint implements Operator. It blocks until a line is read; ctx is
// only checked before prompting.
func (p *Prompt) SelectPoint(ctx context.Context, frame *image.Gray) (image.Point, bool, error) {
	if err := ctx.Err(); err != nil {
		return image.Point{}, false, err
	}
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}

	b := frame.Bounds()
	for {
		fmt.Fprintf(p.Out, "Select point to track as x,y within %dx%d (empty to skip): ", b.Dx(), b.Dy())
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return image.Point{}, false, fmt.Errorf("failed to read point: %w", err)
			}
			return image.Point{}, false, nil
		}
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			return image.Point{}, false, nil
		}
		pt, err := ParsePoint(line)
		if err != nil {
			fmt.Fprintf(p.Out, "%v\n", err)
			continue
		}
		if !pt.In(b) {
			fmt.Fprintf(p.Out, "point %d,%d is outside the %dx%d frame\n", pt.X, pt.Y, b.Dx(), b.Dy())
			continue
		}
		return pt, true, nil
	}
}

// ParsePoint parses "x,y" into a point.
func ParsePoint(s string) (image.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return image.Point{}, fmt.Errorf("invalid point %q, expected x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return image.Pt(x, y), nil
}
