package disparity

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrSizeMismatch is returned when the two views differ in size.
var ErrSizeMismatch = errors.New("disparity: left and right images differ in size")

// Engine computes disparity maps with fixed-window block matching.
// An Engine is safe for concurrent use; it holds only its configuration.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid disparity config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// geometry describes the region of the left view where the matching window
// and every candidate window in the right view fit inside the image.
type geometry struct {
	w, h     int
	half     int
	nd, minD int
	xLo, xHi int // valid columns [xLo, xHi)
	yLo, yHi int // valid rows [yLo, yHi)
}

func (e *Engine) geometry(w, h int) geometry {
	half := e.cfg.BlockSize / 2
	g := geometry{
		w: w, h: h, half: half,
		nd:   e.cfg.NumDisparities,
		minD: e.cfg.MinDisparity,
		yLo:  half,
		yHi:  h - half,
	}
	g.xLo = half + max(0, g.minD+g.nd-1)
	g.xHi = w - half - max(0, -g.minD)
	return g
}

// Compute returns the disparity map of a rectified pair. Pixels outside the
// searchable region, and pixels failing the texture, uniqueness or speckle
// checks, hold the map's Invalid sentinel.
func (e *Engine) Compute(ctx context.Context, left, right *image.Gray) (*Map, error) {
	lb, rb := left.Bounds(), right.Bounds()
	if lb.Size() != rb.Size() {
		return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, lb.Size(), rb.Size())
	}

	g := e.geometry(lb.Dx(), lb.Dy())
	out := NewMap(g.w, g.h, g.minD)
	if g.xLo >= g.xHi || g.yLo >= g.yHi {
		diagf("[Disparity] %dx%d image too small for block %d and %d disparities", g.w, g.h, e.cfg.BlockSize, g.nd)
		return out, nil
	}

	lp := prefilterXSobel(left, e.cfg.PrefilterCap)
	rp := prefilterXSobel(right, e.cfg.PrefilterCap)

	workers := e.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	rows := g.yHi - g.yLo
	if workers > rows {
		workers = rows
	}
	bandHeight := (rows + workers - 1) / workers

	eg, ctx := errgroup.WithContext(ctx)
	for y0 := g.yLo; y0 < g.yHi; y0 += bandHeight {
		y0, y1 := y0, min(y0+bandHeight, g.yHi)
		eg.Go(func() error {
			return e.matchBand(ctx, g, lp, rp, y0, y1, out.Data)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if e.cfg.SpeckleWindowSize > 0 {
		removed := filterSpeckles(out, e.cfg.SpeckleWindowSize, e.cfg.SpeckleRange)
		tracef("[Disparity] speckle filter invalidated %d pixels", removed)
	}
	return out, nil
}

// prefilterXSobel returns the horizontal Sobel response clamped to
// [-clip, clip] and offset by clip, so flat regions map to clip. Border columns
// carry no gradient; border rows are replicated.
func prefilterXSobel(img *image.Gray, clip int) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	row := func(y int) []uint8 {
		y = min(max(y, 0), h-1)
		return img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:w]
	}
	for y := 0; y < h; y++ {
		r0, r1, r2 := row(y-1), row(y), row(y+1)
		dst := out[y*w : (y+1)*w]
		dst[0] = uint8(clip)
		dst[w-1] = uint8(clip)
		for x := 1; x < w-1; x++ {
			d := int(r0[x+1]) - int(r0[x-1]) +
				2*(int(r1[x+1])-int(r1[x-1])) +
				int(r2[x+1]) - int(r2[x-1])
			d = min(max(d, -clip), clip)
			dst[x] = uint8(d + clip)
		}
	}
	return out
}

// matchBand computes disparities for rows [y0, y1). Column cost sums are
// slid down the band one row at a time and block sums are slid along each
// row, so the cost per pixel is O(NumDisparities) regardless of block size.
func (e *Engine) matchBand(ctx context.Context, g geometry, lp, rp []uint8, y0, y1 int, out []float32) error {
	w, half, nd := g.w, g.half, g.nd
	capv := int32(e.cfg.PrefilterCap)

	// Columns touched by any window centred in [xLo, xHi).
	cLo, cHi := g.xLo-half, g.xHi+half

	colCost := make([]int32, nd*w)
	colTex := make([]int32, w)

	addRow := func(r int, sign int32) {
		lrow := lp[r*w : (r+1)*w]
		rrow := rp[r*w : (r+1)*w]
		for x := cLo; x < cHi; x++ {
			t := int32(lrow[x]) - capv
			if t < 0 {
				t = -t
			}
			colTex[x] += sign * t
		}
		for k := 0; k < nd; k++ {
			d := g.minD + k
			cc := colCost[k*w : (k+1)*w]
			for x := cLo; x < cHi; x++ {
				diff := int32(lrow[x]) - int32(rrow[x-d])
				if diff < 0 {
					diff = -diff
				}
				cc[x] += sign * diff
			}
		}
	}

	for r := y0 - half; r <= y0+half; r++ {
		addRow(r, 1)
	}

	width := g.xHi - g.xLo
	costs := make([]int32, width*nd)
	tex := make([]int32, width)

	for y := y0; y < y1; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if y > y0 {
			addRow(y+half, 1)
			addRow(y-half-1, -1)
		}

		slideSums(colTex, g.xLo, g.xHi, half, tex, 1, 0)
		for k := 0; k < nd; k++ {
			slideSums(colCost[k*w:(k+1)*w], g.xLo, g.xHi, half, costs, nd, k)
		}

		dst := out[y*w : (y+1)*w]
		for i := 0; i < width; i++ {
			if tex[i] < int32(e.cfg.TextureThreshold) {
				continue
			}
			if d, ok := e.selectDisparity(costs[i*nd : (i+1)*nd]); ok {
				dst[g.xLo+i] = d
			}
		}
	}
	return nil
}

// slideSums writes the sum of col[x-half..x+half] for x in [xLo, xHi) into
// dst[(x-xLo)*stride+offset].
func slideSums(col []int32, xLo, xHi, half int, dst []int32, stride, offset int) {
	var s int32
	for x := xLo - half; x <= xLo+half; x++ {
		s += col[x]
	}
	dst[offset] = s
	for x := xLo + 1; x < xHi; x++ {
		s += col[x+half] - col[x-half-1]
		dst[(x-xLo)*stride+offset] = s
	}
}

// selectDisparity picks the lowest-cost candidate, rejects it when another
// candidate outside its immediate neighbours comes within the uniqueness
// margin, and refines it to 1/16 pixel with a parabola through the
// neighbouring costs.
func (e *Engine) selectDisparity(cost []int32) (float32, bool) {
	nd := len(cost)
	best := 0
	for k := 1; k < nd; k++ {
		if cost[k] < cost[best] {
			best = k
		}
	}
	minCost := cost[best]

	if ratio := int32(e.cfg.UniquenessRatio); ratio > 0 {
		thresh := minCost + minCost*ratio/100
		for k := 0; k < nd; k++ {
			if (k < best-1 || k > best+1) && cost[k] <= thresh {
				return 0, false
			}
		}
	}

	d := float64(e.cfg.MinDisparity + best)
	if best > 0 && best < nd-1 {
		n, c, p := float64(cost[best-1]), float64(minCost), float64(cost[best+1])
		if denom := n + p - 2*c; denom > 0 {
			d += (n - p) / (2 * denom)
		}
	}
	return float32(math.Round(d*SubpixelScale) / SubpixelScale), true
}
