package export

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"path"

	"github.com/banshee-data/stereotrack/internal/vision/disparity"
	"github.com/banshee-data/stereotrack/internal/vision/frames"
)

// ImageWriter persists per-frame imagery under frames/: the normalized left
// and right views and a rendering of the disparity map. It implements
// pipeline.ImagerySink.
type ImageWriter struct {
	Output
}

type frameFile struct {
	name string
	img  *image.Gray
}

// WriteFrame implements pipeline.ImagerySink.
func (iw ImageWriter) WriteFrame(ctx context.Context, sessionID string, pair frames.Pair, dm *disparity.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := path.Join("frames", fmt.Sprintf("%06d", pair.Index))
	files := []frameFile{
		{prefix + "_left.png", pair.Left},
		{prefix + "_right.png", pair.Right},
	}
	if dm != nil {
		files = append(files, frameFile{prefix + "_disparity.png", DisparityImage(dm)})
	}
	for _, f := range files {
		if f.img == nil {
			continue
		}
		if err := iw.writeFile(sessionID, f.name, func(w io.Writer) error {
			return png.Encode(w, f.img)
		}); err != nil {
			return err
		}
	}
	tracef("[Image] session %s frame %d written", sessionID, pair.Index)
	return nil
}

// DisparityImage renders a disparity map as grayscale. Valid disparities are
// stretched over [1, 255] between the map's smallest and largest valid value;
// invalid pixels are black.
func DisparityImage(dm *disparity.Map) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, dm.Width, dm.Height))
	lo, hi, ok := dm.Range()
	if !ok {
		return img
	}
	span := hi - lo
	for y := 0; y < dm.Height; y++ {
		for x := 0; x < dm.Width; x++ {
			if !dm.Valid(x, y) {
				continue
			}
			v := uint8(255)
			if span > 0 {
				v = uint8(1 + (dm.At(x, y)-lo)/span*254 + 0.5)
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}
