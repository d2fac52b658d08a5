package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Thumbnail box in inches, and the raster density used to fill it.
const (
	thumbWidthIn  = 4.0
	thumbHeightIn = 3.0
	thumbDPI      = 150
)

// Thumbnail holds a PNG scaled to fit the thumbnail box and its placed size
// in points.
type Thumbnail struct {
	PNG          []byte
	WidthPt      float64
	HeightPt     float64
	SourceWidth  int
	SourceHeight int
}

// MakeThumbnail decodes the source image and scales it to fit 4x3 inches,
// keeping the aspect ratio. Images already smaller than the box are not
// enlarged in pixels, only placed at the box size.
func MakeThumbnail(data []byte) (*Thumbnail, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("source image is empty")
	}

	scale := min(thumbWidthIn/float64(b.Dx()), thumbHeightIn/float64(b.Dy()))
	widthIn, heightIn := float64(b.Dx())*scale, float64(b.Dy())*scale

	px := func(in float64) int { return max(1, int(in*thumbDPI+0.5)) }
	w, h := min(px(widthIn), b.Dx()), min(px(heightIn), b.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return &Thumbnail{
		PNG:          buf.Bytes(),
		WidthPt:      widthIn * 72,
		HeightPt:     heightIn * 72,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}, nil
}
