package analyzer

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"
)

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// squaresImage draws n separated white squares on black, left to right.
func squaresImage(n int) *image.RGBA {
	const side, gap = 12, 12
	img := solidImage(gap+n*(side+gap), side+2*gap, color.Black)
	for i := 0; i < n; i++ {
		x := gap + i*(side+gap)
		draw.Draw(img, image.Rect(x, gap, x+side, gap+side), &image.Uniform{color.White}, image.Point{}, draw.Src)
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

// encodeJPEGWithEXIF writes a baseline JPEG and splices an APP1 segment
// holding IFD0 Make and Model tags right after SOI.
func encodeJPEGWithEXIF(t *testing.T, img image.Image, cameraMake, cameraModel string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	plain := buf.Bytes()

	makeVal := append([]byte(cameraMake), 0)
	modelVal := append([]byte(cameraModel), 0)

	var tiff bytes.Buffer
	be := binary.BigEndian
	tiff.WriteString("MM")
	binary.Write(&tiff, be, uint16(42))
	binary.Write(&tiff, be, uint32(8))

	const entries = 2
	dataStart := uint32(8 + 2 + entries*12 + 4)
	binary.Write(&tiff, be, uint16(entries))
	// Make (0x010F), ASCII
	binary.Write(&tiff, be, uint16(0x010F))
	binary.Write(&tiff, be, uint16(2))
	binary.Write(&tiff, be, uint32(len(makeVal)))
	binary.Write(&tiff, be, dataStart)
	// Model (0x0110), ASCII
	binary.Write(&tiff, be, uint16(0x0110))
	binary.Write(&tiff, be, uint16(2))
	binary.Write(&tiff, be, uint32(len(modelVal)))
	binary.Write(&tiff, be, dataStart+uint32(len(makeVal)))
	binary.Write(&tiff, be, uint32(0))
	tiff.Write(makeVal)
	tiff.Write(modelVal)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(plain[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, be, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(plain[2:])
	return out.Bytes()
}
