package analyzer

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/pkg/models"
)

// exifMetadataExtractor reads camera fields from the EXIF block.
type exifMetadataExtractor struct{}

// NewMetadataExtractor creates the EXIF based metadata extractor.
func NewMetadataExtractor() MetadataExtractor {
	return &exifMetadataExtractor{}
}

// Extract validates the container header, then looks for EXIF. Missing or
// unreadable EXIF in a valid container is not an error.
func (e *exifMetadataExtractor) Extract(h *imaging.Handle) (models.CaptureMetadata, error) {
	data := h.Bytes()
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return models.CaptureMetadata{}, apperrors.NewMetadataParseError(err)
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return models.CaptureMetadata{}, nil
	}

	return models.CaptureMetadata{
		HasEmbeddedData:  true,
		Make:             exifString(x, exif.Make),
		Model:            exifString(x, exif.Model),
		CaptureTimestamp: exifString(x, exif.DateTime),
		Software:         exifString(x, exif.Software),
	}, nil
}

func exifString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimRight(s, "\x00 ")
}
