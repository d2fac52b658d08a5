package validation

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/unicode/norm"

	apperrors "go-image-forensics/internal/errors"
)

// sniffLength is how much of an upload is inspected for its content type.
const sniffLength = 1024

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// UploadValidator checks uploaded files before they are stored.
type UploadValidator struct {
	maxBytes        int64
	allowedPrefixes []string
}

// NewUploadValidator accepts any image/* upload up to maxBytes.
// A non-positive maxBytes disables the size check.
func NewUploadValidator(maxBytes int64) *UploadValidator {
	return &UploadValidator{
		maxBytes:        maxBytes,
		allowedPrefixes: []string{"image/"},
	}
}

// Upload is a validated upload.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Validate sniffs the content type from the leading bytes, requires a format
// the Go image decoders can read and returns the sanitized file name. The
// client's declared content type is ignored.
func (v *UploadValidator) Validate(filename string, data []byte) (*Upload, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperrors.NewValidationError("No selected file", nil)
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("File is empty", nil)
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return nil, ErrTooLarge(nil)
	}

	head := data
	if len(head) > sniffLength {
		head = head[:sniffLength]
	}
	mtype := mimetype.Detect(head)
	if !v.isAllowed(mtype.String()) {
		return nil, apperrors.NewValidationError("File must be an image", nil)
	}
	// metadata checks and report thumbnails decode with the registered Go
	// codecs; formats only OpenCV reads (JPEG 2000, Radiance HDR) stop here
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, apperrors.NewValidationError("Unsupported image format "+mtype.String(), err)
	}

	name := SanitizeFilename(filename)
	if name == "" {
		return nil, apperrors.NewValidationError("File name has no usable characters", nil)
	}

	return &Upload{Name: name, MimeType: mtype.String(), Data: data}, nil
}

func (v *UploadValidator) isAllowed(mime string) bool {
	for _, prefix := range v.allowedPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

// ErrTooLarge reports an upload over the size limit with status 413.
func ErrTooLarge(cause error) *apperrors.AppError {
	err := apperrors.NewValidationError("File exceeds the maximum upload size", cause)
	err.StatusCode = http.StatusRequestEntityTooLarge
	return err
}

// SanitizeFilename reduces a client supplied name to a safe flat file name:
// accents are folded to ASCII, path separators become spaces, whitespace runs
// become a single underscore and anything outside [A-Za-z0-9_.-] is dropped.
// Leading and trailing dots and underscores are trimmed, so "../../etc/passwd"
// becomes "etc_passwd".
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if unicode.Is(unicode.Mn, r) || r > unicode.MaxASCII {
			continue
		}
		if r == '/' || r == '\\' {
			r = ' '
		}
		b.WriteRune(r)
	}

	name = strings.Join(strings.Fields(b.String()), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
