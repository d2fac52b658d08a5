// Package imaging owns the decoded pixel data shared by the forensic detectors.
package imaging

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when the bytes decode to an empty matrix.
var ErrEmptyImage = errors.New("decoded image is empty")

// Handle is an immutable view of one uploaded image: the source bytes plus
// the decoded BGR and intensity matrices. Decoding happens once, on first use,
// and every detector reads the same matrices. Detectors must not write to the
// matrices returned by Color or Gray.
type Handle struct {
	id   string
	data []byte

	once  sync.Once
	color gocv.Mat
	gray  gocv.Mat
	err   error

	closeOnce sync.Once
}

// Open wraps the raw bytes. It never fails; decode errors surface from Color and Gray.
func Open(id string, data []byte) *Handle {
	return &Handle{id: id, data: data}
}

// ID returns the caller supplied identifier.
func (h *Handle) ID() string { return h.id }

// Bytes returns the source byte stream.
func (h *Handle) Bytes() []byte { return h.data }

func (h *Handle) decode() {
	h.once.Do(func() {
		if len(h.data) == 0 {
			h.err = ErrEmptyImage
			return
		}
		img, err := gocv.IMDecode(h.data, gocv.IMReadColor)
		if err != nil {
			h.err = fmt.Errorf("imdecode: %w", err)
			return
		}
		if img.Empty() {
			img.Close()
			h.err = ErrEmptyImage
			return
		}
		gray := gocv.NewMat()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
		h.color = img
		h.gray = gray
	})
}

// Color returns the decoded 8-bit BGR matrix.
func (h *Handle) Color() (gocv.Mat, error) {
	h.decode()
	return h.color, h.err
}

// Gray returns the decoded 8-bit single channel intensity matrix.
func (h *Handle) Gray() (gocv.Mat, error) {
	h.decode()
	return h.gray, h.err
}

// Close releases the native matrices. It is safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		// block until a concurrent decode has finished so nothing leaks
		h.once.Do(func() { h.err = errors.New("handle closed before decode") })
		if h.err == nil {
			h.color.Close()
			h.gray.Close()
		}
	})
	return nil
}
