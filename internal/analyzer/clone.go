package analyzer

import (
	"gocv.io/x/gocv"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/pkg/models"
)

// siftCloneDetector counts SIFT keypoints on the intensity image.
//
// Keypoint density is a proxy for textured or duplicated content. It does not
// match descriptors or check spatial offsets, so it is not a copy-move
// detector and will flag any busy image.
type siftCloneDetector struct {
	newSIFT func() keypointDetector
}

// keypointDetector is the part of gocv.SIFT the detector uses.
type keypointDetector interface {
	Detect(src gocv.Mat) []gocv.KeyPoint
	Close() error
}

// NewCloneDetector creates the keypoint density clone detector.
func NewCloneDetector() CloneDetector {
	return &siftCloneDetector{newSIFT: func() keypointDetector {
		s := gocv.NewSIFT()
		return &s
	}}
}

// Detect builds a SIFT instance per call: it holds native state, is not safe
// to share between goroutines and must be closed explicitly.
func (d *siftCloneDetector) Detect(h *imaging.Handle) (models.CloneSignal, error) {
	gray, err := h.Gray()
	if err != nil {
		return models.CloneSignal{}, apperrors.NewDecodeError(apperrors.StageClone, err)
	}

	sift := d.newSIFT()
	defer sift.Close()

	keypoints := sift.Detect(gray)
	return models.NewCloneSignal(len(keypoints)), nil
}
