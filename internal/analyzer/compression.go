package analyzer

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/pkg/models"
)

// dctCompressionAnalyzer scores recompression by the mean absolute DCT
// coefficient of the intensity image. The 0.1 threshold is a heuristic and is
// not calibrated against any dataset.
type dctCompressionAnalyzer struct{}

// NewCompressionAnalyzer creates the DCT compression artifact analyzer.
func NewCompressionAnalyzer() CompressionAnalyzer {
	return &dctCompressionAnalyzer{}
}

func (c *dctCompressionAnalyzer) Analyze(h *imaging.Handle) (models.CompressionSignal, error) {
	gray, err := h.Gray()
	if err != nil {
		return models.CompressionSignal{}, apperrors.NewDecodeError(apperrors.StageCompression, err)
	}

	score, err := meanAbsDCT(gray)
	if err != nil {
		return models.CompressionSignal{}, apperrors.NewAnalysisError(apperrors.StageCompression, "dct failed", err)
	}
	return models.NewCompressionSignal(score), nil
}

// meanAbsDCT transforms the whole matrix. OpenCV only implements even sized
// transforms, so an odd trailing row or column is dropped.
func meanAbsDCT(gray gocv.Mat) (float64, error) {
	rows, cols := evenExtent(gray.Rows()), evenExtent(gray.Cols())
	if rows == 1 && cols == 1 {
		// a 1x1 DCT is the identity
		return math.Abs(float64(gray.GetUCharAt(0, 0))), nil
	}

	region := gray.Region(image.Rect(0, 0, cols, rows))
	defer region.Close()

	floats := gocv.NewMat()
	defer floats.Close()
	region.ConvertTo(&floats, gocv.MatTypeCV32F)

	coeffs := gocv.NewMat()
	defer coeffs.Close()
	gocv.DCT(floats, &coeffs, gocv.DftForward)

	values, err := coeffs.DataPtrFloat32()
	if err != nil {
		return 0, fmt.Errorf("read coefficients: %w", err)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("empty coefficient matrix")
	}

	var sum float64
	for _, v := range values {
		sum += math.Abs(float64(v))
	}
	return sum / float64(len(values)), nil
}

// evenExtent keeps single rows and columns, which OpenCV treats as 1-D input.
func evenExtent(n int) int {
	if n > 1 && n%2 == 1 {
		return n - 1
	}
	return n
}
