package analyzer

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/pkg/models"
)

// contourRegionAnalyzer segments regions with Canny edges and external
// contours, keeping the first MaxRegions contours in the order OpenCV
// returns them. Records are never reordered by size or statistic.
type contourRegionAnalyzer struct {
	opts AnalysisOptions
}

// NewRegionAnalyzer creates the contour based region statistics analyzer.
func NewRegionAnalyzer(opts AnalysisOptions) RegionAnalyzer {
	return &contourRegionAnalyzer{opts: opts.normalized()}
}

func (r *contourRegionAnalyzer) Analyze(h *imaging.Handle) ([]models.RegionRecord, error) {
	gray, err := h.Gray()
	if err != nil {
		return nil, apperrors.NewDecodeError(apperrors.StageRegions, err)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, r.opts.CannyLow, r.opts.CannyHigh)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	n := contours.Size()
	if n > r.opts.MaxRegions {
		n = r.opts.MaxRegions
	}

	regions := make([]models.RegionRecord, 0, n)
	for i := 0; i < n; i++ {
		rect := gocv.BoundingRect(contours.At(i))
		values, err := cropIntensities(gray, rect)
		if err != nil {
			return nil, apperrors.NewAnalysisError(apperrors.StageRegions, "region pixels unavailable", err)
		}

		mean, std := stat.PopMeanStdDev(values, nil)
		regions = append(regions, models.RegionRecord{
			ID: i,
			BoundingBox: models.BoundingBox{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			Statistics: models.RegionStatistics{
				Mean:    mean,
				StdDev:  std,
				Entropy: intensityEntropy(values, r.opts.EntropyOffset),
			},
		})
	}
	return regions, nil
}

// cropIntensities returns the pixels of rect in row-major order. The region
// view shares the parent's stride, so it is cloned into contiguous memory and
// read in one pass.
func cropIntensities(gray gocv.Mat, rect image.Rectangle) ([]float64, error) {
	roi := gray.Region(rect)
	defer roi.Close()
	crop := roi.Clone()
	defer crop.Close()

	data, err := crop.DataPtrUint8()
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return values, nil
}

// intensityEntropy computes -Σ v·log2(v+offset) over raw intensities. The
// offset keeps log2 finite on zero pixels. Values are not normalised to a
// histogram, so the result grows with region size; stored reports depend on
// this exact form.
func intensityEntropy(values []float64, offset float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v * math.Log2(v+offset)
	}
	return -sum
}
