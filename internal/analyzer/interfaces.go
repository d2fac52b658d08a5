package analyzer

import (
	"go-image-forensics/internal/imaging"
	"go-image-forensics/pkg/models"
)

// ForensicAnalyzer runs every detector over one image and merges the results.
type ForensicAnalyzer interface {
	Analyze(id string, data []byte) (*models.VerdictRecord, error)

	// Lifecycle management
	Close() error
}

// MetadataExtractor reads capture metadata embedded in the image container
type MetadataExtractor interface {
	Extract(h *imaging.Handle) (models.CaptureMetadata, error)
}

// CompressionAnalyzer scores recompression artifacts
type CompressionAnalyzer interface {
	Analyze(h *imaging.Handle) (models.CompressionSignal, error)
}

// CloneDetector scores duplicated-region likelihood
type CloneDetector interface {
	Detect(h *imaging.Handle) (models.CloneSignal, error)
}

// RegionAnalyzer segments salient regions and computes their statistics
type RegionAnalyzer interface {
	Analyze(h *imaging.Handle) ([]models.RegionRecord, error)
}

// Classifier returns the forged-class probability, or nil when no score is
// available. A non-nil error always comes with a nil score.
type Classifier interface {
	Score(h *imaging.Handle) (*models.ClassifierScore, error)
}

// Detectors groups the five signal sources used by the core analyzer.
type Detectors struct {
	Metadata    MetadataExtractor
	Compression CompressionAnalyzer
	Clone       CloneDetector
	Regions     RegionAnalyzer
	Classifier  Classifier
}
