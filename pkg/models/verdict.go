package models

// Decision thresholds. These are part of the published report contract.
const (
	CompressionScoreThreshold = 0.1
	CloneKeypointThreshold    = 1000
	StrongManipulationTier    = 0.7
	PossibleManipulationTier  = 0.3
	MaxRegions                = 5
)

// CaptureMetadata holds the EXIF fields we surface. A valid image without EXIF
// has HasEmbeddedData=false and empty strings.
type CaptureMetadata struct {
	HasEmbeddedData  bool   `json:"has_exif"`
	Make             string `json:"make"`
	Model            string `json:"model"`
	CaptureTimestamp string `json:"datetime"`
	Software         string `json:"software"`
}

// CompressionSignal is the DCT recompression indicator.
type CompressionSignal struct {
	Score   float64 `json:"compression_score"`
	Flagged bool    `json:"compression_artifacts"`
}

// NewCompressionSignal derives Flagged from score.
func NewCompressionSignal(score float64) CompressionSignal {
	return CompressionSignal{Score: score, Flagged: score > CompressionScoreThreshold}
}

// CloneSignal is the keypoint density indicator.
type CloneSignal struct {
	KeypointCount int  `json:"cloning_score"`
	Flagged       bool `json:"suspicious_regions"`
}

// NewCloneSignal derives Flagged from the keypoint count.
func NewCloneSignal(count int) CloneSignal {
	return CloneSignal{KeypointCount: count, Flagged: count > CloneKeypointThreshold}
}

// BoundingBox is an axis-aligned box in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionStatistics are intensity statistics over one region crop.
type RegionStatistics struct {
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std"`
	Entropy float64 `json:"entropy"`
}

// RegionRecord describes one segmented region, in detection order.
type RegionRecord struct {
	ID          int              `json:"region_id"`
	BoundingBox BoundingBox      `json:"position"`
	Statistics  RegionStatistics `json:"statistics"`
}

// ClassifierScore is the probability mass assigned to the forged class.
type ClassifierScore struct {
	Probability float64 `json:"probability"`
}

// VerdictRecord is the merged outcome of every forensic signal for one image.
// A nil signal means its detector failed or, for the classifier, that no
// score is available; Errors carries the reason keyed by stage.
type VerdictRecord struct {
	SourceID        string             `json:"filename"`
	Timestamp       string             `json:"timestamp"`
	Metadata        *CaptureMetadata   `json:"metadata"`
	Compression     *CompressionSignal `json:"compression"`
	Clone           *CloneSignal       `json:"clone"`
	ClassifierScore *ClassifierScore   `json:"classifier_score"`
	Regions         []RegionRecord     `json:"regions"`
	Errors          map[string]string  `json:"errors,omitempty"`
}

// Probability returns the classifier probability and whether one exists.
func (v *VerdictRecord) Probability() (float64, bool) {
	if v == nil || v.ClassifierScore == nil {
		return 0, false
	}
	return v.ClassifierScore.Probability, true
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
}
