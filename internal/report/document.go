// Package report turns a stored verdict and its source image into the PDF
// report.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-image-forensics/pkg/models"
)

const (
	Title           = "Image Forgery Detection Report"
	TimestampLayout = "2006-01-02 15:04:05"

	notApplicable = "N/A"
	notAvailable  = "Not available"
)

// Table is one captioned grid. ColWidths are in inches.
type Table struct {
	Heading   string
	Header    []string
	Rows      [][]string
	ColWidths []float64
}

// Document is the fixed report layout. It is a pure function of the verdict
// and the generation time, so two renders of the same verdict differ only in
// GeneratedAt.
type Document struct {
	Title       string
	GeneratedAt string
	Metadata    Table
	Forgery     Table
	Regions     Table
	Conclusion  string
}

// BuildDocument lays out the report for a verdict.
func BuildDocument(v *models.VerdictRecord, generatedAt time.Time) Document {
	return Document{
		Title:       Title,
		GeneratedAt: generatedAt.Format(TimestampLayout),
		Metadata:    metadataTable(v.Metadata),
		Forgery:     forgeryTable(v),
		Regions:     regionTable(v.Regions),
		Conclusion:  Conclusion(v),
	}
}

func metadataTable(md *models.CaptureMetadata) Table {
	t := Table{
		Heading:   "Metadata Analysis",
		Header:    []string{"Property", "Value"},
		ColWidths: []float64{2, 3},
	}
	if md == nil {
		t.Rows = [][]string{
			{"Has EXIF", notApplicable},
			{"Camera Make", notApplicable},
			{"Camera Model", notApplicable},
			{"Date/Time", notApplicable},
			{"Software", notApplicable},
		}
		return t
	}
	t.Rows = [][]string{
		{"Has EXIF", formatBool(md.HasEmbeddedData)},
		{"Camera Make", md.Make},
		{"Camera Model", md.Model},
		{"Date/Time", md.CaptureTimestamp},
		{"Software", md.Software},
	}
	return t
}

func forgeryTable(v *models.VerdictRecord) Table {
	confidence := notAvailable
	if p, ok := v.Probability(); ok {
		confidence = strconv.FormatFloat(p, 'f', -1, 64)
	}

	compressionFlag, compressionScore := notApplicable, notApplicable
	if v.Compression != nil {
		compressionFlag = formatBool(v.Compression.Flagged)
		compressionScore = fmt.Sprintf("%.4f", v.Compression.Score)
	}
	cloneFlag, keypoints := notApplicable, notApplicable
	if v.Clone != nil {
		cloneFlag = formatBool(v.Clone.Flagged)
		keypoints = strconv.Itoa(v.Clone.KeypointCount)
	}

	return Table{
		Heading: "Forgery Detection Results",
		Header:  []string{"Analysis Type", "Result"},
		Rows: [][]string{
			{"ML Confidence", confidence},
			{"Compression Artifacts", compressionFlag},
			{"Suspicious Regions", cloneFlag},
			{"Compression Score", compressionScore},
			{"Keypoint Count", keypoints},
		},
		ColWidths: []float64{2, 3},
	}
}

func regionTable(regions []models.RegionRecord) Table {
	t := Table{
		Heading:   "Region Analysis",
		Header:    []string{"Region ID", "Position", "Mean", "Std Dev", "Entropy"},
		Rows:      make([][]string, 0, len(regions)),
		ColWidths: []float64{0.8, 1.5, 1, 1, 1.2},
	}
	for _, r := range regions {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.ID),
			fmt.Sprintf("(%d, %d)", r.BoundingBox.X, r.BoundingBox.Y),
			fmt.Sprintf("%.2f", r.Statistics.Mean),
			fmt.Sprintf("%.2f", r.Statistics.StdDev),
			fmt.Sprintf("%.2f", r.Statistics.Entropy),
		})
	}
	return t
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Conclusion phrases, in the order they are appended.
const (
	conclusionPrefix      = "Based on the analysis: "
	phraseStrong          = "The image shows strong signs of manipulation. "
	phrasePossible        = "The image may have been manipulated. "
	phraseNone            = "No significant signs of manipulation were detected. "
	phraseCompression     = "Compression artifacts were detected, suggesting possible editing. "
	phraseSuspiciousClone = "Suspicious regions were identified that may indicate tampering. "
)

// Conclusion derives the prose verdict. A missing classifier score selects the
// lowest tier; the forgery table shows it as not available rather than zero.
func Conclusion(v *models.VerdictRecord) string {
	var b strings.Builder
	b.WriteString(conclusionPrefix)

	p, ok := v.Probability()
	switch {
	case ok && p > models.StrongManipulationTier:
		b.WriteString(phraseStrong)
	case ok && p > models.PossibleManipulationTier:
		b.WriteString(phrasePossible)
	default:
		b.WriteString(phraseNone)
	}

	if v.Compression != nil && v.Compression.Flagged {
		b.WriteString(phraseCompression)
	}
	if v.Clone != nil && v.Clone.Flagged {
		b.WriteString(phraseSuspiciousClone)
	}
	return b.String()
}
