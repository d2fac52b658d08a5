package analyzer

import (
	stderrors "errors"
	"time"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/pkg/models"
)

// TimestampLayout is the verdict and report timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// DetectorOutputs collects what each detector returned for one image.
// Classifier is nil whenever no score exists, with or without ClassifierErr.
type DetectorOutputs struct {
	Metadata    models.CaptureMetadata
	MetadataErr error

	Compression    models.CompressionSignal
	CompressionErr error

	Clone    models.CloneSignal
	CloneErr error

	Regions    []models.RegionRecord
	RegionsErr error

	Classifier    *models.ClassifierScore
	ClassifierErr error
}

// ResultAggregator merges detector outputs into a VerdictRecord.
type ResultAggregator struct {
	now func() time.Time
}

// NewResultAggregator creates an aggregator stamping records with the wall clock.
func NewResultAggregator() *ResultAggregator {
	return &ResultAggregator{now: time.Now}
}

// WithClock replaces the timestamp source.
func (a *ResultAggregator) WithClock(now func() time.Time) *ResultAggregator {
	return &ResultAggregator{now: now}
}

// Aggregate builds the verdict. Every detector failure becomes an entry in
// Errors and a nil field. The analysis fails as a whole only when metadata
// failed and none of the forgery signals produced a value.
func (a *ResultAggregator) Aggregate(id string, out DetectorOutputs) (*models.VerdictRecord, error) {
	record := &models.VerdictRecord{
		SourceID:  id,
		Timestamp: a.now().Format(TimestampLayout),
		Regions:   []models.RegionRecord{},
	}
	fieldErrors := make(map[string]string)

	if out.MetadataErr != nil {
		fieldErrors[apperrors.StageMetadata] = out.MetadataErr.Error()
	} else {
		md := out.Metadata
		record.Metadata = &md
	}

	forgerySignals := 0
	if out.CompressionErr != nil {
		fieldErrors[apperrors.StageCompression] = out.CompressionErr.Error()
	} else {
		cs := models.NewCompressionSignal(out.Compression.Score)
		record.Compression = &cs
		forgerySignals++
	}

	if out.CloneErr != nil {
		fieldErrors[apperrors.StageClone] = out.CloneErr.Error()
	} else {
		cl := models.NewCloneSignal(out.Clone.KeypointCount)
		record.Clone = &cl
		forgerySignals++
	}

	if out.RegionsErr != nil {
		fieldErrors[apperrors.StageRegions] = out.RegionsErr.Error()
	} else {
		if len(out.Regions) > models.MaxRegions {
			out.Regions = out.Regions[:models.MaxRegions]
		}
		record.Regions = append(record.Regions, out.Regions...)
		forgerySignals++
	}

	switch {
	case out.ClassifierErr != nil:
		fieldErrors[apperrors.StageClassifier] = out.ClassifierErr.Error()
	case out.Classifier != nil:
		score := *out.Classifier
		record.ClassifierScore = &score
		forgerySignals++
	}

	if out.MetadataErr != nil && forgerySignals == 0 {
		return nil, apperrors.NewAggregationError(
			[]string{apperrors.StageMetadata, apperrors.StageForgery},
			stderrors.Join(out.MetadataErr, out.CompressionErr, out.CloneErr, out.RegionsErr, out.ClassifierErr),
		)
	}

	if len(fieldErrors) > 0 {
		record.Errors = fieldErrors
	}
	record.Normalize()
	return record, nil
}
