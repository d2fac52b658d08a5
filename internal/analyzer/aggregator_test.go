package analyzer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/pkg/models"
)

var fixedClock = func() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

func completeOutputs() DetectorOutputs {
	return DetectorOutputs{
		Metadata:    models.CaptureMetadata{HasEmbeddedData: true, Make: "Canon"},
		Compression: models.NewCompressionSignal(0.15),
		Clone:       models.NewCloneSignal(1200),
		Regions: []models.RegionRecord{
			{ID: 0, BoundingBox: models.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}},
		},
		Classifier: &models.ClassifierScore{Probability: 0.85},
	}
}

func TestAggregate_Complete(t *testing.T) {
	record, err := NewResultAggregator().WithClock(fixedClock).Aggregate("photo.jpg", completeOutputs())
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", record.SourceID)
	assert.Equal(t, "2024-03-09 14:05:07", record.Timestamp)
	require.NotNil(t, record.Metadata)
	assert.Equal(t, "Canon", record.Metadata.Make)
	require.NotNil(t, record.Compression)
	assert.True(t, record.Compression.Flagged)
	require.NotNil(t, record.Clone)
	assert.True(t, record.Clone.Flagged)
	assert.Len(t, record.Regions, 1)
	p, ok := record.Probability()
	assert.True(t, ok)
	assert.Equal(t, 0.85, p)
	assert.Nil(t, record.Errors)
}

func TestAggregate_SingleFailure(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		stage string
		fail  func(*DetectorOutputs)
		check func(*testing.T, *models.VerdictRecord)
	}{
		{apperrors.StageMetadata, func(o *DetectorOutputs) { o.MetadataErr = boom },
			func(t *testing.T, r *models.VerdictRecord) { assert.Nil(t, r.Metadata) }},
		{apperrors.StageCompression, func(o *DetectorOutputs) { o.CompressionErr = boom },
			func(t *testing.T, r *models.VerdictRecord) { assert.Nil(t, r.Compression) }},
		{apperrors.StageClone, func(o *DetectorOutputs) { o.CloneErr = boom },
			func(t *testing.T, r *models.VerdictRecord) { assert.Nil(t, r.Clone) }},
		{apperrors.StageRegions, func(o *DetectorOutputs) { o.RegionsErr = boom },
			func(t *testing.T, r *models.VerdictRecord) {
				assert.NotNil(t, r.Regions)
				assert.Empty(t, r.Regions)
			}},
		{apperrors.StageClassifier, func(o *DetectorOutputs) { o.Classifier = nil; o.ClassifierErr = boom },
			func(t *testing.T, r *models.VerdictRecord) { assert.Nil(t, r.ClassifierScore) }},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			out := completeOutputs()
			tt.fail(&out)

			record, err := NewResultAggregator().Aggregate("photo.jpg", out)
			require.NoError(t, err)
			tt.check(t, record)

			require.Len(t, record.Errors, 1)
			assert.Contains(t, record.Errors[tt.stage], "boom")

			populated := 0
			if record.Metadata != nil {
				populated++
			}
			if record.Compression != nil {
				populated++
			}
			if record.Clone != nil {
				populated++
			}
			if len(record.Regions) > 0 {
				populated++
			}
			if record.ClassifierScore != nil {
				populated++
			}
			assert.Equal(t, 4, populated, "every other field stays populated")
		})
	}
}

func TestAggregate_MandatoryGroupsFail(t *testing.T) {
	boom := errors.New("boom")
	out := DetectorOutputs{
		MetadataErr:    apperrors.NewMetadataParseError(boom),
		CompressionErr: apperrors.NewDecodeError(apperrors.StageCompression, boom),
		CloneErr:       apperrors.NewDecodeError(apperrors.StageClone, boom),
		RegionsErr:     apperrors.NewDecodeError(apperrors.StageRegions, boom),
	}

	record, err := NewResultAggregator().Aggregate("broken.jpg", out)
	assert.Nil(t, record)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAggregation))
	assert.Equal(t, "metadata+forgery_signals", apperrors.StageOf(err))
	assert.ErrorIs(t, err, boom)
}

func TestAggregate_MetadataFailureWithOneForgerySignal(t *testing.T) {
	boom := errors.New("boom")
	out := DetectorOutputs{
		MetadataErr:    boom,
		CompressionErr: boom,
		CloneErr:       boom,
		RegionsErr:     boom,
		Classifier:     &models.ClassifierScore{Probability: 0.2},
	}

	record, err := NewResultAggregator().Aggregate("partial.jpg", out)
	require.NoError(t, err)
	assert.Len(t, record.Errors, 4)
	assert.NotNil(t, record.ClassifierScore)
}

func TestAggregate_ForgerySignalsFailButMetadataPresent(t *testing.T) {
	boom := errors.New("boom")
	out := DetectorOutputs{
		Metadata:       models.CaptureMetadata{},
		CompressionErr: boom,
		CloneErr:       boom,
		RegionsErr:     boom,
		ClassifierErr:  boom,
	}

	record, err := NewResultAggregator().Aggregate("meta-only.jpg", out)
	require.NoError(t, err)
	assert.NotNil(t, record.Metadata)
	assert.Len(t, record.Errors, 4)
}

func TestAggregate_NormalizesOutput(t *testing.T) {
	out := completeOutputs()
	out.Compression = models.CompressionSignal{Score: math.NaN()}
	out.Regions = make([]models.RegionRecord, 7)
	out.Regions[0].Statistics.Entropy = math.Inf(-1)
	out.Classifier = &models.ClassifierScore{Probability: 1.0000001}

	record, err := NewResultAggregator().Aggregate("odd.jpg", out)
	require.NoError(t, err)

	assert.Equal(t, 0.0, record.Compression.Score)
	assert.False(t, record.Compression.Flagged)
	assert.Len(t, record.Regions, models.MaxRegions)
	assert.Equal(t, 0.0, record.Regions[0].Statistics.Entropy)
	assert.Equal(t, 1.0, record.ClassifierScore.Probability)
}

func TestAggregate_FlagsRecomputedFromScores(t *testing.T) {
	out := completeOutputs()
	out.Compression = models.CompressionSignal{Score: 0.1, Flagged: true}
	out.Clone = models.CloneSignal{KeypointCount: 1000, Flagged: true}

	record, err := NewResultAggregator().Aggregate("edge.jpg", out)
	require.NoError(t, err)
	assert.False(t, record.Compression.Flagged)
	assert.False(t, record.Clone.Flagged)
}
