package analyzer

import (
	"errors"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/pkg/models"
)

type fakeMetadata struct {
	md  models.CaptureMetadata
	err error
}

func (f fakeMetadata) Extract(*imaging.Handle) (models.CaptureMetadata, error) { return f.md, f.err }

type fakeCompression struct {
	score float64
	err   error
}

func (f fakeCompression) Analyze(*imaging.Handle) (models.CompressionSignal, error) {
	return models.NewCompressionSignal(f.score), f.err
}

type fakeClone struct {
	count int
	err   error
	calls *atomic.Int32
}

func (f fakeClone) Detect(*imaging.Handle) (models.CloneSignal, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	return models.NewCloneSignal(f.count), f.err
}

type fakeRegions struct {
	regions []models.RegionRecord
	panics  bool
}

func (f fakeRegions) Analyze(*imaging.Handle) ([]models.RegionRecord, error) {
	if f.panics {
		panic("contour buffer overrun")
	}
	return f.regions, nil
}

type fakeClassifier struct {
	score *models.ClassifierScore
	err   error
}

func (f fakeClassifier) Score(*imaging.Handle) (*models.ClassifierScore, error) { return f.score, f.err }

func fakeDetectors() Detectors {
	return Detectors{
		Metadata:    fakeMetadata{},
		Compression: fakeCompression{score: 0.05},
		Clone:       fakeClone{count: 500},
		Regions:     fakeRegions{},
		Classifier:  fakeClassifier{},
	}
}

func TestCoreAnalyzer_AllDetectorsRun(t *testing.T) {
	d := fakeDetectors()
	d.Classifier = fakeClassifier{score: &models.ClassifierScore{Probability: 0.4}}
	a := NewForensicAnalyzerWithDetectors(d, DefaultOptions().WithMaxWorkers(2))
	defer a.Close()

	record, err := a.Analyze("photo.png", []byte("bytes are not inspected by fakes"))
	require.NoError(t, err)
	assert.Equal(t, "photo.png", record.SourceID)
	assert.NotNil(t, record.Metadata)
	assert.Equal(t, 0.05, record.Compression.Score)
	assert.Equal(t, 500, record.Clone.KeypointCount)
	assert.Empty(t, record.Regions)
	assert.Equal(t, 0.4, record.ClassifierScore.Probability)
	assert.Empty(t, record.Errors)
}

func TestCoreAnalyzer_PanicBecomesFieldError(t *testing.T) {
	d := fakeDetectors()
	d.Regions = fakeRegions{panics: true}
	a := NewForensicAnalyzerWithDetectors(d, DefaultOptions())
	defer a.Close()

	record, err := a.Analyze("photo.png", nil)
	require.NoError(t, err)
	assert.Contains(t, record.Errors[apperrors.StageRegions], "detector panicked")
	assert.NotNil(t, record.Compression)
}

func TestCoreAnalyzer_ClassifierUnavailable(t *testing.T) {
	d := fakeDetectors()
	d.Classifier = fakeClassifier{
		score: &models.ClassifierScore{Probability: 0.9},
		err:   apperrors.NewClassifierUnavailableError("model not loaded", nil),
	}
	a := NewForensicAnalyzerWithDetectors(d, DefaultOptions())
	defer a.Close()

	record, err := a.Analyze("photo.png", nil)
	require.NoError(t, err)
	assert.Nil(t, record.ClassifierScore, "score returned with an error is dropped")
	assert.Contains(t, record.Errors, apperrors.StageClassifier)
	assert.NotNil(t, record.Metadata)
	assert.NotNil(t, record.Compression)
	assert.NotNil(t, record.Clone)
}

func TestCoreAnalyzer_AggregationFailure(t *testing.T) {
	boom := errors.New("boom")
	a := NewForensicAnalyzerWithDetectors(Detectors{
		Metadata:    fakeMetadata{err: boom},
		Compression: fakeCompression{err: boom},
		Clone:       fakeClone{err: boom},
		Regions:     fakeRegions{panics: true},
	}, DefaultOptions())
	defer a.Close()

	record, err := a.Analyze("photo.png", nil)
	assert.Nil(t, record)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAggregation))
}

func TestCoreAnalyzer_RunsInlineAfterClose(t *testing.T) {
	var calls atomic.Int32
	d := fakeDetectors()
	d.Clone = fakeClone{count: 3, calls: &calls}
	a := NewForensicAnalyzerWithDetectors(d, DefaultOptions())
	require.NoError(t, a.Close())

	record, err := a.Analyze("late.png", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, record.Clone.KeypointCount)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoreAnalyzer_RealDetectors(t *testing.T) {
	a := NewForensicAnalyzer(nil, DefaultOptions())
	defer a.Close()

	record, err := a.Analyze("squares.png", encodePNG(t, squaresImage(3)))
	require.NoError(t, err)
	require.NotNil(t, record.Metadata)
	assert.False(t, record.Metadata.HasEmbeddedData)
	require.NotNil(t, record.Compression)
	require.NotNil(t, record.Clone)
	assert.Len(t, record.Regions, 3)
	assert.Nil(t, record.ClassifierScore)
	assert.Empty(t, record.Errors)
}

func TestCoreAnalyzer_UndecodableImage(t *testing.T) {
	a := NewForensicAnalyzer(nil, DefaultOptions())
	defer a.Close()

	_, err := a.Analyze("garbage.jpg", []byte("garbage"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAggregation))
}

func TestCoreAnalyzer_ConcurrentAnalyses(t *testing.T) {
	a := NewForensicAnalyzer(nil, DefaultOptions().WithMaxWorkers(2))
	defer a.Close()

	data := encodePNG(t, solidImage(32, 32, color.Gray{Y: 40}))
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := a.Analyze("shared.png", data)
			errs <- err
		}()
	}
	for i := 0; i < 6; i++ {
		assert.NoError(t, <-errs)
	}
}
