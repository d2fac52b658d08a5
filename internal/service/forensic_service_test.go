package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-forensics/internal/analyzer"
	"go-image-forensics/internal/classifier"
	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/observer"
	"go-image-forensics/internal/report"
	"go-image-forensics/internal/repository"
	"go-image-forensics/internal/storage"
	"go-image-forensics/pkg/models"
)

// stubAnalyzer returns a canned verdict, optionally after release is closed.
type stubAnalyzer struct {
	release chan struct{}
	err     error
	calls   int
	mu      sync.Mutex
}

func (a *stubAnalyzer) Analyze(id string, _ []byte) (*models.VerdictRecord, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.release != nil {
		<-a.release
	}
	if a.err != nil {
		return nil, a.err
	}
	cs := models.NewCompressionSignal(0.15)
	cl := models.NewCloneSignal(1200)
	p := models.ClassifierScore{Probability: 0.85}
	return &models.VerdictRecord{
		SourceID:        id,
		Timestamp:       "2024-03-09 14:05:07",
		Metadata:        &models.CaptureMetadata{},
		Compression:     &cs,
		Clone:           &cl,
		ClassifierScore: &p,
		Regions:         []models.RegionRecord{},
	}, nil
}

func (a *stubAnalyzer) Close() error { return nil }

type recorder struct {
	mu     sync.Mutex
	events []observer.ForensicEvent
}

func (r *recorder) OnEvent(_ context.Context, e observer.ForensicEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) GetObserverName() string { return "recorder" }

func (r *recorder) types() []observer.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observer.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	svc       ForensicService
	results   repository.VerdictRepository
	images    *storage.LocalStore
	reports   *storage.LocalStore
	events    *observer.EventPublisher
	recording *recorder
}

func newFixture(t *testing.T, a analyzer.ForensicAnalyzer, timeout time.Duration) *fixture {
	t.Helper()
	images, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	reports, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	events := observer.NewEventPublisher()
	rec := &recorder{}
	events.Subscribe(rec)

	results := repository.NewMemoryRepository(0)
	svc := NewForensicService(Dependencies{
		Analyzer:        a,
		Results:         results,
		Images:          images,
		Renderer:        report.NewRenderer(reports),
		Events:          events,
		AnalysisTimeout: timeout,
	})
	return &fixture{svc: svc, results: results, images: images, reports: reports, events: events, recording: rec}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessUpload_StoresImageAndVerdict(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	ctx := context.Background()
	data := testPNG(t)

	v, err := f.svc.ProcessUpload(ctx, "photo.png", data)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", v.SourceID)

	stored, err := f.svc.GetResult(ctx, "photo.png")
	require.NoError(t, err)
	assert.Equal(t, v, stored)

	img, err := f.svc.GetImage(ctx, "photo.png")
	require.NoError(t, err)
	assert.Equal(t, data, img)

	f.events.Wait()
	assert.ElementsMatch(t, []observer.EventType{observer.AnalysisStarted, observer.AnalysisCompleted}, f.recording.types())
}

func TestProcessUpload_InvalidName(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	_, err := f.svc.ProcessUpload(context.Background(), "../etc/passwd", []byte("x"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestAnalyze_Validation(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	_, err := f.svc.Analyze(context.Background(), "", []byte("x"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	_, err = f.svc.Analyze(context.Background(), "a.png", nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestAnalyze_TimeoutDiscardsLateResult(t *testing.T) {
	stub := &stubAnalyzer{release: make(chan struct{})}
	f := newFixture(t, stub, 20*time.Millisecond)

	_, err := f.svc.Analyze(context.Background(), "slow.png", []byte("x"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.GetStatusCode(err))

	close(stub.release)
	_, err = f.svc.GetResult(context.Background(), "slow.png")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestAnalyze_CallerCancellation(t *testing.T) {
	stub := &stubAnalyzer{release: make(chan struct{})}
	defer close(stub.release)
	f := newFixture(t, stub, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Analyze(ctx, "a.png", []byte("x"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
}

func TestAnalyze_AggregationFailureIsNotStored(t *testing.T) {
	aggErr := apperrors.NewAggregationError([]string{"metadata", "forgery_signals"}, errors.New("all failed"))
	f := newFixture(t, &stubAnalyzer{err: aggErr}, 0)

	_, err := f.svc.Analyze(context.Background(), "bad.png", []byte("x"))
	require.ErrorIs(t, err, aggErr)

	_, err = f.results.Get(context.Background(), "bad.png")
	assert.ErrorIs(t, err, repository.ErrVerdictNotFound)

	f.events.Wait()
	assert.Contains(t, f.recording.types(), observer.AnalysisFailed)
}

func TestGetResult_NotFound(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	_, err := f.svc.GetResult(context.Background(), "nothing.png")
	assert.Equal(t, http.StatusNotFound, apperrors.GetStatusCode(err))

	_, err = f.svc.GetImage(context.Background(), "nothing.png")
	assert.Equal(t, http.StatusNotFound, apperrors.GetStatusCode(err))
}

func TestGenerateReport(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	ctx := context.Background()
	_, err := f.svc.ProcessUpload(ctx, "photo.png", testPNG(t))
	require.NoError(t, err)

	res, err := f.svc.GenerateReport(ctx, "photo.png")
	require.NoError(t, err)
	assert.Equal(t, "report_photo.pdf", res.Name)
	assert.GreaterOrEqual(t, res.Pages, 1)
	assert.Contains(t, res.Document.Conclusion, "strong signs of manipulation")

	stored, err := f.reports.Open(ctx, "report_photo.pdf")
	require.NoError(t, err)
	assert.Equal(t, res.PDF, stored)

	f.events.Wait()
	assert.Contains(t, f.recording.types(), observer.ReportRendered)
}

func TestGenerateReport_MissingInputs(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	ctx := context.Background()

	_, err := f.svc.GenerateReport(ctx, "unknown.png")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRender))
	assert.Equal(t, http.StatusNotFound, apperrors.GetStatusCode(err))

	// verdict present, image gone
	_, err = f.svc.Analyze(ctx, "orphan.png", []byte("x"))
	require.NoError(t, err)
	_, err = f.svc.GenerateReport(ctx, "orphan.png")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRender))
	assert.Equal(t, http.StatusNotFound, apperrors.GetStatusCode(err))

	f.events.Wait()
	assert.Contains(t, f.recording.types(), observer.ReportFailed)
}

func TestGenerateReport_ConcurrentRequests(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, 0)
	ctx := context.Background()
	_, err := f.svc.ProcessUpload(ctx, "photo.png", testPNG(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*report.Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.GenerateReport(ctx, "photo.png")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "report_photo.pdf", res.Name)
	}
}

// gatedImages holds Get until release is closed.
type gatedImages struct {
	storage.ImageStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedImages) Get(ctx context.Context, name string) ([]byte, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.ImageStore.Get(ctx, name)
}

func TestGenerateReport_CancelledCallerDoesNotFailSharedRender(t *testing.T) {
	images, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	reports, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	gate := &gatedImages{ImageStore: images, entered: make(chan struct{}), release: make(chan struct{})}

	events := observer.NewEventPublisher()
	rec := &recorder{}
	events.Subscribe(rec)
	svc := NewForensicService(Dependencies{
		Analyzer: &stubAnalyzer{},
		Results:  repository.NewMemoryRepository(0),
		Images:   gate,
		Renderer: report.NewRenderer(reports),
		Events:   events,
	})
	_, err = svc.ProcessUpload(context.Background(), "photo.png", testPNG(t))
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GenerateReport(firstCtx, "photo.png")
		firstErr <- err
	}()
	<-gate.entered

	type outcome struct {
		res *report.Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.GenerateReport(context.Background(), "photo.png")
		second <- outcome{res, err}
	}()

	cancel()
	err = <-firstErr
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
	assert.ErrorIs(t, err, context.Canceled)

	// give the second caller time to join the in-flight render
	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "report_photo.pdf", got.res.Name)
	assert.True(t, bytes.HasPrefix(got.res.PDF, []byte("%PDF-")))

	stored, err := reports.Open(context.Background(), "report_photo.pdf")
	require.NoError(t, err)
	assert.Equal(t, got.res.PDF, stored)

	events.Wait()
	assert.Contains(t, rec.types(), observer.ReportRendered)
	assert.NotContains(t, rec.types(), observer.ReportFailed)
}

// flakyReports fails every Save once fail is set.
type flakyReports struct {
	*storage.LocalStore
	fail atomic.Bool
}

func (f *flakyReports) Save(ctx context.Context, name string, data []byte) (string, error) {
	if f.fail.Load() {
		return "", errors.New("disk full")
	}
	return f.LocalStore.Save(ctx, name, data)
}

func TestGenerateReport_ServesStoredReportWhenRenderFails(t *testing.T) {
	images, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	reports := &flakyReports{LocalStore: local}

	events := observer.NewEventPublisher()
	rec := &recorder{}
	events.Subscribe(rec)
	svc := NewForensicService(Dependencies{
		Analyzer: &stubAnalyzer{},
		Results:  repository.NewMemoryRepository(0),
		Images:   images,
		Renderer: report.NewRenderer(reports),
		Events:   events,
	})

	ctx := context.Background()
	_, err = svc.ProcessUpload(ctx, "photo.png", testPNG(t))
	require.NoError(t, err)
	first, err := svc.GenerateReport(ctx, "photo.png")
	require.NoError(t, err)

	reports.fail.Store(true)
	again, err := svc.GenerateReport(ctx, "photo.png")
	require.NoError(t, err)
	assert.Equal(t, first.PDF, again.PDF)
	assert.Equal(t, first.Pages, again.Pages)

	// nothing stored to fall back to
	_, err = svc.ProcessUpload(ctx, "other.png", testPNG(t))
	require.NoError(t, err)
	_, err = svc.GenerateReport(ctx, "other.png")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.GetStatusCode(err))

	events.Wait()
	assert.Contains(t, rec.types(), observer.ReportFailed)
}

// Classifier load failed at startup: every other field is still produced and
// the report shows the ML confidence as unavailable.
func TestClassifierUnavailableEndToEnd(t *testing.T) {
	a := analyzer.NewForensicAnalyzer(classifier.Unavailable(errors.New("model file missing")), analyzer.DefaultOptions())
	defer a.Close()
	f := newFixture(t, a, 0)
	ctx := context.Background()

	for _, name := range []string{"one.png", "two.png"} {
		v, err := f.svc.ProcessUpload(ctx, name, testPNG(t))
		require.NoError(t, err)

		assert.Nil(t, v.ClassifierScore)
		assert.NotNil(t, v.Metadata)
		assert.NotNil(t, v.Compression)
		assert.NotNil(t, v.Clone)
		assert.NotNil(t, v.Regions)
		assert.Len(t, v.Errors, 1)
		assert.Contains(t, v.Errors, apperrors.StageClassifier)
	}

	res, err := f.svc.GenerateReport(ctx, "one.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"ML Confidence", "Not available"}, res.Document.Forgery.Rows[0])
	assert.Contains(t, res.Document.Conclusion, "No significant signs of manipulation")

	f.events.Wait()
	var classifierFailures int
	f.recording.mu.Lock()
	for _, e := range f.recording.events {
		if e.EventType == observer.DetectorFailed && e.Stage == apperrors.StageClassifier {
			classifierFailures++
		}
	}
	f.recording.mu.Unlock()
	assert.Equal(t, 2, classifierFailures)
}
