package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"go-image-forensics/internal/analyzer"
	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/logger"
	"go-image-forensics/internal/observer"
	"go-image-forensics/internal/report"
	"go-image-forensics/internal/repository"
	"go-image-forensics/internal/storage"
	"go-image-forensics/pkg/models"
)

// ForensicService is the application boundary: it analyses uploads, keeps
// their verdicts and renders reports on demand.
type ForensicService interface {
	// ProcessUpload stores the image under name and analyses it.
	ProcessUpload(ctx context.Context, name string, data []byte) (*models.VerdictRecord, error)

	// Analyze runs the detectors and stores the verdict under id.
	Analyze(ctx context.Context, id string, data []byte) (*models.VerdictRecord, error)

	// GetResult returns the stored verdict for id.
	GetResult(ctx context.Context, id string) (*models.VerdictRecord, error)

	// GetImage returns the stored upload.
	GetImage(ctx context.Context, name string) ([]byte, error)

	// GenerateReport renders the PDF report for a stored verdict.
	GenerateReport(ctx context.Context, id string) (*report.Result, error)
}

// Dependencies collects the collaborators of the forensic service.
type Dependencies struct {
	Analyzer        analyzer.ForensicAnalyzer
	Results         repository.VerdictRepository
	Images          storage.ImageStore
	Renderer        *report.Renderer
	Events          observer.Subject
	AnalysisTimeout time.Duration
	ReportTimeout   time.Duration // bounds one shared render; zero means one minute
}

const defaultReportTimeout = time.Minute

type forensicService struct {
	analyzer analyzer.ForensicAnalyzer
	results  repository.VerdictRepository
	images   storage.ImageStore
	renderer *report.Renderer
	events   observer.Subject
	timeout  time.Duration

	reportTimeout time.Duration
	reports       singleflight.Group
	log           *logrus.Entry
}

// NewForensicService creates the service. Events may be nil.
func NewForensicService(deps Dependencies) ForensicService {
	events := deps.Events
	if events == nil {
		events = observer.NewEventPublisher()
	}
	reportTimeout := deps.ReportTimeout
	if reportTimeout <= 0 {
		reportTimeout = defaultReportTimeout
	}
	return &forensicService{
		analyzer: deps.Analyzer,
		results:  deps.Results,
		images:   deps.Images,
		renderer: deps.Renderer,
		events:   events,
		timeout:  deps.AnalysisTimeout,

		reportTimeout: reportTimeout,
		log:           logger.Component("forensic_service"),
	}
}

func (s *forensicService) ProcessUpload(ctx context.Context, name string, data []byte) (*models.VerdictRecord, error) {
	if _, err := s.images.Put(ctx, name, data); err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return nil, apperrors.NewValidationError("invalid file name", err)
		}
		return nil, apperrors.NewInternalError("failed to store upload", err)
	}
	return s.Analyze(ctx, name, data)
}

type analysisOutcome struct {
	record *models.VerdictRecord
	err    error
}

// Analyze returns a timeout error when ctx (or the configured analysis
// timeout) expires first. The detectors are not interrupted; their late
// result is dropped and never stored.
func (s *forensicService) Analyze(ctx context.Context, id string, data []byte) (*models.VerdictRecord, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("image identifier is required", nil)
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("image is empty", nil)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.events.NotifyObservers(ctx, observer.ForensicEvent{EventType: observer.AnalysisStarted, SourceID: id})

	done := make(chan analysisOutcome, 1)
	go func() {
		record, err := s.analyzer.Analyze(id, data)
		done <- analysisOutcome{record: record, err: err}
	}()

	var outcome analysisOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		err := apperrors.NewTimeoutError("analysis did not finish in time", ctx.Err())
		s.publishFailure(ctx, id, start, err)
		return nil, err
	}

	if outcome.err != nil {
		s.publishFailure(ctx, id, start, outcome.err)
		return nil, outcome.err
	}

	record := outcome.record
	if err := s.results.Save(ctx, record); err != nil {
		wrapped := apperrors.NewInternalError("failed to store analysis result", err)
		s.publishFailure(ctx, id, start, wrapped)
		return nil, wrapped
	}

	for stage, msg := range record.Errors {
		s.events.NotifyObservers(ctx, observer.ForensicEvent{
			EventType:    observer.DetectorFailed,
			SourceID:     id,
			Stage:        stage,
			ErrorMessage: msg,
		})
	}
	s.events.NotifyObservers(ctx, observer.ForensicEvent{
		EventType:      observer.AnalysisCompleted,
		SourceID:       id,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"field_errors": len(record.Errors)},
	})
	return record, nil
}

func (s *forensicService) publishFailure(ctx context.Context, id string, start time.Time, err error) {
	s.events.NotifyObservers(ctx, observer.ForensicEvent{
		EventType:      observer.AnalysisFailed,
		SourceID:       id,
		Stage:          apperrors.StageOf(err),
		ProcessingTime: time.Since(start),
		ErrorMessage:   err.Error(),
	})
}

func (s *forensicService) GetResult(ctx context.Context, id string) (*models.VerdictRecord, error) {
	v, err := s.results.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrVerdictNotFound) {
			return nil, apperrors.NewNotFoundError("analysis results not found for this image", err)
		}
		return nil, apperrors.NewInternalError("failed to load analysis result", err)
	}
	return v, nil
}

func (s *forensicService) GetImage(ctx context.Context, name string) ([]byte, error) {
	data, err := s.images.Get(ctx, name)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.NewNotFoundError("image not found", err)
	case errors.Is(err, storage.ErrInvalidName):
		return nil, apperrors.NewValidationError("invalid file name", err)
	default:
		return nil, apperrors.NewInternalError("failed to read image", err)
	}
}

// GenerateReport collapses concurrent requests for the same identifier into
// one render; every caller receives the same result. The render runs detached
// from any single caller, and each caller stops waiting when its own ctx ends.
func (s *forensicService) GenerateReport(ctx context.Context, id string) (*report.Result, error) {
	ch := s.reports.DoChan(id, func() (interface{}, error) {
		renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reportTimeout)
		defer cancel()
		return s.generateReport(renderCtx, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log.WithField("source_id", id).Debug("Report request shared an in-flight render")
		}
		return res.Val.(*report.Result), nil
	case <-ctx.Done():
		return nil, apperrors.NewTimeoutError("report request ended before rendering finished", ctx.Err())
	}
}

func (s *forensicService) generateReport(ctx context.Context, id string) (*report.Result, error) {
	start := time.Now()
	fail := func(err error) (*report.Result, error) {
		s.events.NotifyObservers(ctx, observer.ForensicEvent{
			EventType:      observer.ReportFailed,
			SourceID:       id,
			Stage:          apperrors.StageReport,
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	v, err := s.results.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrVerdictNotFound) {
			return fail(apperrors.NewRenderError("analysis results not found for this image", http.StatusNotFound, err))
		}
		return fail(apperrors.NewRenderError("failed to load analysis result", http.StatusInternalServerError, err))
	}

	img, err := s.images.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			return fail(apperrors.NewRenderError("source image is missing", http.StatusNotFound, err))
		}
		return fail(apperrors.NewRenderError("failed to read source image", http.StatusInternalServerError, err))
	}

	res, err := s.renderer.Render(ctx, v, img)
	if err != nil {
		if apperrors.GetStatusCode(err) != http.StatusInternalServerError {
			return fail(err)
		}
		// rendering or storing broke; fall back to the report an earlier request
		// stored for this image
		prev, openErr := s.renderer.Stored(ctx, id)
		if openErr != nil {
			return fail(err)
		}
		s.log.WithError(err).WithField("source_id", id).Warn("Serving previously stored report")
		s.events.NotifyObservers(ctx, observer.ForensicEvent{
			EventType:      observer.ReportFailed,
			SourceID:       id,
			Stage:          apperrors.StageReport,
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
			Metadata:       map[string]interface{}{"served_stored": true},
		})
		return prev, nil
	}

	s.events.NotifyObservers(ctx, observer.ForensicEvent{
		EventType:      observer.ReportRendered,
		SourceID:       id,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"report": res.Name, "pages": res.Pages},
	})
	return res, nil
}
