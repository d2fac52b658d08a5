package observer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"go-image-forensics/internal/logger"
)

// ForensicEvent describes one step of an analysis or report request
type ForensicEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SourceID       string                 `json:"source_id"`
	Stage          string                 `json:"stage,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of forensic event
type EventType string

const (
	// AnalysisStarted when an image is handed to the detectors
	AnalysisStarted EventType = "analysis_started"
	// AnalysisCompleted when a verdict record was produced
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when no verdict could be produced
	AnalysisFailed EventType = "analysis_failed"
	// DetectorFailed when a single detector reported an error
	DetectorFailed EventType = "detector_failed"
	// ReportRendered when a PDF report was written
	ReportRendered EventType = "report_rendered"
	// ReportFailed when rendering or storing a report failed
	ReportFailed EventType = "report_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ForensicEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ForensicEvent)
}

// LoggingObserver logs forensic events
type LoggingObserver struct {
	logger *logrus.Entry
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Entry) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles forensic events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ForensicEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"source_id":       event.SourceID,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.Stage != "" {
		fields["stage"] = event.Stage
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case AnalysisStarted:
		entry.Debug("Forensic analysis started")
	case AnalysisCompleted:
		entry.Info("Forensic analysis completed")
	case AnalysisFailed:
		entry.Error("Forensic analysis failed")
	case DetectorFailed:
		entry.Warn("Detector failed")
	case ReportRendered:
		entry.Info("Report rendered")
	case ReportFailed:
		entry.Error("Report rendering failed")
	default:
		entry.Info("Forensic event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver exports forensic events as Prometheus metrics
type MetricsObserver struct {
	analyses         *prometheus.CounterVec
	detectorFailures *prometheus.CounterVec
	reports          *prometheus.CounterVec
	duration         *prometheus.HistogramVec
}

// NewMetricsObserver registers the forensic metrics on reg
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	factory := promauto.With(reg)
	return &MetricsObserver{
		analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forensics_analyses_total",
				Help: "Forensic analyses by outcome",
			},
			[]string{"outcome"},
		),
		detectorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forensics_detector_failures_total",
				Help: "Detector failures by stage",
			},
			[]string{"stage"},
		),
		reports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forensics_reports_total",
				Help: "Report renders by outcome",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forensics_processing_seconds",
				Help:    "Time spent per analysis or report in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// OnEvent handles forensic events by updating metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ForensicEvent) {
	switch event.EventType {
	case AnalysisCompleted:
		o.analyses.WithLabelValues("success").Inc()
		o.duration.WithLabelValues("analysis").Observe(event.ProcessingTime.Seconds())
	case AnalysisFailed:
		o.analyses.WithLabelValues("failure").Inc()
		o.duration.WithLabelValues("analysis").Observe(event.ProcessingTime.Seconds())
	case DetectorFailed:
		o.detectorFailures.WithLabelValues(event.Stage).Inc()
	case ReportRendered:
		o.reports.WithLabelValues("success").Inc()
		o.duration.WithLabelValues("report").Observe(event.ProcessingTime.Seconds())
	case ReportFailed:
		o.reports.WithLabelValues("failure").Inc()
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	inflight  sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer concurrently
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ForensicEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		p.inflight.Add(1)
		go func(obs Observer) {
			defer p.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Wait blocks until every delivered event has been handled.
func (p *EventPublisher) Wait() {
	p.inflight.Wait()
}
