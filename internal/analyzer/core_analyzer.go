package analyzer

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/internal/logger"
	"go-image-forensics/pkg/models"
)

// coreAnalyzer implements ForensicAnalyzer. It runs the five detectors on a
// shared worker pool and hands their outputs to the aggregator.
type coreAnalyzer struct {
	workerPool *WorkerPool
	detectors  Detectors
	aggregator *ResultAggregator
	log        *logrus.Entry
}

// NewForensicAnalyzer creates an analyzer with the built-in detectors and the
// given classifier. A nil classifier yields a null score on every image.
func NewForensicAnalyzer(classifier Classifier, opts AnalysisOptions) ForensicAnalyzer {
	return NewForensicAnalyzerWithDetectors(Detectors{
		Metadata:    NewMetadataExtractor(),
		Compression: NewCompressionAnalyzer(),
		Clone:       NewCloneDetector(),
		Regions:     NewRegionAnalyzer(opts),
		Classifier:  classifier,
	}, opts)
}

// NewForensicAnalyzerWithDetectors creates an analyzer from explicit detectors.
func NewForensicAnalyzerWithDetectors(d Detectors, opts AnalysisOptions) ForensicAnalyzer {
	opts = opts.normalized()
	if d.Classifier == nil {
		d.Classifier = nullClassifier{}
	}

	workerPool := NewWorkerPool(opts.MaxWorkers)
	workerPool.Start()

	return &coreAnalyzer{
		workerPool: workerPool,
		detectors:  d,
		aggregator: NewResultAggregator(),
		log:        logger.Component("analyzer"),
	}
}

// Analyze decodes the image once and runs every detector against it.
func (ca *coreAnalyzer) Analyze(id string, data []byte) (*models.VerdictRecord, error) {
	start := time.Now()

	h := imaging.Open(id, data)
	defer h.Close()

	var out DetectorOutputs
	var wg sync.WaitGroup

	ca.run(&wg, apperrors.StageMetadata, &out.MetadataErr, func() (err error) {
		out.Metadata, err = ca.detectors.Metadata.Extract(h)
		return err
	})
	ca.run(&wg, apperrors.StageCompression, &out.CompressionErr, func() (err error) {
		out.Compression, err = ca.detectors.Compression.Analyze(h)
		return err
	})
	ca.run(&wg, apperrors.StageClone, &out.CloneErr, func() (err error) {
		out.Clone, err = ca.detectors.Clone.Detect(h)
		return err
	})
	ca.run(&wg, apperrors.StageRegions, &out.RegionsErr, func() (err error) {
		out.Regions, err = ca.detectors.Regions.Analyze(h)
		return err
	})
	ca.run(&wg, apperrors.StageClassifier, &out.ClassifierErr, func() (err error) {
		out.Classifier, err = ca.detectors.Classifier.Score(h)
		return err
	})

	wg.Wait()

	// a score that came with an error is discarded
	if out.ClassifierErr != nil {
		out.Classifier = nil
	}

	record, err := ca.aggregator.Aggregate(id, out)
	if err != nil {
		ca.log.WithError(err).WithField("source_id", id).Error("Analysis aborted")
		return nil, err
	}

	ca.log.WithFields(logrus.Fields{
		"source_id":     id,
		"field_errors":  len(record.Errors),
		"regions":       len(record.Regions),
		"duration_secs": time.Since(start).Seconds(),
	}).Debug("Analysis complete")
	return record, nil
}

// run schedules one detector. Each job writes only its own fields of the
// outputs struct, so no locking is needed beyond the WaitGroup.
func (ca *coreAnalyzer) run(wg *sync.WaitGroup, stage string, errOut *error, job func() error) {
	wg.Add(1)
	task := func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				*errOut = apperrors.NewAnalysisError(stage, "detector panicked", fmt.Errorf("%v", r))
			}
			if *errOut != nil {
				ca.log.WithError(*errOut).WithField("stage", stage).Warn("Detector failed")
			}
		}()
		*errOut = job()
	}

	if err := ca.workerPool.Submit(task); err != nil {
		// pool already closed, finish on the caller's goroutine
		task()
	}
}

// Close stops the detector pool.
func (ca *coreAnalyzer) Close() error {
	ca.workerPool.Close()
	return nil
}

type nullClassifier struct{}

func (nullClassifier) Score(*imaging.Handle) (*models.ClassifierScore, error) {
	return nil, nil
}
