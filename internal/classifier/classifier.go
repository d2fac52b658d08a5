// Package classifier scores images with the forgery CNN.
//
// The network is loaded once at startup. When loading fails the adapter stays
// in the unavailable state and every Score call returns a nil score with a
// ClassifierUnavailableError, so the rest of the pipeline keeps working.
package classifier

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/imaging"
	"go-image-forensics/internal/logger"
	"go-image-forensics/pkg/models"
)

// ForgedClass is the output index holding the forged-class logit.
const ForgedClass = 1

// Backend runs the network on a normalised NCHW tensor and returns the two
// raw logits.
type Backend interface {
	Forward(input []float32) ([]float32, error)
	InputSize() int
	Close() error
}

// Adapter turns images into forged-class probabilities.
type Adapter struct {
	backend Backend
	loadErr error
	log     *logrus.Entry
}

// NewAdapter wraps a loaded backend.
func NewAdapter(backend Backend) *Adapter {
	if backend == nil {
		return Unavailable(fmt.Errorf("nil backend"))
	}
	return &Adapter{backend: backend, log: logger.Component("classifier")}
}

// Unavailable returns an adapter that never scores. err is the load failure.
func Unavailable(err error) *Adapter {
	return &Adapter{loadErr: err, log: logger.Component("classifier")}
}

// Available reports whether a backend was loaded.
func (a *Adapter) Available() bool {
	return a.backend != nil
}

// LoadError returns the startup failure, if any.
func (a *Adapter) LoadError() error {
	return a.loadErr
}

// Score returns P(forged), or nil with an error when no score can be produced.
func (a *Adapter) Score(h *imaging.Handle) (score *models.ClassifierScore, err error) {
	if a.backend == nil {
		return nil, apperrors.NewClassifierUnavailableError("classifier not loaded", a.loadErr)
	}

	defer func() {
		if r := recover(); r != nil {
			score = nil
			err = apperrors.NewClassifierUnavailableError("inference panicked", fmt.Errorf("%v", r))
		}
	}()

	bgr, err := h.Color()
	if err != nil {
		return nil, apperrors.NewClassifierUnavailableError("image could not be decoded", err)
	}

	input, err := Preprocess(bgr, a.backend.InputSize())
	if err != nil {
		return nil, apperrors.NewClassifierUnavailableError("preprocessing failed", err)
	}

	logits, err := a.backend.Forward(input)
	if err != nil {
		return nil, apperrors.NewClassifierUnavailableError("inference failed", err)
	}

	p, err := forgedProbability(logits)
	if err != nil {
		return nil, apperrors.NewClassifierUnavailableError("inference failed", err)
	}

	a.log.WithFields(logrus.Fields{"source_id": h.ID(), "probability": p}).Debug("Classifier scored image")
	return &models.ClassifierScore{Probability: p}, nil
}

// Close releases the backend.
func (a *Adapter) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

// forgedProbability applies a numerically stable softmax to the logits.
func forgedProbability(logits []float32) (float64, error) {
	if len(logits) != 2 {
		return 0, fmt.Errorf("expected 2 logits, got %d", len(logits))
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if math.IsNaN(float64(l)) || math.IsInf(float64(l), 0) {
			return 0, fmt.Errorf("non-finite logit %v", l)
		}
		maxLogit = math.Max(maxLogit, float64(l))
	}

	var sum float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(float64(l) - maxLogit)
		sum += exps[i]
	}
	return exps[ForgedClass] / sum, nil
}
