package analyzer

import "go-image-forensics/pkg/models"

// AnalysisOptions tunes the segmentation step and detector concurrency.
// Decision thresholds are fixed in the models package and are not options.
type AnalysisOptions struct {
	// Region segmentation
	MaxRegions    int
	CannyLow      float32
	CannyHigh     float32
	EntropyOffset float64

	// Performance options
	MaxWorkers int
}

// DefaultOptions returns default analysis options
func DefaultOptions() AnalysisOptions {
	return AnalysisOptions{
		MaxRegions:    models.MaxRegions,
		CannyLow:      100,
		CannyHigh:     200,
		EntropyOffset: 1e-10,
		MaxWorkers:    0, // Use default CPU count
	}
}

// WithMaxWorkers sets the detector worker count; <= 0 means one per CPU.
func (opts AnalysisOptions) WithMaxWorkers(n int) AnalysisOptions {
	opts.MaxWorkers = n
	return opts
}

// WithCannyThresholds overrides the hysteresis thresholds used for segmentation.
func (opts AnalysisOptions) WithCannyThresholds(low, high float32) AnalysisOptions {
	opts.CannyLow = low
	opts.CannyHigh = high
	return opts
}

// normalized fills zero values with defaults and caps MaxRegions.
func (opts AnalysisOptions) normalized() AnalysisOptions {
	def := DefaultOptions()
	if opts.MaxRegions <= 0 || opts.MaxRegions > models.MaxRegions {
		opts.MaxRegions = def.MaxRegions
	}
	if opts.CannyLow <= 0 || opts.CannyHigh <= 0 {
		opts.CannyLow, opts.CannyHigh = def.CannyLow, def.CannyHigh
	}
	if opts.EntropyOffset <= 0 {
		opts.EntropyOffset = def.EntropyOffset
	}
	return opts
}
