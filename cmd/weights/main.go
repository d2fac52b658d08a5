// Command weights writes a seeded classifier weights file that the API can
// load through CLASSIFIER_MODEL_PATH, so every replica scores with the same
// parameters.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"go-image-forensics/internal/classifier"
	"go-image-forensics/internal/logger"
)

func main() {
	out := flag.String("out", "classifier.bin", "output path")
	size := flag.Int("size", 224, "input side length, a multiple of 8")
	seed := flag.Uint64("seed", 0, "initialisation seed")
	flag.Parse()

	if err := run(*out, *size, *seed); err != nil {
		logger.WithError(err).Fatal("Failed to export weights")
	}
}

func run(out string, size int, seed uint64) error {
	net, err := classifier.NewSeededNetwork(size, seed)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	n, err := net.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	// round trip so a truncated file is caught here, not at API startup
	if _, err := classifier.LoadNetwork(out, size); err != nil {
		return fmt.Errorf("verify %s: %w", out, err)
	}

	logger.WithFields(logrus.Fields{"path": out, "size": size, "seed": seed, "bytes": n}).Info("Weights exported")
	return nil
}
