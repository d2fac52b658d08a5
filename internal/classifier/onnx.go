package classifier

import (
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXBackend runs an exported model through OpenCV DNN. A dnn::Net is not
// re-entrant, so Forward calls are serialised.
type ONNXBackend struct {
	mu   sync.Mutex
	net  gocv.Net
	size int
}

// NewONNXBackend loads the model at path. The model takes a 1x3xSxS float
// tensor and returns two logits.
func NewONNXBackend(path string, size int) (*ONNXBackend, error) {
	if size < 8 || size%8 != 0 {
		return nil, fmt.Errorf("input size must be a positive multiple of 8, got %d", size)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("could not load onnx model %q", path)
	}
	return &ONNXBackend{net: net, size: size}, nil
}

func (b *ONNXBackend) InputSize() int { return b.size }

func (b *ONNXBackend) Forward(input []float32) ([]float32, error) {
	blob := gocv.NewMatWithSizes([]int{1, 3, b.size, b.size}, gocv.MatTypeCV32F)
	defer blob.Close()

	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("blob buffer: %w", err)
	}
	if len(dst) != len(input) {
		return nil, fmt.Errorf("input has %d values, want %d", len(input), len(dst))
	}
	copy(dst, input)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.net.SetInput(blob, "")
	out := b.net.Forward("")
	defer out.Close()

	logits, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return append([]float32(nil), logits...), nil
}

func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net.Close()
}
