package classifier

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Layer widths of the reference network.
var convChannels = [4]int{3, 32, 64, 128}

const hiddenUnits = 512

// dense holds one layer's parameters in PyTorch layout: weights are
// [out][in] for linear layers and [out][in][3][3] for convolutions.
type dense struct {
	in, out int
	weight  []float32
	bias    []float32
}

// Network is the pure Go forward pass:
// three conv3x3(pad 1)+ReLU+maxpool2 stages, FC+ReLU, dropout (identity at
// inference), FC to two logits. Parameters are read-only after construction,
// so Forward is safe for concurrent use.
type Network struct {
	size int
	conv [3]dense
	fc1  dense
	fc2  dense
}

// newNetwork allocates zeroed parameters for the given input size.
func newNetwork(size int) (*Network, error) {
	if size < 8 || size%8 != 0 {
		return nil, fmt.Errorf("input size must be a positive multiple of 8, got %d", size)
	}
	n := &Network{size: size}
	for i := range n.conv {
		in, out := convChannels[i], convChannels[i+1]
		n.conv[i] = dense{in: in, out: out, weight: make([]float32, out*in*9), bias: make([]float32, out)}
	}
	flat := flattenedFeatures(size)
	n.fc1 = dense{in: flat, out: hiddenUnits, weight: make([]float32, hiddenUnits*flat), bias: make([]float32, hiddenUnits)}
	n.fc2 = dense{in: hiddenUnits, out: 2, weight: make([]float32, 2*hiddenUnits), bias: make([]float32, 2)}
	return n, nil
}

func flattenedFeatures(size int) int {
	side := size / 8
	return convChannels[3] * side * side
}

// layers lists parameters in serialisation order.
func (n *Network) layers() []*dense {
	return []*dense{&n.conv[0], &n.conv[1], &n.conv[2], &n.fc1, &n.fc2}
}

func (n *Network) InputSize() int { return n.size }

func (n *Network) Close() error { return nil }

// Forward runs inference on one 3xSxS tensor.
func (n *Network) Forward(input []float32) ([]float32, error) {
	if want := 3 * n.size * n.size; len(input) != want {
		return nil, fmt.Errorf("input has %d values, want %d", len(input), want)
	}

	x, side := input, n.size
	for i := range n.conv {
		x = conv3x3ReLU(x, side, &n.conv[i])
		x = maxPool2(x, n.conv[i].out, side)
		side /= 2
	}

	hidden := linear(x, &n.fc1)
	for i, v := range hidden {
		if v < 0 {
			hidden[i] = 0
		}
	}
	return linear(hidden, &n.fc2), nil
}

// conv3x3ReLU convolves a CxSxS map with zero padding of one pixel and
// applies ReLU. Output channels are computed in parallel.
func conv3x3ReLU(in []float32, side int, layer *dense) []float32 {
	plane := side * side
	out := make([]float32, layer.out*plane)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for o := 0; o < layer.out; o++ {
		g.Go(func() error {
			dst := out[o*plane : (o+1)*plane]
			b := layer.bias[o]
			for i := range dst {
				dst[i] = b
			}
			for c := 0; c < layer.in; c++ {
				src := in[c*plane : (c+1)*plane]
				k := layer.weight[(o*layer.in+c)*9 : (o*layer.in+c)*9+9]
				for ky := 0; ky < 3; ky++ {
					for kx := 0; kx < 3; kx++ {
						w := k[ky*3+kx]
						if w == 0 {
							continue
						}
						dy, dx := ky-1, kx-1
						y0, y1 := max(0, -dy), min(side, side-dy)
						x0, x1 := max(0, -dx), min(side, side-dx)
						for y := y0; y < y1; y++ {
							row := dst[y*side : (y+1)*side]
							srow := src[(y+dy)*side : (y+dy+1)*side]
							for x := x0; x < x1; x++ {
								row[x] += w * srow[x+dx]
							}
						}
					}
				}
			}
			for i, v := range dst {
				if v < 0 {
					dst[i] = 0
				}
			}
			return nil
		})
	}
	g.Wait()
	return out
}

// maxPool2 applies 2x2 max pooling with stride 2.
func maxPool2(in []float32, channels, side int) []float32 {
	half := side / 2
	out := make([]float32, channels*half*half)
	for c := 0; c < channels; c++ {
		src := in[c*side*side:]
		dst := out[c*half*half:]
		for y := 0; y < half; y++ {
			for x := 0; x < half; x++ {
				i := 2*y*side + 2*x
				m := src[i]
				if v := src[i+1]; v > m {
					m = v
				}
				if v := src[i+side]; v > m {
					m = v
				}
				if v := src[i+side+1]; v > m {
					m = v
				}
				dst[y*half+x] = m
			}
		}
	}
	return out
}

// linear computes W·x + b.
func linear(x []float32, layer *dense) []float32 {
	out := make([]float32, layer.out)
	for o := 0; o < layer.out; o++ {
		row := layer.weight[o*layer.in : (o+1)*layer.in]
		sum := layer.bias[o]
		for i, v := range x {
			sum += row[i] * v
		}
		out[o] = sum
	}
	return out
}
