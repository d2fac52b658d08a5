package classifier

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
)

// Weights files start with this magic, a format version and the input size,
// followed by each layer's weight then bias as little-endian float32 in
// PyTorch parameter order.
const (
	weightsMagic   = "FGNW"
	weightsVersion = uint32(1)
)

// NewSeededNetwork initialises parameters the way PyTorch initialises a fresh
// Conv2d or Linear layer: weights and biases uniform in ±1/sqrt(fan_in).
// The same seed always yields the same network.
func NewSeededNetwork(size int, seed uint64) (*Network, error) {
	n, err := newNetwork(size)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, l := range n.layers() {
		fanIn := len(l.weight) / l.out
		bound := float32(1 / math.Sqrt(float64(fanIn)))
		fillUniform(rng, l.weight, bound)
		fillUniform(rng, l.bias, bound)
	}
	return n, nil
}

func fillUniform(rng *rand.Rand, dst []float32, bound float32) {
	for i := range dst {
		dst[i] = (rng.Float32()*2 - 1) * bound
	}
}

// LoadNetwork reads a weights file. size must match the size it was exported for.
func LoadNetwork(path string, size int) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()
	return ReadNetwork(bufio.NewReader(f), size)
}

// ReadNetwork decodes a weights stream.
func ReadNetwork(r io.Reader, size int) (*Network, error) {
	var header struct {
		Magic   [4]byte
		Version uint32
		Size    uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read weights header: %w", err)
	}
	if string(header.Magic[:]) != weightsMagic {
		return nil, fmt.Errorf("not a weights file")
	}
	if header.Version != weightsVersion {
		return nil, fmt.Errorf("unsupported weights version %d", header.Version)
	}
	if int(header.Size) != size {
		return nil, fmt.Errorf("weights exported for input size %d, configured %d", header.Size, size)
	}

	n, err := newNetwork(size)
	if err != nil {
		return nil, err
	}
	for i, l := range n.layers() {
		if err := binary.Read(r, binary.LittleEndian, l.weight); err != nil {
			return nil, fmt.Errorf("layer %d weights: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, l.bias); err != nil {
			return nil, fmt.Errorf("layer %d bias: %w", i, err)
		}
	}
	return n, nil
}

// WriteTo serialises the network in the weights file format.
func (n *Network) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	header := struct {
		Magic   [4]byte
		Version uint32
		Size    uint32
	}{Version: weightsVersion, Size: uint32(n.size)}
	copy(header.Magic[:], weightsMagic)

	written := int64(binary.Size(header))
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return 0, err
	}
	for _, l := range n.layers() {
		if err := binary.Write(bw, binary.LittleEndian, l.weight); err != nil {
			return written, err
		}
		if err := binary.Write(bw, binary.LittleEndian, l.bias); err != nil {
			return written, err
		}
		written += int64(4 * (len(l.weight) + len(l.bias)))
	}
	return written, bw.Flush()
}
