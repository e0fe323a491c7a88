package entropy

import (
	"encoding/binary"
	"io"
	"math"
	"math/rand/v2"
)

// GaussianSource is a synchronous SampleSource producing clamped
// Gaussian sample codes. It stands in for the hardware sampler in the
// self-test command and in tests; fills complete immediately.
type GaussianSource struct {
	rng    *rand.Rand
	mean   float64
	stddev float64
	max    int
	filled bool
}

// NewGaussianSource creates a source emitting codes around mean with
// the given standard deviation, clamped to [0, 1<<adcBits).
func NewGaussianSource(seed uint64, mean, stddev float64, adcBits int) *GaussianSource {
	return &GaussianSource{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		mean:   mean,
		stddev: stddev,
		max:    1<<adcBits - 1,
	}
}

func (g *GaussianSource) BeginFill(buf []uint16) {
	for i := range buf {
		v := int(g.mean + g.stddev*g.rng.NormFloat64())
		if v < 0 {
			v = 0
		}
		if v > g.max {
			v = g.max
		}
		buf[i] = uint16(v)
	}
	g.filled = true
}

func (g *GaussianSource) Full() bool {
	return g.filled
}

// FileSource replays captured sample codes from a reader, one
// little-endian uint16 per sample, masked to the ADC width. It lets
// recorded hardware traces drive the pipeline offline; fills complete
// immediately and a short file truncates the fill into saturating
// out-of-range codes so the window is flagged rather than silently
// padded.
type FileSource struct {
	r      io.Reader
	mask   uint16
	filled bool
}

// NewFileSource wraps r as a sample source for adcBits-wide codes.
func NewFileSource(r io.Reader, adcBits int) *FileSource {
	return &FileSource{r: r, mask: uint16(1<<adcBits - 1)}
}

func (f *FileSource) BeginFill(buf []uint16) {
	var word [2]byte
	for i := range buf {
		if _, err := io.ReadFull(f.r, word[:]); err != nil {
			// out of range for any ADC width, trips histogram saturation
			buf[i] = math.MaxUint16
			continue
		}
		buf[i] = binary.LittleEndian.Uint16(word[:]) & f.mask
	}
	f.filled = true
}

func (f *FileSource) Full() bool {
	return f.filled
}

// ConstantSource emits the same code forever: the signature of a dead
// noise source. Useful for exercising the failure path.
type ConstantSource struct {
	Code   uint16
	filled bool
}

func (c *ConstantSource) BeginFill(buf []uint16) {
	for i := range buf {
		buf[i] = c.Code
	}
	c.filled = true
}

func (c *ConstantSource) Full() bool {
	return c.filled
}
