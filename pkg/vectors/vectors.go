// Package vectors implements the host-side diagnostic interface: raw
// fixed-point serialization and named test-vector blocks that pair an
// input sample array with the spectrum an independently computed
// floating-point reference produces for it. The blocks are used to
// cross-validate the fixed-point FFT pipeline.
package vectors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	dspfft "github.com/mjibson/go-dsp/fft"
	"gopkg.in/yaml.v3"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fft"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
)

// WriteValues serializes fixed-point values as little-endian 32-bit
// words.
func WriteValues(w io.Writer, vals []fixed.Value) error {
	for _, v := range vals {
		if err := binary.Write(w, binary.LittleEndian, int32(v)); err != nil {
			return fmt.Errorf("vectors: write value: %w", err)
		}
	}
	return nil
}

// ReadValues deserializes n little-endian 32-bit fixed-point words.
func ReadValues(r io.Reader, n int) ([]fixed.Value, error) {
	vals := make([]fixed.Value, n)
	for i := range vals {
		var raw int32
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("vectors: read value %d: %w", i, err)
		}
		vals[i] = fixed.Value(raw)
	}
	return vals, nil
}

// Case is one named test vector: a real input signal and the expected
// real spectrum, flattened as interleaved re/im pairs for the n+1
// distinct bins.
type Case struct {
	Name     string    `yaml:"name"`
	Input    []float64 `yaml:"input"`
	Expected []float64 `yaml:"expected"`
}

// Block is a set of test cases sharing one FFT configuration.
type Block struct {
	FFTSize int    `yaml:"fft_size"`
	Cases   []Case `yaml:"cases"`
}

// Load parses a test-vector block.
func Load(r io.Reader) (*Block, error) {
	var b Block
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("vectors: decode block: %w", err)
	}
	return &b, nil
}

// Save writes a test-vector block.
func Save(w io.Writer, b *Block) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("vectors: encode block: %w", err)
	}
	return nil
}

// ReferenceSpectrum computes the real spectrum of input with the
// floating-point reference FFT and flattens bins 0..len(input)/2 as
// interleaved re/im pairs.
func ReferenceSpectrum(input []float64) []float64 {
	spec := dspfft.FFTReal(input)
	bins := len(input)/2 + 1
	out := make([]float64, 0, 2*bins)
	for i := 0; i < bins; i++ {
		out = append(out, real(spec[i]), imag(spec[i]))
	}
	return out
}

// Generate builds a case for input: the expected output is taken from
// the floating-point reference.
func Generate(name string, input []float64) Case {
	return Case{Name: name, Input: input, Expected: ReferenceSpectrum(input)}
}

// CrossValidate runs every case in the block through the fixed-point
// real-FFT pipeline and compares against the expected spectra within
// tolerance. The first failing case aborts with a descriptive error.
func CrossValidate(b *Block, tolerance float64) error {
	env := &fixed.Env{}
	engine, err := fft.New(b.FFTSize, env)
	if err != nil {
		return err
	}
	n := b.FFTSize

	for _, c := range b.Cases {
		if len(c.Input) != 2*n {
			return fmt.Errorf("vectors: case %q: input length %d, want %d", c.Name, len(c.Input), 2*n)
		}
		if len(c.Expected) != 2*(n+1) {
			return fmt.Errorf("vectors: case %q: expected length %d, want %d", c.Name, len(c.Expected), 2*(n+1))
		}

		buf := make([]fixed.Complex, n+1)
		for i := 0; i < n; i++ {
			buf[i] = fixed.Complex{
				Re: fixed.FromFloat(c.Input[2*i]),
				Im: fixed.FromFloat(c.Input[2*i+1]),
			}
		}

		env.Clear()
		engine.Transform(buf[:n], false)
		failed := engine.PostProcessReal(buf, false)
		if failed {
			return fmt.Errorf("vectors: case %q: arithmetic overflow in fixed-point pipeline", c.Name)
		}

		for i := 0; i <= n; i++ {
			wantRe := c.Expected[2*i]
			wantIm := c.Expected[2*i+1]
			if d := math.Abs(buf[i].Re.Float() - wantRe); d > tolerance {
				return fmt.Errorf("vectors: case %q: bin %d re differs by %g (tolerance %g)",
					c.Name, i, d, tolerance)
			}
			if d := math.Abs(buf[i].Im.Float() - wantIm); d > tolerance {
				return fmt.Errorf("vectors: case %q: bin %d im differs by %g (tolerance %g)",
					c.Name, i, d, tolerance)
			}
		}
	}
	return nil
}
