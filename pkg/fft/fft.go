// Package fft implements a fixed-size, in-place radix-2 complex FFT in
// Q16.16 fixed point, plus the Hermitian post-processing step that turns
// an N-point complex transform into a 2N-point real transform.
//
// The engine holds no state across invocations beyond its lookup tables
// and the arithmetic Env it shares with its caller. It is not safe for
// concurrent use.
package fft

import (
	"fmt"
	"math"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
)

// nibbleReverse is the bit-reverse of every 4-bit value. Full index
// reversal is composed from nibble lookups.
var nibbleReverse = [16]int{0, 8, 4, 12, 2, 10, 6, 14, 1, 9, 5, 13, 3, 11, 7, 15}

// Engine computes forward and inverse FFTs of a single fixed size.
type Engine struct {
	n    int // complex points per transform
	logN int
	env  *fixed.Env

	// Quarter-wave sine table on the 2n-point grid: entry i holds
	// sin(pi*i/n) for i in [0, n/2], so the same table serves the
	// butterfly twiddles (even indices) and the real-FFT half-index
	// twiddles. Everything else comes from symmetry.
	sinTable []fixed.Value
}

// New creates an engine for n-point complex transforms. n must be a
// power of two and at least 16 (the sizes used in practice are 256 and
// 512). The Env is shared with the caller so that overflow anywhere in
// a window's computation is visible in one place.
func New(n int, env *fixed.Env) (*Engine, error) {
	if n < 16 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft: size must be a power of two >= 16, got %d", n)
	}
	if env == nil {
		return nil, fmt.Errorf("fft: nil arithmetic env")
	}

	e := &Engine{
		n:        n,
		logN:     bitLen(n) - 1,
		env:      env,
		sinTable: make([]fixed.Value, n/2+1),
	}
	for i := range e.sinTable {
		e.sinTable[i] = fixed.FromFloat(math.Sin(math.Pi * float64(i) / float64(n)))
	}
	return e, nil
}

// Size returns the number of complex points per transform.
func (e *Engine) Size() int {
	return e.n
}

func bitLen(n int) int {
	l := 0
	for n > 0 {
		n >>= 1
		l++
	}
	return l
}

// twiddle returns (cos, sin) of pi*idx/n. Valid indices are [0, n];
// anything else signals overflow and returns a zero value, and the
// computation continues with poisoned data rather than aborting.
func (e *Engine) twiddle(idx int) fixed.Complex {
	q := e.n / 2 // table index of the pi/2 entry
	switch {
	case idx < 0 || idx > e.n:
		e.env.Signal()
		return fixed.Complex{}
	case idx <= q:
		// cos(phi) = sin(pi/2 - phi)
		return fixed.Complex{Re: e.sinTable[q-idx], Im: e.sinTable[idx]}
	default:
		// sin(pi - phi) = sin(phi), cos(pi - phi) = -cos(phi)
		return fixed.Complex{Re: -e.sinTable[idx-q], Im: e.sinTable[e.n-idx]}
	}
}

// reverse bit-reverses a logN-bit index using the nibble table.
func (e *Engine) reverse(i int) int {
	r := 0
	for b := 0; b < e.logN; b += 4 {
		r = r<<4 | nibbleReverse[i&0xf]
		i >>= 4
	}
	if excess := (4 - e.logN%4) % 4; excess != 0 {
		r >>= excess
	}
	return r
}

// reorder applies the bit-reversal permutation in place. Pairs are
// swapped only when the reversed index is strictly greater, so no slot
// is swapped twice.
func (e *Engine) reorder(buf []fixed.Complex) {
	for i := 0; i < e.n; i++ {
		if j := e.reverse(i); j > i {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
}

// Transform runs an in-place n-point complex FFT over buf[:n]:
// bit-reversal reorder, log2(n) butterfly stages, and a 1/n rescale for
// the inverse direction. It returns true if any arithmetic error
// occurred; the caller must then discard the entire result set.
func (e *Engine) Transform(buf []fixed.Complex, inverse bool) bool {
	if len(buf) < e.n {
		e.env.Signal()
		return true
	}

	e.reorder(buf)

	for size := 2; size <= e.n; size <<= 1 {
		half := size >> 1
		step := e.n / size
		for j := 0; j < half; j++ {
			if j == 0 {
				// Unity twiddle: the complex multiply is skipped.
				for i := 0; i < e.n; i += size {
					a, b := buf[i], buf[i+half]
					buf[i] = fixed.Complex{Re: e.env.Add(a.Re, b.Re), Im: e.env.Add(a.Im, b.Im)}
					buf[i+half] = fixed.Complex{Re: e.env.Sub(a.Re, b.Re), Im: e.env.Sub(a.Im, b.Im)}
				}
				continue
			}

			// One fetch per sub-block; conjugate for the forward
			// direction only.
			w := e.twiddle(2 * j * step)
			if !inverse {
				w.Im = -w.Im
			}
			for i := j; i < e.n; i += size {
				a, b := buf[i], buf[i+half]
				tr := e.env.Sub(e.env.Mul(b.Re, w.Re), e.env.Mul(b.Im, w.Im))
				ti := e.env.Add(e.env.Mul(b.Re, w.Im), e.env.Mul(b.Im, w.Re))
				buf[i] = fixed.Complex{Re: e.env.Add(a.Re, tr), Im: e.env.Add(a.Im, ti)}
				buf[i+half] = fixed.Complex{Re: e.env.Sub(a.Re, tr), Im: e.env.Sub(a.Im, ti)}
			}
		}
	}

	if inverse {
		scale := fixed.Value(int32(int64(fixed.One) / int64(e.n)))
		for i := 0; i < e.n; i++ {
			buf[i].Re = e.env.Mul(buf[i].Re, scale)
			buf[i].Im = e.env.Mul(buf[i].Im, scale)
		}
	}

	return e.env.Overflow()
}

// PostProcessReal converts between the n-point complex spectrum of
// even/odd-packed real samples and the n+1 distinct bins of the
// 2n-point real spectrum; buf must have at least n+1 slots.
//
// Forward: call after Transform(buf, false) on a buffer whose real
// parts held the even-indexed samples and imaginary parts the
// odd-indexed samples. Each mirrored bin pair (i, n-i) is separated
// into even and odd half-spectra by sum/difference, one extra twiddle
// rotation reinterprets the result on the 2n-point grid, and the DC and
// Nyquist bins are folded specially (their imaginary parts are exactly
// zero). Bins above n are redundant conjugates and are not produced.
//
// Inverse: call before Transform(buf, true) with a real spectrum in
// buf[0..n]. The extra twiddle is conjugated and every bin is halved;
// the subsequent inverse transform yields the time samples packed
// even/odd into real/imaginary parts.
//
// Returns true if any arithmetic error occurred.
func (e *Engine) PostProcessReal(buf []fixed.Complex, inverse bool) bool {
	n := e.n
	if len(buf) < n+1 {
		e.env.Signal()
		return true
	}

	if !inverse {
		re0, im0 := buf[0].Re, buf[0].Im
		buf[0] = fixed.Complex{Re: e.env.Add(re0, im0)}
		buf[n] = fixed.Complex{Re: e.env.Sub(re0, im0)}
	} else {
		f0, fn := buf[0].Re, buf[n].Re
		buf[0] = fixed.Complex{
			Re: e.env.Add(f0, fn).Half(),
			Im: e.env.Sub(f0, fn).Half(),
		}
	}

	for i := 1; i <= n/2; i++ {
		j := n - i
		a, b := buf[i], buf[j]
		w := e.twiddle(i)

		if !inverse {
			h1r := e.env.Add(a.Re, b.Re).Half()
			h1i := e.env.Sub(a.Im, b.Im).Half()
			h2r := e.env.Add(a.Im, b.Im).Half()
			h2i := e.env.Sub(b.Re, a.Re).Half()

			t1 := e.env.Add(e.env.Mul(w.Re, h2r), e.env.Mul(w.Im, h2i))
			t2 := e.env.Sub(e.env.Mul(w.Re, h2i), e.env.Mul(w.Im, h2r))
			buf[i] = fixed.Complex{Re: e.env.Add(h1r, t1), Im: e.env.Add(h1i, t2)}
			buf[j] = fixed.Complex{Re: e.env.Sub(h1r, t1), Im: e.env.Sub(t2, h1i)}
		} else {
			h1r := e.env.Add(a.Re, b.Re).Half()
			t1 := e.env.Sub(a.Re, b.Re).Half()
			h1i := e.env.Sub(a.Im, b.Im).Half()
			t2 := e.env.Add(a.Im, b.Im).Half()

			h2r := e.env.Sub(e.env.Mul(w.Re, t1), e.env.Mul(w.Im, t2))
			h2i := e.env.Add(e.env.Mul(w.Im, t1), e.env.Mul(w.Re, t2))
			buf[i] = fixed.Complex{Re: e.env.Sub(h1r, h2i), Im: e.env.Add(h1i, h2r)}
			buf[j] = fixed.Complex{Re: e.env.Add(h1r, h2i), Im: e.env.Sub(h2r, h1i)}
		}
	}

	return e.env.Overflow()
}
