// Package fixed implements Q16.16 signed fixed-point arithmetic with
// explicit overflow tracking.
//
// All arithmetic goes through an Env, which carries a sticky overflow
// flag. An operation that overflows (or violates its domain) sets the
// flag and returns Sentinel; it never wraps silently. The flag stays
// set until Clear is called, so a caller can run a whole computation
// and inspect validity once at the end.
package fixed

import (
	"fmt"
	"math"
)

// Value is a signed Q16.16 fixed-point number: 16 integer bits and 16
// fractional bits in an int32.
type Value int32

const (
	// FracBits is the number of fractional bits in a Value.
	FracBits = 16

	// One is the Value representation of 1.0.
	One Value = 1 << FracBits

	// Sentinel is returned by any operation that overflows. It doubles
	// as the most negative representable value, which no valid
	// computation in this pipeline produces.
	Sentinel Value = math.MinInt32
)

// FromInt converts an integer to a Value. Inputs outside the Q16.16
// integer range are the caller's problem; conversions here are used
// for small constants only.
func FromInt(i int) Value {
	return Value(i) << FracBits
}

// FromFloat converts a float64 to the nearest Value. It is intended
// for configuration thresholds and lookup-table construction, not for
// the sample-processing path.
func FromFloat(f float64) Value {
	return Value(math.Round(f * float64(One)))
}

// Float converts v to a float64 for reporting and cross-validation.
func (v Value) Float() float64 {
	return float64(v) / float64(One)
}

// Half returns v/2. The shift is exact apart from truncation of the
// lowest bit and cannot overflow, so it bypasses the Env.
func (v Value) Half() Value {
	return v >> 1
}

// Abs returns the magnitude of v. Abs(Sentinel) is still Sentinel; a
// caller that cares has already checked the overflow flag.
func (v Value) Abs() Value {
	if v == Sentinel {
		return Sentinel
	}
	if v < 0 {
		return -v
	}
	return v
}

func (v Value) String() string {
	return fmt.Sprintf("%.5f", v.Float())
}

// Complex is a fixed-point complex number.
type Complex struct {
	Re Value
	Im Value
}

// Env is an owned arithmetic context with a sticky overflow flag.
// Every computation whose validity matters should Clear first and
// check Overflow once afterwards; intermediate operations may have
// signalled already by then. Env is not safe for concurrent use.
type Env struct {
	overflow bool
}

// Clear resets the sticky overflow flag.
func (e *Env) Clear() {
	e.overflow = false
}

// Overflow reports whether any operation since the last Clear
// overflowed or violated its domain.
func (e *Env) Overflow() bool {
	return e.overflow
}

// Signal raises the overflow flag directly. Collaborators (the FFT
// twiddle lookup, the histogram iterator) use it to report their own
// range violations through the same channel.
func (e *Env) Signal() {
	e.overflow = true
}

func (e *Env) fail() Value {
	e.overflow = true
	return Sentinel
}

// Add returns a+b. Overflow is only possible when the operand signs
// agree and the result sign disagrees.
func (e *Env) Add(a, b Value) Value {
	sum := Value(int32(uint32(a) + uint32(b)))
	if (a^b) >= 0 && (a^sum) < 0 {
		return e.fail()
	}
	return sum
}

// Sub returns a-b. Overflow is only possible when the operand signs
// disagree and the result sign does not match a.
func (e *Env) Sub(a, b Value) Value {
	diff := Value(int32(uint32(a) - uint32(b)))
	if (a^b) < 0 && (a^diff) < 0 {
		return e.fail()
	}
	return diff
}

// Mul returns a*b with round-to-nearest on the discarded fractional
// bits. The full 64-bit product is kept; the result is valid only if
// the discarded high bits all equal the sign bit.
func (e *Env) Mul(a, b Value) Value {
	p := int64(a) * int64(b)
	p += 1 << (FracBits - 1)
	if hi := p >> (63 - FracBits); hi != 0 && hi != -1 {
		return e.fail()
	}
	return Value(int32(p >> FracBits))
}

// Log2 returns the binary logarithm of x with 16 fractional bits of
// precision. x must be strictly positive; zero or negative input is a
// domain violation and returns Sentinel.
//
// The integer part comes from halving/doubling x into [1, 2); each
// fractional bit from squaring the mantissa and testing against 2.
func (e *Env) Log2(x Value) Value {
	if x <= 0 {
		return e.fail()
	}

	m := uint64(x)
	ipart := 0
	for m >= uint64(2*One) {
		m >>= 1
		ipart++
	}
	for m < uint64(One) {
		m <<= 1
		ipart--
	}

	var frac Value
	for bit := FracBits - 1; bit >= 0; bit-- {
		m = (m * m) >> FracBits
		if m >= uint64(2*One) {
			m >>= 1
			frac |= 1 << bit
		}
	}

	return Value(ipart)<<FracBits + frac
}
