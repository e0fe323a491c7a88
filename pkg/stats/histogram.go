// Package stats derives the statistical properties of one test window
// of noise-source samples: central moments and a Shannon entropy
// estimate from a histogram, spectral peak/bandwidth/autocorrelation
// from an accumulated power spectral density, and a per-test verdict
// bitmask against configured thresholds.
package stats

import (
	"fmt"
	"math"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
)

// Histogram counts sample occurrences per ADC code with saturating
// fixed-width counters, and computes moments over the counted samples
// via a lazy iterator. One histogram covers one test window: Clear at
// window start, fill, derive statistics, Clear again.
type Histogram struct {
	env         *fixed.Env
	bins        []uint16
	adcBits     int
	sampleCount int
	logSamples  int
	total       uint32
	saturated   bool

	// moment iterator cursor: bin index and within-bin offset
	itBin  int
	itUsed uint16
}

// NewHistogram creates a histogram with 1<<adcBits bins for windows of
// sampleCount samples. sampleCount must be a power of two (the pairwise
// moment reduction depends on it), validated here rather than failing
// silently later.
func NewHistogram(env *fixed.Env, adcBits, sampleCount int) (*Histogram, error) {
	if env == nil {
		return nil, fmt.Errorf("stats: nil arithmetic env")
	}
	if adcBits < 1 || adcBits > 16 {
		return nil, fmt.Errorf("stats: adc bits must be in [1, 16], got %d", adcBits)
	}
	if sampleCount < 2 || sampleCount&(sampleCount-1) != 0 {
		return nil, fmt.Errorf("stats: sample count must be a power of two >= 2, got %d", sampleCount)
	}
	logSamples := 0
	for s := sampleCount; s > 1; s >>= 1 {
		logSamples++
	}
	if logSamples > fixed.FracBits {
		return nil, fmt.Errorf("stats: sample count %d exceeds probability resolution", sampleCount)
	}
	return &Histogram{
		env:         env,
		bins:        make([]uint16, 1<<adcBits),
		adcBits:     adcBits,
		sampleCount: sampleCount,
		logSamples:  logSamples,
	}, nil
}

// Clear resets all counters and the saturation flag for a new window.
func (h *Histogram) Clear() {
	for i := range h.bins {
		h.bins[i] = 0
	}
	h.total = 0
	h.saturated = false
}

// Increment counts one sample. A counter that would exceed its width,
// or a code outside the bin range, sets the saturation flag instead of
// wrapping; the increment then has no further effect. Saturation is
// inspected after the window completes, not at the point of overflow.
func (h *Histogram) Increment(code uint16) {
	if int(code) >= len(h.bins) {
		h.saturated = true
		return
	}
	if h.bins[code] == math.MaxUint16 {
		h.saturated = true
		return
	}
	h.bins[code]++
	h.total++
}

// Saturated reports whether any counter saturated since the last
// Clear. A saturated histogram invalidates the window's moment and
// entropy results.
func (h *Histogram) Saturated() bool {
	return h.saturated
}

// Total returns the number of samples counted since the last Clear.
func (h *Histogram) Total() uint32 {
	return h.total
}

// value maps a bin index to its Q16.16 sample value. Codes are scaled
// into [0, 1) so that moments up to the fourth power stay within range.
func (h *Histogram) value(bin int) fixed.Value {
	return fixed.Value(bin) << (fixed.FracBits - h.adcBits)
}

// resetIterator rewinds the moment iterator. Required before each
// independent pass over the virtual samples.
func (h *Histogram) resetIterator() {
	h.itBin = 0
	h.itUsed = 0
}

// next yields the next virtual sample in bin order. Running past the
// counted samples signals overflow and yields the sentinel.
func (h *Histogram) next() fixed.Value {
	for h.itBin < len(h.bins) && h.itUsed >= h.bins[h.itBin] {
		h.itBin++
		h.itUsed = 0
	}
	if h.itBin >= len(h.bins) {
		h.env.Signal()
		return fixed.Sentinel
	}
	h.itUsed++
	return h.value(h.itBin)
}

// Mean estimates the window mean by pairwise-averaged reduction over
// all counted samples.
func (h *Histogram) Mean() fixed.Value {
	h.resetIterator()
	return h.reduce(h.sampleCount, 0, 1)
}

// CentralMoment estimates the central moment of the given power about
// mean. The reduction combines sub-results as (a+b)/2 at every level,
// so partial sums stay bounded regardless of the sample count, at the
// cost of one truncated bit per level.
func (h *Histogram) CentralMoment(mean fixed.Value, power int) fixed.Value {
	h.resetIterator()
	return h.reduce(h.sampleCount, mean, power)
}

func (h *Histogram) reduce(count int, mean fixed.Value, power int) fixed.Value {
	if count == 2 {
		a := h.term(mean, power)
		b := h.term(mean, power)
		return h.env.Add(a, b).Half()
	}
	half := count >> 1
	a := h.reduce(half, mean, power)
	b := h.reduce(half, mean, power)
	return h.env.Add(a, b).Half()
}

func (h *Histogram) term(mean fixed.Value, power int) fixed.Value {
	x := h.env.Sub(h.next(), mean)
	r := x
	for p := 1; p < power; p++ {
		r = h.env.Mul(r, x)
	}
	return r
}

// EstimateEntropy computes the discrete Shannon entropy estimate
// H = -sum(p*log2(p)) over all non-empty bins, in bits per sample.
// Empty bins are skipped; log2(0) is undefined and never evaluated.
// Bin probabilities are exact because the sample count is a power of
// two.
func (h *Histogram) EstimateEntropy() fixed.Value {
	shift := fixed.FracBits - h.logSamples
	var sum fixed.Value
	for _, c := range h.bins {
		if c == 0 {
			continue
		}
		p := fixed.Value(uint32(c) << shift)
		sum = h.env.Add(sum, h.env.Mul(p, h.env.Log2(p)))
	}
	return h.env.Sub(0, sum)
}
