package stats

import (
	"fmt"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fft"
)

// PSD accumulates a running power-spectral-density estimate across the
// sample blocks of one test window, and derives the spectral statistics
// from it: peak bin, bandwidth, and (via the Wiener-Khinchin relation)
// the autocorrelation of the noise source.
//
// Bins accumulate monotonically between Clear calls. The correlogram
// shares the FFT scratch buffer, so Autocorrelation must run after all
// blocks are in and invalidates nothing but the scratch.
type PSD struct {
	env     *fixed.Env
	engine  *fft.Engine
	n       int
	adcBits int

	bins []fixed.Value   // n+1 magnitude-squared bins
	buf  []fixed.Complex // FFT scratch, n+1 slots

	// preShift rescales each spectral bin before squaring so the
	// square stays within range; blockShift normalizes each block's
	// contribution by the number of blocks per window.
	preShift   int
	blockShift int
	blocks     int
}

// NewPSD creates an accumulator on top of the given engine. Each block
// holds 2*engine.Size() real samples; blocksPerWindow must be a power
// of two so the per-block normalization is an exact shift.
func NewPSD(engine *fft.Engine, env *fixed.Env, adcBits, blocksPerWindow int) (*PSD, error) {
	if engine == nil || env == nil {
		return nil, fmt.Errorf("stats: psd needs an engine and an env")
	}
	if blocksPerWindow < 1 || blocksPerWindow&(blocksPerWindow-1) != 0 {
		return nil, fmt.Errorf("stats: blocks per window must be a power of two, got %d", blocksPerWindow)
	}
	if adcBits < 1 || adcBits > 16 {
		return nil, fmt.Errorf("stats: adc bits must be in [1, 16], got %d", adcBits)
	}
	n := engine.Size()
	blockShift := 0
	for b := blocksPerWindow; b > 1; b >>= 1 {
		blockShift++
	}
	p := &PSD{
		env:        env,
		engine:     engine,
		n:          n,
		adcBits:    adcBits,
		bins:       make([]fixed.Value, n+1),
		buf:        make([]fixed.Complex, n+1),
		blockShift: blockShift,
	}
	// With samples normalized to [0, 1) a forward bin can reach n in
	// magnitude; shifting by log2(n)/2+2 keeps its square within range.
	logN := 0
	for v := n; v > 1; v >>= 1 {
		logN++
	}
	p.preShift = logN/2 + 2
	return p, nil
}

// BlockSize returns the number of real samples consumed per block.
func (p *PSD) BlockSize() int {
	return 2 * p.n
}

// Bins exposes the accumulated PSD for inspection and testing.
func (p *PSD) Bins() []fixed.Value {
	return p.bins
}

// Clear zeroes the accumulated spectrum for a new window.
func (p *PSD) Clear() {
	for i := range p.bins {
		p.bins[i] = 0
	}
	p.blocks = 0
}

// AccumulateBlock folds one block of raw sample codes into the running
// PSD: the block mean is removed (plain linear summation is fine at
// this fixed, small block size), even/odd samples are packed into the
// complex buffer, transformed, unpacked to the real spectrum, and each
// bin's rescaled magnitude-squared is added in. Returns true if any
// arithmetic error occurred.
func (p *PSD) AccumulateBlock(codes []uint16) bool {
	if len(codes) != p.BlockSize() {
		p.env.Signal()
		return true
	}

	sum := 0
	for _, c := range codes {
		sum += int(c)
	}
	mean := sum / len(codes)

	shift := fixed.FracBits - p.adcBits
	for i := 0; i < p.n; i++ {
		p.buf[i] = fixed.Complex{
			Re: fixed.Value((int(codes[2*i]) - mean) << shift),
			Im: fixed.Value((int(codes[2*i+1]) - mean) << shift),
		}
	}

	p.engine.Transform(p.buf[:p.n], false)
	p.engine.PostProcessReal(p.buf, false)

	for i := 0; i <= p.n; i++ {
		re := p.buf[i].Re >> p.preShift
		im := p.buf[i].Im >> p.preShift
		power := p.env.Add(p.env.Mul(re, re), p.env.Mul(im, im))
		p.bins[i] = p.env.Add(p.bins[i], power>>p.blockShift)
	}
	p.blocks++

	return p.env.Overflow()
}

// PeakBin returns the index and value of the largest PSD bin.
func (p *PSD) PeakBin() (int, fixed.Value) {
	peak := 0
	for i, v := range p.bins {
		if v > p.bins[peak] {
			peak = i
		}
	}
	return peak, p.bins[peak]
}

// EstimateBandwidth locates the spectral edges around the peak bin: a
// relative threshold is derived as peak*fraction, and each edge is the
// first bin of the first run of `repetitions` consecutive bins below
// threshold when scanning outward from the peak. A side with no such
// run extends to the end of the spectrum. A zero peak (no spectral
// energy at all) reports zero bandwidth.
func (p *PSD) EstimateBandwidth(fraction fixed.Value, repetitions int) (peak, bandwidth int) {
	peak, peakVal := p.PeakBin()
	if peakVal <= 0 {
		return peak, 0
	}
	threshold := p.env.Mul(peakVal, fraction)

	low := 0
	run := 0
	for i := peak - 1; i >= 0; i-- {
		if p.bins[i] < threshold {
			run++
			if run == repetitions {
				low = i + repetitions - 1
				break
			}
		} else {
			run = 0
		}
	}

	high := p.n
	run = 0
	for i := peak + 1; i <= p.n; i++ {
		if p.bins[i] < threshold {
			run++
			if run == repetitions {
				high = i - repetitions + 1
				break
			}
		} else {
			run = 0
		}
	}

	return peak, high - low
}

// Autocorrelation reinterprets the accumulated PSD as a real-valued
// spectrum and applies an inverse real FFT to it, yielding the
// correlogram of the source (Wiener-Khinchin). The result lives in the
// engine scratch with lag 2i in the real part of slot i and lag 2i+1 in
// the imaginary part. Returns true if any arithmetic error occurred.
func (p *PSD) Autocorrelation() bool {
	for i := 0; i <= p.n; i++ {
		p.buf[i] = fixed.Complex{Re: p.bins[i]}
	}
	p.engine.PostProcessReal(p.buf, true)
	p.engine.Transform(p.buf[:p.n], true)
	return p.env.Overflow()
}

// MaxAutocorrelation scans the correlogram computed by the last
// Autocorrelation call and returns the largest magnitude among lags in
// [skip, n]. Low lags are dominated by the analog front end's own
// filter response, not genuine randomness defects, hence the skip.
func (p *PSD) MaxAutocorrelation(skip int) fixed.Value {
	if skip < 1 {
		skip = 1
	}
	var maxVal fixed.Value
	for lag := skip; lag <= p.n; lag++ {
		var v fixed.Value
		if lag%2 == 0 {
			v = p.buf[lag/2].Re
		} else {
			v = p.buf[lag/2].Im
		}
		if v.Abs() > maxVal {
			maxVal = v.Abs()
		}
	}
	return maxVal
}
