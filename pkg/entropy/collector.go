// Package entropy orchestrates sample intake from the hardware noise
// source, drives the histogram/PSD statistics pipeline over fixed-size
// test windows, and gates the emission of entropy bytes on the
// window's verdict.
package entropy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/internal/logging"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fft"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/stats"
)

var (
	// ErrUntrusted is returned by EntropyBytes when the last window
	// failed one or more statistical tests.
	ErrUntrusted = errors.New("entropy: noise source failed statistical tests")

	// ErrNoWindow is returned by EntropyBytes before any window has
	// completed.
	ErrNoWindow = errors.New("entropy: no completed test window")
)

// SampleSource is the asynchronous acquisition boundary: an external
// sampler (ADC via DMA on the original hardware) fills a buffer in the
// background. BeginFill must not block; Full is polled.
type SampleSource interface {
	// BeginFill starts filling buf with raw sample codes.
	BeginFill(buf []uint16)
	// Full reports whether the buffer passed to the last BeginFill has
	// been completely filled.
	Full() bool
}

// Config configures a Collector.
type Config struct {
	// FFTSize is the complex FFT size; each acquisition block holds
	// 2*FFTSize samples.
	FFTSize int
	// SampleCount is the number of samples per test window. Must be a
	// power-of-two multiple of the block size.
	SampleCount int
	// ADCBits is the width of a raw sample code.
	ADCBits int
	// Thresholds are the statistical pass bounds.
	Thresholds stats.Thresholds
	// PollInterval is the sleep between buffer-full polls. Zero means
	// busy-poll with only the scheduler yield the sleep implies.
	PollInterval time.Duration
	// Condition enables SHAKE256 conditioning of the emitted entropy
	// bytes. The statistical pipeline always sees the raw samples.
	Condition bool
	// Logger receives per-window diagnostics.
	Logger logging.Logger
}

// Collector owns one window's worth of accumulator state: histogram,
// PSD, arithmetic env, and the double acquisition buffer. It is
// single-threaded and not reentrant; a window, once started, runs to
// completion.
type Collector struct {
	env   *fixed.Env
	hist  *stats.Histogram
	psd   *stats.PSD
	suite *stats.Suite
	src   SampleSource
	log   logging.Logger

	sampleCount int
	blocks      int
	poll        time.Duration
	condition   bool

	buffers [2][]uint16
	active  int

	pending []uint16 // staging for the PSD block being assembled
	raw     []byte
	last    *stats.Report
}

// NewCollector wires the full pipeline for the given source.
func NewCollector(src SampleSource, cfg Config) (*Collector, error) {
	if src == nil {
		return nil, fmt.Errorf("entropy: nil sample source")
	}
	env := &fixed.Env{}
	engine, err := fft.New(cfg.FFTSize, env)
	if err != nil {
		return nil, err
	}
	blockSize := 2 * cfg.FFTSize
	if cfg.SampleCount <= 0 || cfg.SampleCount%blockSize != 0 {
		return nil, fmt.Errorf("entropy: sample count %d is not a multiple of block size %d",
			cfg.SampleCount, blockSize)
	}
	blocks := cfg.SampleCount / blockSize
	hist, err := stats.NewHistogram(env, cfg.ADCBits, cfg.SampleCount)
	if err != nil {
		return nil, err
	}
	psd, err := stats.NewPSD(engine, env, cfg.ADCBits, blocks)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	suite, err := stats.NewSuite(cfg.Thresholds, env, log)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		env:         env,
		hist:        hist,
		psd:         psd,
		suite:       suite,
		src:         src,
		log:         log.WithFields(logging.Fields{"component": "entropy_collector"}),
		sampleCount: cfg.SampleCount,
		blocks:      blocks,
		poll:        cfg.PollInterval,
		condition:   cfg.Condition,
		pending:     make([]uint16, 0, blockSize),
		raw:         make([]byte, 0, cfg.SampleCount),
	}
	c.buffers[0] = make([]uint16, blockSize)
	c.buffers[1] = make([]uint16, blockSize)
	return c, nil
}

// AccumulateSample feeds one raw sample code into the histogram/PSD
// pipeline. It returns nothing; saturation or arithmetic overflow is
// recorded in the window's sticky flags.
func (c *Collector) AccumulateSample(code uint16) {
	c.hist.Increment(code)
	c.raw = append(c.raw, byte(code))
	c.pending = append(c.pending, code)
	if len(c.pending) == cap(c.pending) {
		c.psd.AccumulateBlock(c.pending)
		c.pending = c.pending[:0]
	}
}

// RunTestWindow acquires one full window of samples from the source
// and evaluates it. The context is consulted only while waiting for
// the sampler between blocks; once all samples are in, evaluation
// always runs to completion. Window failure is not an error: it comes
// back in the report's verdict, and the caller decides whether to
// retry with a fresh window.
func (c *Collector) RunTestWindow(ctx context.Context) (*stats.Report, error) {
	c.env.Clear()
	c.hist.Clear()
	c.psd.Clear()
	c.pending = c.pending[:0]
	c.raw = c.raw[:0]
	c.last = nil

	start := time.Now()
	c.src.BeginFill(c.buffers[c.active])
	for b := 0; b < c.blocks; b++ {
		if err := c.waitFull(ctx); err != nil {
			return nil, err
		}
		filled := c.buffers[c.active]
		c.active ^= 1
		if b+1 < c.blocks {
			// Next buffer fills in the background while this one is
			// consumed.
			c.src.BeginFill(c.buffers[c.active])
		}
		for _, code := range filled {
			c.AccumulateSample(code)
		}
	}

	report := c.suite.Evaluate(c.hist, c.psd)
	c.last = report

	c.log.Debug("test window evaluated", logging.Fields{
		"verdict":     report.Verdict.String(),
		"mean":        report.Mean.Float(),
		"variance":    report.Variance.Float(),
		"entropy":     report.Entropy.Float(),
		"peak_bin":    report.PeakBin,
		"bandwidth":   report.Bandwidth,
		"max_autocorr": report.MaxAutocorrelation.Float(),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	return report, nil
}

func (c *Collector) waitFull(ctx context.Context) error {
	for !c.src.Full() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("entropy: waiting for sampler: %w", ctx.Err())
		default:
		}
		if c.poll > 0 {
			time.Sleep(c.poll)
		}
	}
	return nil
}

// EntropyBytes returns the raw sample bytes of the last completed
// window together with the estimated entropy they carry, or
// ErrUntrusted if the window's verdict was non-zero. With conditioning
// enabled the bytes are whitened through SHAKE256 and truncated to the
// estimated entropy.
func (c *Collector) EntropyBytes() ([]byte, int, error) {
	if c.last == nil {
		return nil, 0, ErrNoWindow
	}
	if !c.last.Verdict.Pass() {
		return nil, 0, fmt.Errorf("%w: %s", ErrUntrusted, c.last.Verdict)
	}

	bits := int((int64(c.last.Entropy) * int64(c.sampleCount)) >> fixed.FracBits)
	if bits > len(c.raw)*8 {
		bits = len(c.raw) * 8
	}

	if !c.condition {
		out := make([]byte, len(c.raw))
		copy(out, c.raw)
		return out, bits, nil
	}

	h := sha3.NewShake256()
	h.Write(c.raw)
	out := make([]byte, (bits+7)/8)
	h.Read(out)
	return out, bits, nil
}

// LastReport returns the report of the most recent window, or nil.
func (c *Collector) LastReport() *stats.Report {
	return c.last
}
