package entropy

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/stats"
)

func testConfig() Config {
	return Config{
		FFTSize:     64,
		SampleCount: 4096,
		ADCBits:     10,
		Thresholds: stats.Thresholds{
			MeanMin:               0.3,
			MeanMax:               0.7,
			VarianceMin:           0.001,
			VarianceMax:           0.2,
			SkewnessMax:           1.0,
			KurtosisMin:           1.0,
			KurtosisMax:           6.0,
			EntropyMin:            5.0,
			PeakBinMin:            0,
			PeakBinMax:            64,
			BandwidthMin:          32,
			AutocorrelationFactor: 1.0,
			AutocorrelationSkip:   8,
			PSDFraction:           0.05,
			PSDRepetitions:        4,
		},
	}
}

func TestNewCollectorValidation(t *testing.T) {
	cfg := testConfig()

	_, err := NewCollector(nil, cfg)
	assert.Error(t, err, "nil source must be rejected")

	bad := cfg
	bad.SampleCount = 4096 + 100
	_, err = NewCollector(&ConstantSource{}, bad)
	assert.Error(t, err, "sample count must be a multiple of the block size")

	bad = cfg
	bad.FFTSize = 100
	_, err = NewCollector(&ConstantSource{}, bad)
	assert.Error(t, err, "fft size must be a power of two")
}

func TestRunTestWindowGaussian(t *testing.T) {
	cfg := testConfig()
	src := NewGaussianSource(1, 512, 128, cfg.ADCBits)
	c, err := NewCollector(src, cfg)
	require.NoError(t, err)

	report, err := c.RunTestWindow(context.Background())
	require.NoError(t, err)
	require.True(t, report.Verdict.Pass(), "healthy source rejected: %s", report.Verdict)

	assert.InDelta(t, 0.5, report.Mean.Float(), 0.05)
	assert.Greater(t, report.Entropy.Float(), 5.0)
	assert.Same(t, report, c.LastReport())

	out, bits, err := c.EntropyBytes()
	require.NoError(t, err)
	assert.Len(t, out, cfg.SampleCount, "raw emission returns every sample byte")
	assert.Greater(t, bits, 0)
	assert.LessOrEqual(t, bits, cfg.SampleCount*8)
}

func TestRunTestWindowConstantUntrusted(t *testing.T) {
	cfg := testConfig()
	c, err := NewCollector(&ConstantSource{Code: 512}, cfg)
	require.NoError(t, err)

	report, err := c.RunTestWindow(context.Background())
	require.NoError(t, err, "a failing window is a verdict, not an error")
	assert.False(t, report.Verdict.Pass())
	assert.NotZero(t, report.Verdict&stats.VerdictVariance)
	assert.NotZero(t, report.Verdict&stats.VerdictEntropy)
	assert.NotZero(t, report.Verdict&stats.VerdictBandwidth)

	out, bits, err := c.EntropyBytes()
	assert.ErrorIs(t, err, ErrUntrusted)
	assert.Nil(t, out)
	assert.Zero(t, bits)
}

func TestEntropyBytesBeforeAnyWindow(t *testing.T) {
	c, err := NewCollector(&ConstantSource{}, testConfig())
	require.NoError(t, err)

	_, _, err = c.EntropyBytes()
	assert.ErrorIs(t, err, ErrNoWindow)
}

func TestEntropyBytesConditioned(t *testing.T) {
	cfg := testConfig()
	cfg.Condition = true

	run := func() ([]byte, int) {
		src := NewGaussianSource(7, 512, 128, cfg.ADCBits)
		c, err := NewCollector(src, cfg)
		require.NoError(t, err)
		report, err := c.RunTestWindow(context.Background())
		require.NoError(t, err)
		require.True(t, report.Verdict.Pass())
		out, bits, err := c.EntropyBytes()
		require.NoError(t, err)
		return out, bits
	}

	out1, bits1 := run()
	out2, bits2 := run()

	assert.Len(t, out1, (bits1+7)/8, "conditioned output truncated to the entropy estimate")
	assert.LessOrEqual(t, len(out1), cfg.SampleCount)
	assert.Equal(t, bits1, bits2)
	assert.Equal(t, out1, out2, "same samples must condition to the same bytes")
}

// asyncSource fills its buffer from a goroutine after a short delay,
// exercising the poll loop the way a real DMA-backed sampler would.
type asyncSource struct {
	rng   *rand.Rand
	delay time.Duration
	full  atomic.Bool
}

func (s *asyncSource) BeginFill(buf []uint16) {
	s.full.Store(false)
	go func() {
		time.Sleep(s.delay)
		for i := range buf {
			buf[i] = uint16(s.rng.Uint32() & 1023)
		}
		s.full.Store(true)
	}()
}

func (s *asyncSource) Full() bool {
	return s.full.Load()
}

func TestRunTestWindowAsyncSource(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 50 * time.Microsecond
	src := &asyncSource{
		rng:   rand.New(rand.NewPCG(11, 17)),
		delay: 200 * time.Microsecond,
	}
	c, err := NewCollector(src, cfg)
	require.NoError(t, err)

	report, err := c.RunTestWindow(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Verdict.Pass(), "uniform source rejected: %s", report.Verdict)
}

// neverSource never completes a fill; only the context can end the
// window.
type neverSource struct{}

func (neverSource) BeginFill([]uint16) {}
func (neverSource) Full() bool         { return false }

func TestRunTestWindowContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Millisecond
	c, err := NewCollector(neverSource{}, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.RunTestWindow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, c.LastReport())
}

// TestWindowStateIsolation: a rejected window must not leak taint or
// counts into the next one.
func TestWindowStateIsolation(t *testing.T) {
	cfg := testConfig()
	gaussian := NewGaussianSource(3, 512, 128, cfg.ADCBits)
	src := &switchableSource{bad: &ConstantSource{Code: 512}, good: gaussian}
	c, err := NewCollector(src, cfg)
	require.NoError(t, err)

	report, err := c.RunTestWindow(context.Background())
	require.NoError(t, err)
	require.False(t, report.Verdict.Pass())

	src.useGood = true
	report, err = c.RunTestWindow(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Verdict.Pass(), "fresh window tainted by previous one: %s", report.Verdict)
}

type switchableSource struct {
	bad, good SampleSource
	useGood   bool
}

func (s *switchableSource) BeginFill(buf []uint16) {
	if s.useGood {
		s.good.BeginFill(buf)
	} else {
		s.bad.BeginFill(buf)
	}
}

func (s *switchableSource) Full() bool {
	if s.useGood {
		return s.good.Full()
	}
	return s.bad.Full()
}
