package stats

import (
	"fmt"
	"strings"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/internal/logging"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
)

// Verdict is a bitmask of failed statistical tests. Zero means the
// window passed everything; any non-zero value means "reject this
// window's entropy", with the set bits identifying which properties
// failed.
type Verdict uint32

const (
	VerdictMean Verdict = 1 << iota
	VerdictVariance
	VerdictSkewness
	VerdictKurtosis
	VerdictEntropy
	VerdictPeakFrequency
	VerdictBandwidth
	VerdictAutocorrelation
)

// Pass reports whether every test passed.
func (v Verdict) Pass() bool {
	return v == 0
}

func (v Verdict) String() string {
	if v == 0 {
		return "pass"
	}
	names := []struct {
		bit  Verdict
		name string
	}{
		{VerdictMean, "mean"},
		{VerdictVariance, "variance"},
		{VerdictSkewness, "skewness"},
		{VerdictKurtosis, "kurtosis"},
		{VerdictEntropy, "entropy"},
		{VerdictPeakFrequency, "peak_frequency"},
		{VerdictBandwidth, "bandwidth"},
		{VerdictAutocorrelation, "autocorrelation"},
	}
	var failed []string
	for _, n := range names {
		if v&n.bit != 0 {
			failed = append(failed, n.name)
		}
	}
	return strings.Join(failed, ",")
}

// Thresholds holds the pass bounds for every statistical test. They
// are hardware-specific, derived empirically per device revision, and
// supplied through configuration. Mean and variance bounds are in
// normalized sample units (codes scaled into [0, 1)); entropy is bits
// per sample; peak and bandwidth are in PSD bin counts.
type Thresholds struct {
	MeanMin     float64 `mapstructure:"mean_min"`
	MeanMax     float64 `mapstructure:"mean_max"`
	VarianceMin float64 `mapstructure:"variance_min"`
	VarianceMax float64 `mapstructure:"variance_max"`
	SkewnessMax float64 `mapstructure:"skewness_max"`
	KurtosisMin float64 `mapstructure:"kurtosis_min"`
	KurtosisMax float64 `mapstructure:"kurtosis_max"`
	EntropyMin  float64 `mapstructure:"entropy_min"`

	PeakBinMin   int `mapstructure:"peak_bin_min"`
	PeakBinMax   int `mapstructure:"peak_bin_max"`
	BandwidthMin int `mapstructure:"bandwidth_min"`

	// AutocorrelationFactor bounds the maximum autocorrelation as a
	// multiple of the window variance.
	AutocorrelationFactor float64 `mapstructure:"autocorrelation_factor"`
	// AutocorrelationSkip is the number of low lags excluded from the
	// autocorrelation scan.
	AutocorrelationSkip int `mapstructure:"autocorrelation_skip"`

	// PSDFraction is the relative level (of the peak bin) defining the
	// bandwidth threshold; PSDRepetitions is the run length of
	// below-threshold bins marking a spectral edge.
	PSDFraction    float64 `mapstructure:"psd_fraction"`
	PSDRepetitions int     `mapstructure:"psd_repetitions"`
}

// Validate checks threshold consistency.
func (t Thresholds) Validate() error {
	if t.MeanMin > t.MeanMax {
		return fmt.Errorf("stats: mean_min exceeds mean_max")
	}
	if t.VarianceMin > t.VarianceMax {
		return fmt.Errorf("stats: variance_min exceeds variance_max")
	}
	if t.KurtosisMin > t.KurtosisMax {
		return fmt.Errorf("stats: kurtosis_min exceeds kurtosis_max")
	}
	if t.SkewnessMax < 0 {
		return fmt.Errorf("stats: skewness_max must be non-negative")
	}
	if t.PeakBinMin > t.PeakBinMax {
		return fmt.Errorf("stats: peak_bin_min exceeds peak_bin_max")
	}
	if t.PSDFraction <= 0 || t.PSDFraction >= 1 {
		return fmt.Errorf("stats: psd_fraction must be in (0, 1)")
	}
	if t.PSDRepetitions < 1 {
		return fmt.Errorf("stats: psd_repetitions must be at least 1")
	}
	if t.AutocorrelationFactor <= 0 {
		return fmt.Errorf("stats: autocorrelation_factor must be positive")
	}
	return nil
}

// Report carries one window's verdict and the statistics behind it.
// Kappa3 and Kappa4 are the raw third and fourth central moments; the
// skewness and kurtosis tests are applied to them in algebraically
// rearranged, division-free form.
type Report struct {
	Verdict  Verdict
	Mean     fixed.Value
	Variance fixed.Value
	Kappa3   fixed.Value
	Kappa4   fixed.Value
	Entropy  fixed.Value

	PeakBin            int
	Bandwidth          int
	MaxAutocorrelation fixed.Value
}

// Suite evaluates one window's histogram and PSD against the
// configured thresholds, producing a Report. Each test fails
// independently into its own verdict bit; any arithmetic overflow
// raised while deriving a value force-fails the tests that depend on
// it.
type Suite struct {
	env *fixed.Env
	log logging.Logger

	meanMin, meanMax fixed.Value
	varMin, varMax   fixed.Value
	skewSq           fixed.Value // skewness_max squared
	kurtMin, kurtMax fixed.Value
	entropyMin       fixed.Value
	acFactor         fixed.Value
	psdFraction      fixed.Value

	peakMin, peakMax int
	bwMin            int
	psdReps          int
	acSkip           int
}

// NewSuite builds a suite from validated thresholds. The Env must be
// the same one used by the histogram and PSD, so taint from any stage
// of the window is visible here.
func NewSuite(t Thresholds, env *fixed.Env, log logging.Logger) (*Suite, error) {
	if env == nil {
		return nil, fmt.Errorf("stats: nil arithmetic env")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Suite{
		env:         env,
		log:         log.WithFields(logging.Fields{"component": "test_suite"}),
		meanMin:     fixed.FromFloat(t.MeanMin),
		meanMax:     fixed.FromFloat(t.MeanMax),
		varMin:      fixed.FromFloat(t.VarianceMin),
		varMax:      fixed.FromFloat(t.VarianceMax),
		skewSq:      fixed.FromFloat(t.SkewnessMax * t.SkewnessMax),
		kurtMin:     fixed.FromFloat(t.KurtosisMin),
		kurtMax:     fixed.FromFloat(t.KurtosisMax),
		entropyMin:  fixed.FromFloat(t.EntropyMin),
		acFactor:    fixed.FromFloat(t.AutocorrelationFactor),
		psdFraction: fixed.FromFloat(t.PSDFraction),
		peakMin:     t.PeakBinMin,
		peakMax:     t.PeakBinMax,
		bwMin:       t.BandwidthMin,
		psdReps:     t.PSDRepetitions,
		acSkip:      t.AutocorrelationSkip,
	}, nil
}

// Evaluate derives all statistics for the window held in h and p and
// checks them against the thresholds. The Env is expected to carry any
// overflow from the PSD accumulation phase when Evaluate is entered;
// it is cleared between stages so taint can be attributed to the tests
// that depend on it.
func (s *Suite) Evaluate(h *Histogram, p *PSD) *Report {
	r := &Report{}

	// Overflow signalled while blocks were being accumulated poisons
	// everything derived from the PSD.
	psdTainted := s.env.Overflow()

	s.env.Clear()
	r.Mean = h.Mean()
	r.Variance = h.CentralMoment(r.Mean, 2)
	r.Kappa3 = h.CentralMoment(r.Mean, 3)
	r.Kappa4 = h.CentralMoment(r.Mean, 4)
	momentsTainted := s.env.Overflow() || h.Saturated()

	s.env.Clear()
	r.Entropy = h.EstimateEntropy()
	entropyTainted := s.env.Overflow() || h.Saturated()

	s.env.Clear()
	peak, bw := p.EstimateBandwidth(s.psdFraction, s.psdReps)
	r.PeakBin = peak
	r.Bandwidth = bw
	bwTainted := psdTainted || s.env.Overflow()

	s.env.Clear()
	p.Autocorrelation()
	r.MaxAutocorrelation = p.MaxAutocorrelation(s.acSkip)
	acTainted := psdTainted || momentsTainted || s.env.Overflow()

	if momentsTainted || r.Mean < s.meanMin || r.Mean > s.meanMax {
		r.Verdict |= VerdictMean
	}
	if momentsTainted || r.Variance < s.varMin || r.Variance > s.varMax {
		r.Verdict |= VerdictVariance
	}

	// |skewness| <= max is checked as kappa3^2 <= max^2 * variance^3,
	// avoiding the division and square root of the direct form.
	s.env.Clear()
	varSq := s.env.Mul(r.Variance, r.Variance)
	varCube := s.env.Mul(varSq, r.Variance)
	skewLHS := s.env.Mul(r.Kappa3, r.Kappa3)
	skewRHS := s.env.Mul(s.skewSq, varCube)
	if momentsTainted || s.env.Overflow() || skewLHS > skewRHS {
		r.Verdict |= VerdictSkewness
	}

	// kurtosis in [min, max] is checked as kappa4 against
	// min*variance^2 and max*variance^2.
	s.env.Clear()
	varSq = s.env.Mul(r.Variance, r.Variance)
	kurtLo := s.env.Mul(s.kurtMin, varSq)
	kurtHi := s.env.Mul(s.kurtMax, varSq)
	if momentsTainted || s.env.Overflow() || r.Kappa4 < kurtLo || r.Kappa4 > kurtHi {
		r.Verdict |= VerdictKurtosis
	}

	if entropyTainted || r.Entropy < s.entropyMin {
		r.Verdict |= VerdictEntropy
	}
	if bwTainted || r.PeakBin < s.peakMin || r.PeakBin > s.peakMax {
		r.Verdict |= VerdictPeakFrequency
	}
	if bwTainted || r.Bandwidth < s.bwMin {
		r.Verdict |= VerdictBandwidth
	}

	s.env.Clear()
	acLimit := s.env.Mul(s.acFactor, r.Variance)
	if acTainted || s.env.Overflow() || r.MaxAutocorrelation > acLimit {
		r.Verdict |= VerdictAutocorrelation
	}

	if !r.Verdict.Pass() {
		s.log.Debug("window rejected", logging.Fields{
			"failed":   r.Verdict.String(),
			"mean":     r.Mean.Float(),
			"variance": r.Variance.Float(),
			"entropy":  r.Entropy.Float(),
			"peak_bin": r.PeakBin,
		})
	}

	return r
}
