package configs

import (
	"time"

	"github.com/spf13/viper"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/stats"
)

// SetDefaults sets default configuration values for all components.
// Threshold defaults are wide enough to pass a healthy mid-scale
// Gaussian source; real hardware ships a per-revision config file.
func SetDefaults(v *viper.Viper) {
	// Application defaults
	if !v.IsSet("verbose") {
		v.Set("verbose", false)
	}
	if !v.IsSet("log_level") {
		v.Set("log_level", "info")
	}

	// Sampler defaults
	if !v.IsSet("sampler.fft_size") {
		v.Set("sampler.fft_size", 256)
	}
	if !v.IsSet("sampler.sample_count") {
		v.Set("sampler.sample_count", 4096)
	}
	if !v.IsSet("sampler.adc_bits") {
		v.Set("sampler.adc_bits", 10)
	}
	if !v.IsSet("sampler.poll_interval") {
		v.Set("sampler.poll_interval", 100*time.Microsecond)
	}
	if !v.IsSet("sampler.condition") {
		v.Set("sampler.condition", false)
	}

	// Threshold defaults (normalized sample units)
	if !v.IsSet("thresholds.mean_min") {
		v.Set("thresholds.mean_min", 0.3)
	}
	if !v.IsSet("thresholds.mean_max") {
		v.Set("thresholds.mean_max", 0.7)
	}
	if !v.IsSet("thresholds.variance_min") {
		v.Set("thresholds.variance_min", 0.001)
	}
	if !v.IsSet("thresholds.variance_max") {
		v.Set("thresholds.variance_max", 0.2)
	}
	if !v.IsSet("thresholds.skewness_max") {
		v.Set("thresholds.skewness_max", 1.0)
	}
	if !v.IsSet("thresholds.kurtosis_min") {
		v.Set("thresholds.kurtosis_min", 1.0)
	}
	if !v.IsSet("thresholds.kurtosis_max") {
		v.Set("thresholds.kurtosis_max", 6.0)
	}
	if !v.IsSet("thresholds.entropy_min") {
		v.Set("thresholds.entropy_min", 5.0)
	}
	if !v.IsSet("thresholds.peak_bin_min") {
		v.Set("thresholds.peak_bin_min", 0)
	}
	if !v.IsSet("thresholds.peak_bin_max") {
		v.Set("thresholds.peak_bin_max", 256)
	}
	if !v.IsSet("thresholds.bandwidth_min") {
		v.Set("thresholds.bandwidth_min", 32)
	}
	if !v.IsSet("thresholds.autocorrelation_factor") {
		v.Set("thresholds.autocorrelation_factor", 1.0)
	}
	if !v.IsSet("thresholds.autocorrelation_skip") {
		v.Set("thresholds.autocorrelation_skip", 8)
	}
	if !v.IsSet("thresholds.psd_fraction") {
		v.Set("thresholds.psd_fraction", 0.05)
	}
	if !v.IsSet("thresholds.psd_repetitions") {
		v.Set("thresholds.psd_repetitions", 4)
	}

	// Selftest defaults
	if !v.IsSet("selftest.windows") {
		v.Set("selftest.windows", 4)
	}
	if !v.IsSet("selftest.source") {
		v.Set("selftest.source", "gaussian")
	}
	if !v.IsSet("selftest.seed") {
		v.Set("selftest.seed", 1)
	}
	if !v.IsSet("selftest.mean") {
		v.Set("selftest.mean", 512.0)
	}
	if !v.IsSet("selftest.stddev") {
		v.Set("selftest.stddev", 128.0)
	}
}

// GetDefaultConfig returns a Config struct with all default values set.
func GetDefaultConfig() *Config {
	return &Config{
		Verbose:    false,
		LogLevel:   "info",
		Sampler:    GetDefaultSamplerConfig(),
		Thresholds: GetDefaultThresholds(),
		Selftest:   GetDefaultSelftestConfig(),
	}
}

// GetDefaultSamplerConfig returns the default acquisition geometry.
func GetDefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		FFTSize:      256,
		SampleCount:  4096,
		ADCBits:      10,
		PollInterval: 100 * time.Microsecond,
		Condition:    false,
	}
}

// GetDefaultThresholds returns wide development thresholds.
func GetDefaultThresholds() stats.Thresholds {
	return stats.Thresholds{
		MeanMin:               0.3,
		MeanMax:               0.7,
		VarianceMin:           0.001,
		VarianceMax:           0.2,
		SkewnessMax:           1.0,
		KurtosisMin:           1.0,
		KurtosisMax:           6.0,
		EntropyMin:            5.0,
		PeakBinMin:            0,
		PeakBinMax:            256,
		BandwidthMin:          32,
		AutocorrelationFactor: 1.0,
		AutocorrelationSkip:   8,
		PSDFraction:           0.05,
		PSDRepetitions:        4,
	}
}

// GetDefaultSelftestConfig returns default selftest settings.
func GetDefaultSelftestConfig() SelftestConfig {
	return SelftestConfig{
		Windows: 4,
		Source:  "gaussian",
		Seed:    1,
		Mean:    512.0,
		Stddev:  128.0,
	}
}
