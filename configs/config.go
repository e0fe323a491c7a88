// Package configs defines the application configuration: sampler
// geometry, statistical thresholds, and logging/output settings.
// Thresholds are hardware-specific and derived empirically per device
// revision, so everything here is expected to be overridden from a
// config file for real hardware.
package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/stats"
)

// Config represents the application configuration.
type Config struct {
	// Application settings
	Verbose  bool   `mapstructure:"verbose"`
	LogLevel string `mapstructure:"log_level"`

	// Sampler geometry
	Sampler SamplerConfig `mapstructure:"sampler"`

	// Statistical pass thresholds
	Thresholds stats.Thresholds `mapstructure:"thresholds"`

	// Self-test execution settings
	Selftest SelftestConfig `mapstructure:"selftest"`
}

// SamplerConfig describes the noise-source acquisition geometry.
type SamplerConfig struct {
	// FFTSize is the complex FFT size; one acquisition block holds
	// 2*FFTSize samples. Must be a power of two.
	FFTSize int `mapstructure:"fft_size"`
	// SampleCount is the samples per test window. Must be a power of
	// two and a multiple of the block size.
	SampleCount int `mapstructure:"sample_count"`
	// ADCBits is the bit width of one raw sample code.
	ADCBits int `mapstructure:"adc_bits"`
	// PollInterval is the sleep between buffer-full polls.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Condition enables SHAKE256 conditioning of emitted entropy bytes.
	Condition bool `mapstructure:"condition"`
}

// SelftestConfig controls the selftest command.
type SelftestConfig struct {
	// Windows is the number of test windows to run.
	Windows int `mapstructure:"windows"`
	// Source selects the sample source: "gaussian", "constant" or
	// "file".
	Source string `mapstructure:"source"`
	// File is the raw sample capture replayed when Source is "file";
	// little-endian uint16 codes.
	File string `mapstructure:"file"`
	// Seed seeds the synthetic source.
	Seed uint64 `mapstructure:"seed"`
	// Mean and Stddev shape the synthetic Gaussian source, in raw ADC
	// code units.
	Mean   float64 `mapstructure:"mean"`
	Stddev float64 `mapstructure:"stddev"`
}

// LoadConfig loads configuration from viper.
func LoadConfig() (*Config, error) {
	config := &Config{}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the configuration. The power-of-two
// preconditions of the moment reduction and the FFT are enforced here,
// at configuration time, rather than left to misbehave later.
func ValidateConfig(config *Config) error {
	s := config.Sampler

	if s.FFTSize < 16 || s.FFTSize&(s.FFTSize-1) != 0 {
		return fmt.Errorf("sampler fft_size must be a power of two >= 16, got %d", s.FFTSize)
	}

	if s.SampleCount < 2 || s.SampleCount&(s.SampleCount-1) != 0 {
		return fmt.Errorf("sampler sample_count must be a power of two, got %d", s.SampleCount)
	}

	if s.SampleCount%(2*s.FFTSize) != 0 {
		return fmt.Errorf("sampler sample_count %d must be a multiple of the block size %d",
			s.SampleCount, 2*s.FFTSize)
	}

	if s.ADCBits < 1 || s.ADCBits > 16 {
		return fmt.Errorf("sampler adc_bits must be in [1, 16], got %d", s.ADCBits)
	}

	if s.PollInterval < 0 {
		return fmt.Errorf("sampler poll_interval cannot be negative")
	}

	if err := config.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	if config.Selftest.Windows < 1 {
		return fmt.Errorf("selftest windows must be positive")
	}

	switch config.Selftest.Source {
	case "gaussian", "constant":
	case "file":
		if config.Selftest.File == "" {
			return fmt.Errorf("selftest source \"file\" requires a file path")
		}
	default:
		return fmt.Errorf("selftest source must be gaussian, constant or file, got %q", config.Selftest.Source)
	}

	return nil
}
