// Package app wires the configured entropy pipeline together for the
// CLI commands.
package app

import (
	"fmt"
	"os"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/configs"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/internal/logging"
	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/entropy"
)

// Context holds the runtime context shared by commands.
type Context struct {
	Config *configs.Config
	Logger logging.Logger
}

// NewContext loads and validates configuration and sets up logging.
func NewContext() (*Context, error) {
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := config.LogLevel
	if config.Verbose {
		level = "debug"
	}
	logger := logging.New(level)

	logger.Debug("application context initialized", logging.Fields{
		"fft_size":     config.Sampler.FFTSize,
		"sample_count": config.Sampler.SampleCount,
		"adc_bits":     config.Sampler.ADCBits,
	})

	return &Context{Config: config, Logger: logger}, nil
}

// BuildCollector constructs a collector for the given sample source
// from the loaded configuration.
func (c *Context) BuildCollector(src entropy.SampleSource) (*entropy.Collector, error) {
	return entropy.NewCollector(src, entropy.Config{
		FFTSize:      c.Config.Sampler.FFTSize,
		SampleCount:  c.Config.Sampler.SampleCount,
		ADCBits:      c.Config.Sampler.ADCBits,
		Thresholds:   c.Config.Thresholds,
		PollInterval: c.Config.Sampler.PollInterval,
		Condition:    c.Config.Sampler.Condition,
		Logger:       c.Logger,
	})
}

// BuildSource constructs the selftest sample source named in the
// configuration.
func (c *Context) BuildSource() (entropy.SampleSource, error) {
	st := c.Config.Selftest
	switch st.Source {
	case "gaussian":
		return entropy.NewGaussianSource(st.Seed, st.Mean, st.Stddev, c.Config.Sampler.ADCBits), nil
	case "constant":
		return &entropy.ConstantSource{Code: uint16(st.Mean)}, nil
	case "file":
		f, err := os.Open(st.File)
		if err != nil {
			return nil, fmt.Errorf("open sample capture: %w", err)
		}
		return entropy.NewFileSource(f, c.Config.Sampler.ADCBits), nil
	default:
		return nil, fmt.Errorf("unknown sample source %q", st.Source)
	}
}
