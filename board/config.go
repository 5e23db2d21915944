package board

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"adcore/chips/simadc"
	"adcore/kernel"
)

// Driver variants a board can expose on the ADC driver number.
const (
	VariantDedicated   = "dedicated"
	VariantVirtualized = "virtualized"
)

// Environment variables read by LoadEnv.
const (
	EnvConfig  = "ADC_BOARD_CONFIG"
	EnvVariant = "ADC_BOARD_VARIANT"
	EnvDevice  = "ADC_BOARD_DEVICE"
	EnvBaud    = "ADC_BOARD_BAUD"
	EnvDebug   = "ADC_BOARD_DEBUG"
)

// SourceConfig describes the input wired to one channel.
type SourceConfig struct {
	Kind string `json:"kind"` // sine, ramp or constant

	// sine
	OffsetUV    int32   `json:"offset_uv,omitempty"`
	AmplitudeUV int32   `json:"amplitude_uv,omitempty"`
	FreqHz      float64 `json:"freq_hz,omitempty"`

	// ramp
	MinUV    int32  `json:"min_uv,omitempty"`
	MaxUV    int32  `json:"max_uv,omitempty"`
	PeriodUS uint32 `json:"period_us,omitempty"`

	// constant
	UV int32 `json:"uv,omitempty"`
}

// Config describes a simulated board.
type Config struct {
	Variant        string         `json:"variant"`
	Channels       int            `json:"channels"`
	ResolutionBits uint           `json:"resolution_bits"`
	ReferenceMV    uint32         `json:"reference_mv"`
	BufferSamples  int            `json:"buffer_samples"`
	ProcessMemory  int            `json:"process_memory"`
	ConversionUS   uint32         `json:"conversion_us"`
	Sources        []SourceConfig `json:"sources,omitempty"`

	// Stepped boards only advance time on advance_clock.
	Stepped bool `json:"stepped"`
	Debug   bool `json:"debug"`

	// Serial link used by adc-board; empty means stdio.
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`
}

// LoadConfig parses a JSON configuration and fills in defaults.
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, fmt.Errorf("parse board config: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfigFile reads and parses a JSON configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board config: %w", err)
	}
	return LoadConfig(data)
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Variant == "" {
		config.Variant = VariantDedicated
	}
	if config.Channels == 0 {
		config.Channels = 6
	}
	if config.ResolutionBits == 0 {
		config.ResolutionBits = 12
	}
	if config.ReferenceMV == 0 {
		config.ReferenceMV = 3300
	}
	if config.BufferSamples == 0 {
		config.BufferSamples = 128
	}
	if config.ProcessMemory == 0 {
		config.ProcessMemory = kernel.DefaultMemorySize
	}
	if config.ConversionUS == 0 {
		config.ConversionUS = 2
	}
	if config.Baud == 0 {
		config.Baud = 250000
	}

	// Unconfigured channels get a sine centered on half the reference,
	// each at a different frequency.
	midUV := int32(config.ReferenceMV) * 500
	for i := len(config.Sources); i < config.Channels; i++ {
		config.Sources = append(config.Sources, SourceConfig{
			Kind:        "sine",
			OffsetUV:    midUV,
			AmplitudeUV: midUV / 2,
			FreqHz:      float64(i + 1),
		})
	}
	for i := range config.Sources {
		if config.Sources[i].Kind == "" {
			config.Sources[i].Kind = "sine"
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantDedicated, VariantVirtualized:
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
	if c.Channels < 1 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if len(c.Sources) < c.Channels {
		return fmt.Errorf("%d channels but %d sources", c.Channels, len(c.Sources))
	}
	if c.ResolutionBits > 16 {
		return fmt.Errorf("resolution_bits must be at most 16, got %d", c.ResolutionBits)
	}
	if c.BufferSamples < 1 {
		return fmt.Errorf("buffer_samples must be positive, got %d", c.BufferSamples)
	}
	if c.ProcessMemory < 1 {
		return fmt.Errorf("process_memory must be positive, got %d", c.ProcessMemory)
	}
	for i, src := range c.Sources[:c.Channels] {
		switch src.Kind {
		case "sine", "ramp", "constant":
		default:
			return fmt.Errorf("channel %d: unknown source kind %q", i, src.Kind)
		}
	}
	return nil
}

// source builds the simulated input described by s.
func (s SourceConfig) source() simadc.Source {
	switch s.Kind {
	case "ramp":
		return simadc.Ramp{
			MinUV:       s.MinUV,
			MaxUV:       s.MaxUV,
			PeriodTicks: kernel.TimerFromUS(s.PeriodUS),
		}
	case "constant":
		return simadc.Constant{UV: s.UV}
	default:
		return simadc.Sine{
			OffsetUV:    s.OffsetUV,
			AmplitudeUV: s.AmplitudeUV,
			FreqHz:      s.FreqHz,
		}
	}
}

// LoadEnv builds a configuration from the environment. Variables already
// set in the process environment take precedence over the given .env
// files. ADC_BOARD_CONFIG names a JSON file to start from; the remaining
// variables override single fields.
func LoadEnv(files ...string) (*Config, error) {
	fileVars := map[string]string{}
	if len(files) > 0 {
		vars, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("read env files: %w", err)
		}
		fileVars = vars
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}

	config := DefaultConfig()
	if path, ok := lookup(EnvConfig); ok && path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if v, ok := lookup(EnvVariant); ok && v != "" {
		config.Variant = v
	}
	if v, ok := lookup(EnvDevice); ok {
		config.Device = v
	}
	if v, ok := lookup(EnvBaud); ok && v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvBaud, err)
		}
		config.Baud = baud
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvDebug, err)
		}
		config.Debug = debug
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
