package lrucache

import (
	"github.com/caarlos0/env/v11"
	"github.com/facebookgo/stackerr"
)

// DefaultMaxSize bounds caches and registries configured with size 0.
const DefaultMaxSize = 500

// Config configures one cache namespace.
//
// MaxSize 0 means the registry default; a cache with no capacity at
// all is configured via SetMaxSize(0) after construction. Nil report
// toggles inherit the registry defaults.
type Config struct {
	ValueType          string
	MaxSize            int
	ReportLRUEvictions *bool
	ReportClears       *bool
}

func (c Config) Validate() error {
	if c.ValueType == "" {
		return stackerr.Wrap(ErrValueTypeRequired)
	}
	if c.MaxSize < 0 {
		return stackerr.Wrap(ErrNegativeSize)
	}
	return nil
}

// resolve applies registry defaults to unset fields.
func (c Config) resolve(rc RegistryConfig) (maxSize int, reportEvictions, reportClears bool) {
	maxSize = c.MaxSize
	if maxSize == 0 {
		maxSize = rc.DefaultMaxSize
	}
	reportEvictions = rc.ReportLRUEvictions
	if c.ReportLRUEvictions != nil {
		reportEvictions = *c.ReportLRUEvictions
	}
	reportClears = rc.ReportClears
	if c.ReportClears != nil {
		reportClears = *c.ReportClears
	}
	return
}

// RegistryConfig holds the registry wide defaults. The zero value is
// valid: size 0 falls back to DefaultMaxSize and both report toggles
// are off. DefaultRegistryConfig and RegistryConfigFromEnv turn the
// report toggles on.
type RegistryConfig struct {
	DefaultMaxSize     int  `env:"LRUCACHE_DEFAULT_MAX_SIZE" envDefault:"500"`
	ReportLRUEvictions bool `env:"LRUCACHE_REPORT_LRU_EVICTIONS" envDefault:"true"`
	ReportClears       bool `env:"LRUCACHE_REPORT_CLEARS" envDefault:"true"`
}

func (c RegistryConfig) Validate() error {
	if c.DefaultMaxSize < 0 {
		return stackerr.Wrap(ErrNegativeSize)
	}
	return nil
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		DefaultMaxSize:     DefaultMaxSize,
		ReportLRUEvictions: true,
		ReportClears:       true,
	}
}

// RegistryConfigFromEnv parses the LRUCACHE_* environment variables.
func RegistryConfigFromEnv() (RegistryConfig, error) {
	conf, err := env.ParseAs[RegistryConfig]()
	if err != nil {
		return RegistryConfig{}, stackerr.Wrap(err)
	}
	return conf, nil
}
