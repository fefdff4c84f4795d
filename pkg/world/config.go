package world

import (
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config is the world configuration loaded from the environment.
type Config struct {
	// ChunkCapacity is the number of entities a chunk holds (1 to 128).
	ChunkCapacity int `env:"ARCHQUERY_CHUNK_CAPACITY" envDefault:"128"`

	// MaskCapacity is the number of query masks the world hands out (1 to 1024).
	MaskCapacity int `env:"ARCHQUERY_MASK_CAPACITY" envDefault:"1024"`

	// CheckCache verifies every chunk cache rebuild in development builds.
	CheckCache bool `env:"ARCHQUERY_CHECK_CACHE" envDefault:"false"`
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse world config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate world config")
	}

	return cfg, nil
}

// validate performs validation on the loaded configuration.
func (cfg *Config) validate() error {
	if cfg.ChunkCapacity < 1 || cfg.ChunkCapacity > query.MaxChunkCapacity {
		return eris.Errorf("chunk capacity must be between 1 and %d, got %d", query.MaxChunkCapacity, cfg.ChunkCapacity)
	}
	if cfg.MaskCapacity < 1 || cfg.MaskCapacity > query.MaxMasks {
		return eris.Errorf("mask capacity must be between 1 and %d, got %d", query.MaxMasks, cfg.MaskCapacity)
	}
	return nil
}

func (cfg *Config) applyToOptions(opt *Options) {
	opt.ChunkCapacity = cfg.ChunkCapacity
	opt.MaskCapacity = cfg.MaskCapacity
	opt.CheckCache = cfg.CheckCache
}

// Options are the options used to create a World. Zero values keep the defaults.
type Options struct {
	ChunkCapacity int
	MaskCapacity  int
	CheckCache    bool
	Logger        *zerolog.Logger
}

func newDefaultOptions() Options {
	return Options{
		ChunkCapacity: query.MaxChunkCapacity,
		MaskCapacity:  query.MaxMasks,
		CheckCache:    false,
		Logger:        nil,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.ChunkCapacity != 0 {
		opt.ChunkCapacity = newOpt.ChunkCapacity
	}
	if newOpt.MaskCapacity != 0 {
		opt.MaskCapacity = newOpt.MaskCapacity
	}
	if newOpt.CheckCache {
		opt.CheckCache = true
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
}

// validate checks that all options are within range.
func (opt *Options) validate() error {
	if opt.ChunkCapacity < 1 || opt.ChunkCapacity > query.MaxChunkCapacity {
		return eris.Errorf("chunk capacity must be between 1 and %d", query.MaxChunkCapacity)
	}
	if opt.MaskCapacity < 1 || opt.MaskCapacity > query.MaxMasks {
		return eris.Errorf("mask capacity must be between 1 and %d", query.MaxMasks)
	}
	return nil
}
