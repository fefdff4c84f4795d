package world

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 128, cfg.ChunkCapacity)
		assert.Equal(t, 1024, cfg.MaskCapacity)
		assert.False(t, cfg.CheckCache)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ARCHQUERY_CHUNK_CAPACITY", "16")
		t.Setenv("ARCHQUERY_MASK_CAPACITY", "64")
		t.Setenv("ARCHQUERY_CHECK_CACHE", "true")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, Config{ChunkCapacity: 16, MaskCapacity: 64, CheckCache: true}, cfg)

		var opts Options
		cfg.applyToOptions(&opts)
		assert.Equal(t, 16, opts.ChunkCapacity)
		assert.Equal(t, 64, opts.MaskCapacity)
		assert.True(t, opts.CheckCache)
	})

	t.Run("invalid chunk capacity", func(t *testing.T) {
		t.Setenv("ARCHQUERY_CHUNK_CAPACITY", "129")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("unparsable value", func(t *testing.T) {
		t.Setenv("ARCHQUERY_MASK_CAPACITY", "lots")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{ChunkCapacity: 1, MaskCapacity: 1}},
		{name: "max values", cfg: Config{ChunkCapacity: 128, MaskCapacity: 1024}},
		{name: "zero chunk capacity", cfg: Config{ChunkCapacity: 0, MaskCapacity: 1}, wantErr: true},
		{name: "mask capacity too large", cfg: Config{ChunkCapacity: 1, MaskCapacity: 1025}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	t.Parallel()

	opts := newDefaultOptions()
	opts.apply(Options{})
	assert.Equal(t, newDefaultOptions(), opts, "zero values keep the defaults")

	logger := zerolog.Nop()
	opts.apply(Options{ChunkCapacity: 8, CheckCache: true, Logger: &logger})
	assert.Equal(t, 8, opts.ChunkCapacity)
	assert.Equal(t, 1024, opts.MaskCapacity)
	assert.True(t, opts.CheckCache)
	assert.Same(t, &logger, opts.Logger)
	require.NoError(t, opts.validate())

	_, err := New(Options{ChunkCapacity: 200})
	require.Error(t, err)
}
