package statsd

import (
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyAddress(t *testing.T) {
	err := Init("", nil)
	require.Error(t, err)
	assert.IsType(t, &ddstatsd.NoOpClient{}, Client())
}

func TestNoOpClient(t *testing.T) {
	assert.NotPanics(t, func() {
		Incr("query.compiled", "test:true")
		EmitTiming("query.cache_rebuild", time.Now())
	})
}

func TestInitAndClose(t *testing.T) {
	// UDP clients do not need a listener.
	require.NoError(t, Init("127.0.0.1:8125", []string{"env:test"}))
	assert.NotPanics(t, func() { Incr("query.compiled") })
	require.NoError(t, Close())
	assert.IsType(t, &ddstatsd.NoOpClient{}, Client())
}
