package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("dispense-api")
	assert.Equal(t, "dispense-api", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig("dispense-api"))
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
