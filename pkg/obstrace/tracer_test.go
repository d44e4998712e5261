package obstrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/config"
)

func TestInit_DisabledInstallsNoop(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), config.TelemetryConfig{TracingEnabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_EnabledBuildsProviderAndShutsDownCleanly(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), config.TelemetryConfig{
		TracingEnabled: true,
		ServiceName:    "govpipe-test",
		SamplingRatio:  1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, tp)

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "test-span")
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestTracer_ReturnsNamedTracer(t *testing.T) {
	tr := Tracer("govpipe/test")
	assert.NotNil(t, tr)
}
