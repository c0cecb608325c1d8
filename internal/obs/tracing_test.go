package obs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_DisabledReturnsUsableNoopTracer(t *testing.T) {
	p, err := NewProvider(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())

	_, span := p.Tracer().Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_EnabledBuildsARealExporterWithoutDialing(t *testing.T) {
	// otlptracehttp.New only configures the exporter; it does not dial the
	// collector until the first export, so this stays fast and offline.
	p, err := NewProvider(context.Background(), TracingConfig{Enabled: true, OTLPEndpoint: "127.0.0.1:4318"})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.Shutdown(ctx) // no collector listening; a timeout error here is acceptable
}
