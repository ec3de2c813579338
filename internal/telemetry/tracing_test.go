package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
)

func TestSetupWithoutExport(t *testing.T) {
	cfg := config.Default().Telemetry
	cfg.TracingEnabled = false

	p, err := Setup(context.Background(), &cfg, logger.NewNop())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid(), "spans are recorded locally")
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampling(t *testing.T) {
	assert.Equal(t, 1.0, sampling(0))
	assert.Equal(t, 1.0, sampling(3))
	assert.Equal(t, 0.25, sampling(0.25))
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
