package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant=vault,broken,=empty")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "vault",
	}, headers)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "k=v")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := FromEnv("monitord", "staging")
	require.Equal(t, "monitord", cfg.ServiceName)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.Equal(t, map[string]string{"k": "v"}, cfg.Headers)
	require.False(t, cfg.Insecure)
	require.InDelta(t, 0.25, cfg.SampleRatio, 1e-9)
	require.Contains(t, cfg.sampler().Description(), "TraceIDRatioBased")

	require.Equal(t, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(), Config{}.sampler().Description())
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "vaultctl"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
