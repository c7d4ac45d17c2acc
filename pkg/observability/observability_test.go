package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "isnad-node", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Should not fail even when disabled
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	attrs := AttestationOperation("a1b2c3d4e5f60718", "agent:aaaa", "agent:bbbb", "translation")

	newCtx, finish := p.TrackOperation(ctx, "ledger.add", attrs...)
	require.NotNil(t, newCtx)

	time.Sleep(1 * time.Millisecond)
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "ledger.revoke")
	finish(errors.New("verification failed"))
	// Should not panic
}

func TestRecordMetrics(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()

	// These should not panic when provider is disabled
	p.RecordRequest(ctx, attribute.String("op", "add"))
	p.RecordError(ctx, errors.New("bad signature"), attribute.String("op", "add"))
	p.RecordDuration(ctx, 100*time.Millisecond, attribute.String("op", "add"))
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "scoring.trust")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestAttestationOperation(t *testing.T) {
	attrs := AttestationOperation("a1b2c3d4e5f60718", "agent:aaaa", "agent:bbbb", "translation")
	require.Len(t, attrs, 4)
	require.Equal(t, "isnad.attestation.id", string(attrs[0].Key))
	require.Equal(t, "a1b2c3d4e5f60718", attrs[0].Value.AsString())
}

func TestTrustOperation(t *testing.T) {
	attrs := TrustOperation("agent:aaaa", "translation", 0.35, 2)
	require.Len(t, attrs, 4)
	require.Equal(t, "isnad.trust.score", string(attrs[2].Key))
	require.Equal(t, 0.35, attrs[2].Value.AsFloat64())
}

func TestScanOperation(t *testing.T) {
	attrs := ScanOperation("agent:aaaa", "forge", "https://forge.example.com/a", true)
	require.Len(t, attrs, 4)
	require.Equal(t, "isnad.scan.alive", string(attrs[3].Key))
	require.True(t, attrs[3].Value.AsBool())
}

func TestSpanFromContext(t *testing.T) {
	span := SpanFromContext(context.Background())
	require.NotNil(t, span) // Returns a no-op span if none
}

func TestAddSpanEvent(t *testing.T) {
	// Should not panic
	AddSpanEvent(context.Background(), "attestation.added", attribute.String("id", "x"))
}

func TestSetSpanStatus(t *testing.T) {
	// Should not panic
	SetSpanStatus(context.Background(), errors.New("boom"))
	SetSpanStatus(context.Background(), nil)
}
