// Isnad-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Isnad semantic convention attributes.
var (
	// Attestation attributes
	AttrAttestationID = attribute.Key("isnad.attestation.id")
	AttrSubject       = attribute.Key("isnad.subject")
	AttrWitness       = attribute.Key("isnad.witness")
	AttrTask          = attribute.Key("isnad.task")

	// Trust scoring attributes
	AttrTrustScore = attribute.Key("isnad.trust.score")
	AttrTrustScope = attribute.Key("isnad.trust.scope")
	AttrTrustHops  = attribute.Key("isnad.trust.hops")

	// Revocation attributes
	AttrRevocationTarget = attribute.Key("isnad.revocation.target")
	AttrRevokedBy        = attribute.Key("isnad.revocation.revoked_by")
	AttrRevocationScope  = attribute.Key("isnad.revocation.scope")

	// Scanner attributes
	AttrScanAgentID  = attribute.Key("isnad.scan.agent_id")
	AttrScanPlatform = attribute.Key("isnad.scan.platform")
	AttrScanURL      = attribute.Key("isnad.scan.url")
	AttrScanAlive    = attribute.Key("isnad.scan.alive")

	// Policy attributes
	AttrPolicyName     = attribute.Key("isnad.policy.name")
	AttrPolicyDecision = attribute.Key("isnad.policy.decision")
)

// AttestationOperation creates attributes for ledger attestation operations.
func AttestationOperation(id, subject, witness, task string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAttestationID.String(id),
		AttrSubject.String(subject),
		AttrWitness.String(witness),
		AttrTask.String(task),
	}
}

// TrustOperation creates attributes for trust score computations.
func TrustOperation(subject, scope string, score float64, hops int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSubject.String(subject),
		AttrTrustScope.String(scope),
		AttrTrustScore.Float64(score),
		AttrTrustHops.Int(hops),
	}
}

// RevocationOperation creates attributes for revocation processing.
func RevocationOperation(targetID, revokedBy, scope string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRevocationTarget.String(targetID),
		AttrRevokedBy.String(revokedBy),
		AttrRevocationScope.String(scope),
	}
}

// ScanOperation creates attributes for platform scan cycles.
func ScanOperation(agentID, platform, url string, alive bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrScanAgentID.String(agentID),
		AttrScanPlatform.String(platform),
		AttrScanURL.String(url),
		AttrScanAlive.Bool(alive),
	}
}

// PolicyOperation creates attributes for policy evaluations.
func PolicyOperation(name, decision string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPolicyName.String(name),
		AttrPolicyDecision.String(decision),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
