package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for linking operations.
const TracerName = "linking"

// Span attribute keys
const (
	AttrEmailID     = "email_id"
	AttrEntityID    = "entity_id"
	AttrEntityType  = "entity_type"
	AttrBatchID     = "batch_id"
	AttrConfidence  = "confidence"
	AttrCandidates  = "candidates"
	AttrLinks       = "links"
	AttrSuggestions = "suggestions"
)

// Span names
const (
	SpanProcessEmail = "linking.process_email"
	SpanMatch        = "linking.match"
	SpanPersist      = "linking.persist"
)

// Tracer provides distributed tracing for linking operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new linking tracer.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartEmailSpan starts a root span for processing one email.
func (t *Tracer) StartEmailSpan(ctx context.Context, emailID uuid.UUID, batchID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanProcessEmail,
		trace.WithAttributes(
			attribute.String(AttrEmailID, emailID.String()),
		),
	)
	if batchID != "" {
		span.SetAttributes(attribute.String(AttrBatchID, batchID))
	}
	return ctx, span
}

// StartMatchSpan starts a span for the matcher pass.
func (t *Tracer) StartMatchSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanMatch)
}

// StartPersistSpan starts a span for the transactional persist phase.
func (t *Tracer) StartPersistSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPersist)
}

// EndSpan finishes a span, recording err if non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
