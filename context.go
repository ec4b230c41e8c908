package nexlog

import (
	"context"

	"github.com/google/uuid"
)

// ContextMetadata carries request-scoped identifiers through a
// context.Context so every log call on that path can attach them.
type ContextMetadata struct {
	RequestID      string
	CorrelationID  string
	TraceID        string
	SpanID         string
	UserID         string
	SessionID      string
	Operation      string
	Function       string
	Depth          int
	ParentFunction string
}

type contextKey struct{}

// WithContextMetadata returns a context carrying cm. The value is stored by
// copy; later mutation of cm does not affect the context.
func WithContextMetadata(ctx context.Context, cm ContextMetadata) context.Context {
	return context.WithValue(ctx, contextKey{}, cm)
}

// ContextMetadataFrom extracts the metadata stored on ctx, if any.
func ContextMetadataFrom(ctx context.Context) (ContextMetadata, bool) {
	cm, ok := ctx.Value(contextKey{}).(ContextMetadata)
	return cm, ok
}

// ClearContextMetadata returns a context whose log metadata is reset to the
// zero value, shadowing anything set higher up the chain.
func ClearContextMetadata(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ContextMetadata{})
}

// AddCorrelation returns a context whose metadata carries the given
// correlation id. An empty id generates a fresh UUID.
func AddCorrelation(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	cm, _ := ContextMetadataFrom(ctx)
	cm.CorrelationID = id
	return WithContextMetadata(ctx, cm)
}

// NewRequestContext starts a request scope: a generated request id plus the
// operation name.
func NewRequestContext(ctx context.Context, operation string) context.Context {
	cm, _ := ContextMetadataFrom(ctx)
	cm.RequestID = uuid.NewString()
	cm.Operation = operation
	return WithContextMetadata(ctx, cm)
}

// attach merges context metadata into a metadata record, allocating the
// record if needed.
func (cm ContextMetadata) attach(md *Metadata) *Metadata {
	if md == nil {
		md = CaptureMetadata(2)
	}
	ctxCopy := cm
	md.Context = &ctxCopy
	return md
}
