package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-core/instrumentation"
)

// Observer records a span and a storage metric for each backend operation.
// The zero value records nothing.
type Observer struct {
	Backend         string
	tracer          trace.Tracer
	instrumentation *instrumentation.Instrumentation
}

// NewObserver creates an observer for backend. inst may be nil.
func NewObserver(backend string, inst *instrumentation.Instrumentation) Observer {
	o := Observer{Backend: backend, instrumentation: inst}
	if inst != nil {
		o.tracer = inst.Tracer("storage")
	}
	return o
}

// Start begins operation and returns a func that must be called with the
// operation's error once it completes.
func (o Observer) Start(ctx context.Context, operation string) (context.Context, func(error)) {
	if o.tracer == nil {
		return ctx, func(error) {}
	}

	ctx, span := o.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(attribute.String("operation", operation)))
	instrumentation.AddStorageAttributes(span, operation, o.Backend)
	start := time.Now()

	return ctx, func(err error) {
		defer span.End()

		result := "success"
		switch {
		case IsNotFound(err):
			result = "not_found"
		case err != nil:
			result = "error"
			instrumentation.RecordError(span, err)
		default:
			instrumentation.SetSpanSuccess(span)
		}
		durationMs := float64(time.Since(start).Microseconds()) / 1000
		o.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
	}
}

// IsNotFound reports whether err is one of the not-found sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrAuthorizationCodeNotFound) ||
		errors.Is(err, ErrRefreshTokenNotFound) ||
		errors.Is(err, ErrAccessTokenNotFound) ||
		errors.Is(err, ErrScopeNotFound) ||
		errors.Is(err, ErrAuthorizationNotFound)
}
