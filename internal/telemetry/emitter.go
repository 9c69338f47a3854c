package telemetry

import (
	"context"
	"errors"

	"reservo/authcore/internal/telemetry/domain"
)

// EventEmitter emits security events (e.g. to Kafka or OTel Logs). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// MultiEmitter fans a single event out to several emitters. Every emitter is
// attempted; errors are joined.
type MultiEmitter []EventEmitter

// Emit sends the event to each emitter in order.
func (m MultiEmitter) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
