// Package telemetry exports consent lifecycle events to OTel logs, Kafka,
// and Loki. Emission is best-effort and never affects the consent flow.
package telemetry

import (
	"context"

	"migrant-health-access/backend/internal/telemetry/domain"
)

// EventEmitter emits consent events (e.g. to OTel Logs or Kafka). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// MultiEmitter fans one event out to several emitters. Each emitter gets the
// event even when an earlier one fails; the first error is returned.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event *domain.Event) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
