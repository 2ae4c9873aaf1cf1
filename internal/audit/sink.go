package audit

import (
	"context"

	"ms-gatepass/internal/models"
	"ms-gatepass/internal/validate"
)

// MultiSink fans one validation event out to several sinks (typically the
// database row plus the Kafka stream). The first failure wins; later sinks
// still run so a broken broker does not silence the database trail.
type MultiSink []validate.AuditSink

func (m MultiSink) RecordValidation(ctx context.Context, ev models.ValidationEvent) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.RecordValidation(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
