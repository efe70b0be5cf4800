package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry syncs buffered log entries before process exit. Prometheus
// is pull-based, so metrics need no flush. Call after in-flight requests drain.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
