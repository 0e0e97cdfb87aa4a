package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Optional timeout enforcement (timeout <= 0 runs until fn returns)
// - Error logging
//
// The returned channel receives fn's error (or the recovered panic) and is
// then closed. Callers that do not care may ignore it.
//
// Example:
//
//	done := SafeGo(ctx, logger, 0, "api server", func(ctx context.Context) error {
//	    return srv.ListenAndServe()
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)

	go func() {
		defer close(done)

		ctx, cancel := parentCtx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		}
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": r,
					"stack": string(debug.Stack()),
					"task":  taskName,
				}).Error("PANIC recovered")
				done <- fmt.Errorf("panic in %s: %v", taskName, r)
			}
		}()

		if err := fn(ctx); err != nil {
			// caller decides whether this is fatal
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
			done <- err
		}
	}()

	return done
}

// Every runs fn every interval until ctx is done. Errors are logged and the
// loop continues.
func Every(ctx context.Context, logger *observability.Logger, interval time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(ctx, logger, 0, taskName, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logger.WithError(err).WithField("task", taskName).Warn("periodic task failed")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
}
