// Package async provides safe goroutine helpers for background tasks.
//
// SafeGo runs a function with panic recovery, an optional timeout and
// structured error logging, and reports the result on a channel:
//
//	done := async.SafeGo(ctx, logger, 0, "api server", func(ctx context.Context) error {
//		return srv.ListenAndServe()
//	})
//
// Every runs a function on a fixed interval until the context is done:
//
//	async.Every(ctx, logger, 15*time.Second, "db stats", func(ctx context.Context) error {
//		metrics.RecordDBStats(db.Stats())
//		return nil
//	})
package async
