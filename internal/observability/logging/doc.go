// Package logging configures log/slog for the worker and carries loggers and
// correlation ids through context.Context.
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	ctx = logging.WithCorrelationID(ctx, uuid.NewString())
//	ctx = logging.WithLogger(ctx, logging.WithCorrelation(ctx, logger))
//	logging.FromContext(ctx).Info("dispatch started")
package logging
