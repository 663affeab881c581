// Package logger builds *slog.Logger values the same way across the module.
//
// New takes functional options: output format (JSON or text), level,
// static attributes and ContextExtractor callbacks that add attributes
// taken from the context of each record:
//
//	log := logger.New(
//		logger.FromConfig(cfg),
//		logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
//			id := storage.OriginFromContext(ctx)
//			return logger.TabID(id), id != ""
//		}),
//	)
//
// FromConfig and WithEnvironment pick per-environment defaults: text at
// debug level for development, JSON at info for staging and production.
//
// The attribute helpers (Component, TabID, Room, Event, Attempt, Error, ...)
// keep key names consistent between packages. Error and Errors return an
// empty attribute for nil errors, so they can be passed unconditionally.
package logger
