// Package logging builds the process slog logger.
//
// New returns a *slog.Logger writing JSON or text at the configured level.
// The handler is wrapped so that request-scoped fields stored in the context
// (request ID, user, session) are added to every record logged with a
// *Context method:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "tool evaluated", "tool", name)
package logging
