package internal

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// datadogLogger sends the tracer own messages through the application logger.
type datadogLogger struct {
	logger zerolog.Logger
}

func (dl datadogLogger) Log(msg string) {
	dl.logger.Info().Str("component", "datadog").Msg(msg)
}

// traceLogger decorates the logger with the ids of the active span so the log lines of a request are linked to its
// trace. With tracing disabled the logger is returned untouched.
func traceLogger(enabled bool) func(context.Context, zerolog.Logger) (zerolog.Logger, error) {
	return func(ctx context.Context, logger zerolog.Logger) (zerolog.Logger, error) {
		if !enabled {
			return logger, nil
		}

		span, ok := tracer.SpanFromContext(ctx)
		if !ok {
			return logger, errors.New("could not find a span inside the context")
		}

		return logger.With().Dict("dd", zerolog.Dict().
			Str("trace_id", strconv.FormatUint(span.Context().TraceID(), 10)).
			Str("span_id", strconv.FormatUint(span.Context().SpanID(), 10)),
		).Logger(), nil
	}
}
