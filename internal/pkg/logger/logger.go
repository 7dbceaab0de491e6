package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var root zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	root = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init names the process-wide logger. Call once from main.
func Init(serviceName string) {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	root = zerolog.New(os.Stderr).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx returns a logger enriched with the trace/span IDs found in ctx, so log
// lines can be joined with Jaeger traces.
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &root
	}
	l := root.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}

// L returns the bare process logger.
func L() *zerolog.Logger {
	return &root
}
