package hnsw

import (
	"context"
	"io"
	"log/slog"
)

// Logger wraps *slog.Logger with HNSW-specific context builders.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps an existing *slog.Logger.
func NewLogger(l *slog.Logger) *Logger {
	return &Logger{Logger: l}
}

// NewJSONLogger creates a Logger writing JSON records to w at the given level.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger creates a Logger writing human-readable records to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards all output. It is the default when no logger is
// configured via WithLogger.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithLabel returns a logger with the label field attached.
func (l *Logger) WithLabel(label uint64) *Logger {
	return &Logger{Logger: l.Logger.With("label", label)}
}

// WithK returns a logger with the k field attached.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{Logger: l.Logger.With("k", k)}
}

// WithDimension returns a logger with the dimension field attached.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{Logger: l.Logger.With("dimension", dim)}
}

// WithCount returns a logger with a count field attached.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{Logger: l.Logger.With("count", count)}
}

// LogInsert logs the outcome of an AddPoint call at Debug on success, Warn on failure.
func (l *Logger) LogInsert(ctx context.Context, label uint64, err error) {
	log := l.WithLabel(label)
	if err != nil {
		log.WarnContext(ctx, "insert failed", "error", err)
		return
	}
	log.DebugContext(ctx, "insert ok")
}

// LogBatchInsert logs the outcome of an AddBatch call.
func (l *Logger) LogBatchInsert(ctx context.Context, count int, err error) {
	log := l.WithCount(count)
	if err != nil {
		log.WarnContext(ctx, "batch insert failed", "error", err)
		return
	}
	log.DebugContext(ctx, "batch insert ok")
}

// LogSearch logs the outcome of a SearchKnn call.
func (l *Logger) LogSearch(ctx context.Context, k int, err error) {
	log := l.WithK(k)
	if err != nil {
		log.WarnContext(ctx, "search failed", "error", err)
		return
	}
	log.DebugContext(ctx, "search ok")
}

// LogDelete logs the outcome of a MarkDeleted/UnmarkDeleted call.
func (l *Logger) LogDelete(ctx context.Context, label uint64, unmark bool, err error) {
	log := l.WithLabel(label)
	op := "delete"
	if unmark {
		op = "undelete"
	}
	if err != nil {
		log.WarnContext(ctx, op+" failed", "error", err)
		return
	}
	log.DebugContext(ctx, op+" ok")
}

// LogSnapshot logs the outcome of a SaveIndex call.
func (l *Logger) LogSnapshot(ctx context.Context, path string, err error) {
	log := l.Logger.With("path", path)
	if err != nil {
		log.ErrorContext(ctx, "save failed", "error", err)
		return
	}
	log.InfoContext(ctx, "save ok")
}

// LogRecovery logs the outcome of a LoadIndex call.
func (l *Logger) LogRecovery(ctx context.Context, path string, err error) {
	log := l.Logger.With("path", path)
	if err != nil {
		log.ErrorContext(ctx, "load failed", "error", err)
		return
	}
	log.InfoContext(ctx, "load ok")
}
