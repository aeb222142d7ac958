package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithTable adds table context to the logger.
func (l *Logger) WithTable(table string) *Logger {
	return &Logger{logger: l.logger.With().Str("table", table).Logger()}
}

// WithStream adds a stream kind (insert/sample) to the logger.
func (l *Logger) WithStream(kind string) *Logger {
	return &Logger{logger: l.logger.With().Str("stream", kind).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) { l.logger.Fatal().Err(err).Msg(msg) }

// InsertAccepted logs a single successfully-inserted item.
func (l *Logger) InsertAccepted(table string, itemKey uint64, numChunks int) {
	l.logger.Debug().
		Str("table", table).
		Uint64("item_key", itemKey).
		Int("num_chunks", numChunks).
		Msg("item inserted")
}

// RetentionViolation logs the fatal retention contract violation of §4.3.
func (l *Logger) RetentionViolation(table string, wantKeep, pending int) {
	l.logger.Error().
		Str("table", table).
		Int("keep_chunk_keys", wantKeep).
		Int("pending_chunks", pending).
		Msg("retention contract violated by caller")
}

// SampleServed logs a batch of samples drawn from a table.
func (l *Logger) SampleServed(table string, count int, rateLimited bool) {
	l.logger.Debug().
		Str("table", table).
		Int("count", count).
		Bool("rate_limited", rateLimited).
		Msg("samples served")
}

// ChunkEvicted logs a chunk dropping its last strong reference.
func (l *Logger) ChunkEvicted(chunkKey uint64) {
	l.logger.Debug().Uint64("chunk_key", chunkKey).Msg("chunk evicted from store")
}

// CheckpointSaved logs a successful checkpoint.
func (l *Logger) CheckpointSaved(path string, tables int) {
	l.logger.Info().Str("path", path).Int("tables", tables).Msg("checkpoint saved")
}

// ConnectionEstablished logs a new in-process handshake or stream peer.
func (l *Logger) ConnectionEstablished(remoteAddr string) {
	l.logger.Info().Str("remote_addr", remoteAddr).Msg("client connected")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
