// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

// SLogger is the structured-logging seam used throughout this package.
//
// The seam decouples the code from [*slog.Logger] so tests can capture
// records and callers can substitute their own implementation.
//
// This package uses two log levels:
//   - Info for lifecycle and protocol events (channel create, state change,
//     connect, TLS handshake, HTTP round trip, DNS exchange)
//   - Debug for fine-grained events (continuation scheduling, body I/O)
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger] to use.
//
// The default discards all records. The library never writes to
// stdout/stderr on its own; pass a [*slog.Logger] to emit logs.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

// discardSLogger is a no-op [SLogger] that discards all log messages.
type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {
	// nothing
}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {
	// nothing
}
