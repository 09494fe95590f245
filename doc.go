// SPDX-License-Identifier: GPL-3.0-or-later

// Package grpc implements client channel bootstrap: minting a security
// connector from credentials, resolving the target, and connecting to
// it over HTTP/2.
//
// # Channel Bootstrap
//
// The package is built around two entry points:
//
//	func SecureChannelCreate(cfg, creds, target, args, reserved, logger) (*Channel, error)
//	func InsecureChannelCreate(cfg, target, args, reserved, logger) (*Channel, error)
//
// Both return a [*Channel] that resolves and connects in the
// background while the caller proceeds. Failures follow a two-level
// taxonomy. Recoverable configuration failures (a security connector
// smuggled into args, credentials that cannot mint a connector)
// return a lame channel and a nil error: a channel with the full
// [*Channel] surface whose [Channel.Transport] always fails with a
// fixed [*Status]. Only resolver construction failure returns a nil
// channel and an error, because no usable handle can exist without a
// resolver.
//
// The bootstrap sequence mirrors its inputs' ownership: credentials
// mint a [SecurityConnector] plus an optional replacement
// configuration table, the connector is merged into the table under
// [ArgSecurityConnector], a [ClientChannelFactory] is built around
// the connector, and the factory creates the channel. The bootstrap
// then drops every stake it acquired, leaving the channel holding
// exactly the stakes it needs.
//
// # Shared Ownership
//
// Values shared across components implement [RefValue]: explicit
// Retain/Release stakes with destruction when the last stake drops.
// [*Args] tables own one stake per [ArgKindRef] entry, acquired by
// [NewArgs] and [Args.CopyAndAdd] and dropped by [Args.Destroy].
// Dropping a stake twice panics rather than corrupting shared state.
//
// A live channel owns its private args copy (which keeps the security
// connector alive), its [Resolver], and one factory stake. Call
// [Channel.Close] exactly once; it releases all three.
//
// # Continuation Scheduling
//
// Operations never invoke callbacks inline. Work that becomes ready
// during an operation is enqueued on an [*ExecCtx] and drained by the
// operation's owner with [ExecCtx.Flush] at a well-defined point.
// This keeps call stacks bounded and means no callback runs while
// bootstrap state is mid-mutation: the channel's watcher goroutine,
// for instance, only launches when the bootstrap flushes its
// [*ExecCtx] on the way out.
//
// # Target Resolution
//
// Targets use the "scheme://authority/endpoint" syntax parsed by
// [ParseTarget]. The [*ResolverRegistry] maps schemes to builders and
// pre-registers "dns", "ipv4", "ipv6", and "unix"; bare "host:port"
// targets default to DNS. The DNS resolver queries over UDP, TCP,
// DNS-over-TLS, or DNS-over-HTTPS, selected with the
// [ArgDNSTransport] entry; there is no implicit transport fallback.
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible
// with [log/slog]). By default logging is disabled; pass a custom
// [*slog.Logger] to enable it. Error classification is configurable
// via [ErrClassifier].
//
// Components emit two kinds of structured log events:
//
//   - Span events (*Start/*Done pairs): record operation lifecycle
//     including timing and success/failure, covering channel create,
//     connect, TLS handshake, HTTP round trips, and DNS exchanges.
//
//   - Wire observations (e.g., dnsQuery/dnsResponse): capture
//     protocol-level messages for protocol debugging.
//
// Network events share a common set of fields: localAddr, remoteAddr,
// protocol, and t (timestamp). Completion events (*Done) additionally
// include t0 (start time), err, and errClass. I/O-level and
// scheduling events are emitted at [slog.LevelDebug]; all other
// events use [slog.LevelInfo]. The structured log format is
// compatible with the RBMK data format specification (see
// https://github.com/rbmk-project/rbmk) and may evolve in minor ways
// as these packages mature.
//
// Use [NewSpanID] to generate a unique, time-ordered identifier
// (UUIDv7) for each bootstrap, then attach it to the logger with
// [*slog.Logger.With] so all entries from that channel share the same
// spanID.
//
// Aggregate telemetry goes through [Collector]: a no-op by default,
// with [NewPrometheusCollector] providing counters for bootstrap
// outcomes, connection attempts, and state transitions.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the
// context they receive. The caller controls timeouts externally via
// [context.WithTimeout] or [context.WithDeadline]. Handshake stages
// bind the context to the connection being secured, so cancellation
// closes the connection and interrupts blocking I/O immediately.
// [Channel.Close] cancels the channel's internal context, which
// aborts any in-flight connection attempt the same way.
package grpc
