// Package audit buffers security events and relays them to a sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, zap, no-op).
//   - [Dispatcher]: bounded async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, principal, department, IP and metadata.
//
// The package does not decide which events to emit; the engine does.
// It must not import libauth or any sibling internal package.
package audit
