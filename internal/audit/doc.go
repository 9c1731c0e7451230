// Package audit delivers login and logout events to a pluggable sink without
// blocking the request path.
//
// # Components
//
//   - [Sink] is implemented by event consumers (channel, JSON writer, logger, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is the record: timestamp, type, user, IP, request id, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit. That belongs to the Engine.
//   - Import sessionauth or any sibling internal package other than logging.
package audit
