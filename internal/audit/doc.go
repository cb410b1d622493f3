// Package audit relays session audit records to a caller-supplied sink without
// blocking the session writer.
//
// # Components
//
//   - [Sink] consumes events (channel, JSON writer, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full
//     behavior.
//   - [Event] is the record: timestamp, type, user, role, outcome, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The session manager does that.
//   - Import mcloones or any sibling internal package.
package audit
