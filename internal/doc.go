// Package internal holds helpers private to the mcloones module: random session
// identifiers, refresh token encoding and one-shot opaque tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed fixed-window login throttle
//   - appconfig: server configuration loading and validation
//   - httpapi: the terminal HTTP API served by cmd/mcloones
//
// # What this package must NOT do
//
//   - Export types that appear in the public mcloones API.
package internal
