// Package session persists server-side auth sessions in Redis.
//
// # Binary encoding
//
// A session is stored as one compact blob. The refresh hash sits at a fixed
// offset directly after the version byte so the rotation script can swap it
// without parsing the rest of the record.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] record. It does not sign tokens
// or decide who may sign in; the identity provider does.
package session
