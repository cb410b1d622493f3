// Package identity implements [mcloones.IdentityProvider] on top of Redis.
//
// RedisProvider plays the part of a hosted auth backend running inside the
// process: it owns user accounts, server-side sessions, access and refresh
// tokens, email confirmation and OAuth redirects, and it reports every state
// change through OnAuthStateChange the way a hosted SDK would.
//
// # Keys
//
//   - <prefix>:user:<id>        account hash (email, hash, role, full_name, confirmed)
//   - <prefix>:email:<email>    email → id index
//   - <prefix>:confirm:<digest> pending confirmation token → id
//   - <prefix>:oauth:<digest>   pending OAuth state (provider, verifier, redirect)
//   - <prefix>:sess:*           server sessions (see package session)
//
// # Revocation
//
// RevokeUser deletes every server session of a user and publishes the user id on
// the revocation channel. Each instance running WatchRevocations emits
// SIGNED_OUT when the revoked user is the one it holds.
package identity
