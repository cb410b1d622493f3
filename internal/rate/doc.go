// Package rate implements the Redis-backed login throttle used by the identity
// provider.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Keys:
//   - mc:rl:login:<email>: failed logins per account
//   - mc:rl:ip:<addr>: failed logins per client address (optional)
//
// A missing counter never reveals whether an account exists.
package rate
