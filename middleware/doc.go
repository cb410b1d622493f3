// Package middleware gates HTTP handlers on the session state.
//
// # Screen gates
//
//   - [RequireSession]: signed-in actor; redirects to the login page otherwise.
//   - [RequireCapability]: actor whose view grants a capability.
//   - [RequireRole]: actor holding one of the listed roles.
//
// Each gate reads one [mcloones.AuthorizationView] per request, answers 503
// while the initial identity check is running, and stores the view in the
// request context for [ViewFromContext].
//
// # Token gates
//
//   - [RequireAccessToken]: stateless bearer access-token verification.
//   - [RequireLiveSession]: bearer token plus a server-side session lookup, so
//     revoked sessions are refused before the token expires.
//
// # What this package must NOT do
//
//   - Change the session; it only reads views and tokens.
package middleware
