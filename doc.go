// Package mcloones owns the session lifecycle and role-derived authorization of the
// McLoone's restaurant app.
//
// Two pieces make up the core:
//
//   - [Manager] keeps the single authoritative [Session] in sync with an external
//     [IdentityProvider], fetches the actor's [Profile] from a [ProfileStore], and
//     announces session start/end through cancellable [Subscription] handles.
//   - The authorization gate, [Manager.CurrentView], is a pure projection of the
//     current Session into an [AuthorizationView] that screens consult to decide what
//     to render, which actions to expose and where to redirect.
//
// # Architecture boundaries
//
// The package consumes the identity provider and profile store through interfaces only.
// Concrete backends live in sibling packages (identity, profile) and import this one;
// this package never imports them.
//
// # What this package must NOT do
//
//   - Navigate. A session teardown is signalled with a [SessionEnded] event and the
//     consumer decides how to redirect.
//   - Mutate a Session outside the Manager's writer lock.
//   - Perform I/O from [Manager.CurrentView].
package mcloones
