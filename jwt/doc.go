// Package jwt issues and verifies the short-lived access tokens handed to the app
// after a password or OAuth sign-in.
//
// # Architecture boundaries
//
// This package signs and parses tokens only. Whether the server-side session behind
// a token is still alive is decided by the identity provider.
package jwt
