// Package password hashes account secrets with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes made with weaker parameters so the
// identity provider can re-hash after the next successful sign-in.
package password
