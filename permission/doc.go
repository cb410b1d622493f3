// Package permission maps capability names onto bits of a 64-bit mask and composes
// role masks from them.
//
// Bit positions are assigned by [Registry.Register] in registration order and are
// stable once the registry is frozen. Roles are frozen the same way; after
// [RoleManager.Freeze] lookups are read-only and safe for concurrent use.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import mcloones or any sibling package.
package permission
