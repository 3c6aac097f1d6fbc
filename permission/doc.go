// Package permission maps operator roles to the console areas they may
// open.
//
// A [Registry] assigns each permission name a bit in a 64-bit [Mask]; the
// highest bit is optionally reserved as a root grant that satisfies every
// check. A [Policy] composes role masks from permission names once at
// startup and answers Allows(role, permission) lock-free afterwards.
//
// # What this package must NOT do
//
//   - Access the network or any store.
//   - Import goConsole; roles arrive as plain strings.
package permission
