// Package preflight provides readiness checks for the filesystem paths and
// upstream hosts that gamecatalog depends on.
//
// These checks run in two contexts:
//   - The CLI "fetch" command calls CheckDirectoryAccess on the data
//     directory and refuses to start when it is not writable.
//   - The CLI "check" command runs RunAll and prints every result.
package preflight
