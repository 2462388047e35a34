// Package opfs persists an embedded engine's storage.Backend to a browser's
// origin private file system (OPFS).
//
// The host offers only asynchronous directory and file handle lookups, plus
// one exclusive synchronous access handle per file, usable from a dedicated
// worker. Open performs the asynchronous walk once:
//
//	Virtualize -> ResolveDir -> Acquire
//
// and yields a Backend whose Len, Read, Write, SetLen and SyncData calls are
// synchronous, offset-addressed, and serialized by a single mutex over one
// File. The host is reached through the StorageManager, DirectoryHandle,
// FileHandle and SyncAccessHandle interfaces; see the jshost package for
// the browser implementation and hostfs for an emulation over afero.
//
// Host failures are translated into *Error values of a small Kind taxonomy,
// with the original failure kept as the cause. ToForeign rebuilds any error
// chain in the host's shape for handing back across the boundary.
package opfs
