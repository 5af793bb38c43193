// Package storage is the file layer beneath nxguard's guards: it opens data
// files in a given mode, reads them into a [tree.Tree], writes trees back and
// reports modification times.
//
// Files are YAML documents written atomically (temp file plus rename) through
// an [afero.Fs], so readers never observe a half-written tree. Every flush
// leaves the file with an mtime strictly later than before, even on
// filesystems with coarse timestamps, because mtime is the change signal the
// guards rely on.
//
// Storage knows nothing about locking; callers that need mutual exclusion go
// through nxfile.
package storage
