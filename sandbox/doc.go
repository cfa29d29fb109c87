// Package sandbox confines filesystem access to a single root directory.
//
// The sandbox package maps untrusted relative paths onto a configured root
// and rejects anything that would land outside of it. The check is lexical
// and has no side effects, so it can run before any I/O. On top of the
// resolver, the Explorer implements the file manager operations (list, read,
// write, create, delete, upload) and tar.gz import/export, all going through
// the resolver first.
//
// Usage:
//
//	resolver, err := sandbox.NewResolver("/data")
//	abs, err := resolver.Resolve("site/../index.html") // "/data/index.html"
//	_, err = resolver.Resolve("../etc/passwd")         // ErrOutsideRoot
//
//	explorer := sandbox.NewExplorer(logger, resolver)
//	listing, err := explorer.List("site")
package sandbox
