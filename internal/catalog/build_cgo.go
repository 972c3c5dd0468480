//go:build sqlite_vec
// +build sqlite_vec

package catalog

// This file is compiled when building with CGO and the sqlite_vec
// tag. It is kept for parity with environments that already build
// the rest of this module's ecosystem with CGO enabled (there is no
// vector extension use in this package; the tag is reused verbatim
// as the project's existing cgo/purego switch).
//
// Build command:
//   CGO_ENABLED=1 go build -tags sqlite_vec ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
