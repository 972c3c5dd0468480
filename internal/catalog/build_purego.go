//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package catalog

// This file is compiled when building without CGO, or with the
// purego tag. It uses the pure-Go SQLite driver, requiring no C
// compiler and allowing straightforward cross-compilation — the
// default for ctd, which is expected to run wherever the indexed
// workspace lives without a toolchain-matched build step.
//
// Build command:
//   CGO_ENABLED=0 go build -tags purego ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
