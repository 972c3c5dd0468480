// Package ignore parses and matches .ctignore files (spec §4.9):
// per-line patterns naming a unit (optionally with a version upper
// bound), a dotted module path, or a filesystem glob. Symbols
// matched by any pattern are never deeply expanded — bundles carry
// only their name and signature.
package ignore
