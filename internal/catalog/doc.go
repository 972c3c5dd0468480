// Package catalog implements the on-disk relational store of the
// symbol catalog (spec §4.2): a single-writer/multi-reader SQLite
// file holding units, files, symbols, impl blocks, and sparse
// references, plus the meta table of schema/tool/workspace
// bookkeeping. Reindexing builds a side file and commits it over the
// live catalog with an fsync-then-rename, so a crash mid-swap always
// leaves one of the two generations fully intact.
package catalog
