// Package ingest implements the workspace ingestion pipeline (spec
// §4.3): discover workspace member units, extract their symbols,
// impl blocks, and sparse references, and stage them into a side
// catalog store ready for atomic commit.
//
// The source material treats the workspace descriptor and the
// documentation extractor as external collaborators invoked as
// subprocesses. In this Go-native rendition both collaborators are
// replaced by the Go toolchain itself: "go list -json" stands in for
// the workspace descriptor, and go/parser+go/ast — already resident
// in-process — stand in for the external extractor.
package ingest
