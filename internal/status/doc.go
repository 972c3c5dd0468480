// Package status implements the implementation-status classifier of
// spec §4.4: regular-expression matching over the text of a function
// or method's line span, classifying it as implemented, unimplemented,
// or todo. The span text is cut from file content already held in
// memory; it is not streamed from disk.
//
// The source material's sentinel is Rust's unimplemented!()/todo!()
// macros; the idiomatic Go analogue kept here is a panic call whose
// literal argument names the same thing, since Go has no standalone
// "not yet implemented" primitive.
package status
