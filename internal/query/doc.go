// Package query implements the resolution stages of spec §4.5-4.6:
// find, doc, ls, status, and diag, all driven off the catalog store
// and ordered by the single stable total order defined in §4.5.
package query
