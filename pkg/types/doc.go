// Package types holds the value types shared by the catalog, ingest,
// query, expansion, and daemon packages: the symbol data model of the
// on-disk schema and the wire shapes of the daemon protocol.
package types
