// Package config loads and resolves ctd/ct's runtime configuration
// (spec §6.5): transport selection, endpoint paths, cache/catalog
// locations, and the resource ceilings the query engine and
// expansion planner enforce. Values come from ct.toml, CT_*
// environment variables, and built-in defaults, in that precedence
// order, mirroring the original implementation's config.rs.
package config
