// Package fingerprint computes the 16-byte content hashes the catalog
// uses for symbol identity, file digests, and tool/workspace
// fingerprints. All hashes are hex-encoded blake2b-128 digests, stable
// across runs and platforms for identical input bytes; file digests
// carry a "blake2b:" prefix ahead of the hex.
package fingerprint
