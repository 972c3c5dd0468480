package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"runtime"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// ToolVersion identifies this build of the ingestor, the first
// component of the §4.1 tool-environment tuple.
const ToolVersion = "ct-go-v0.1.0"

// Features lists this build's active extraction feature flags, the
// third component of the tool-environment tuple.
var Features = []string{"go-impls", "go-generics", "status-classification"}

// TargetTriple reports the GOOS/GOARCH pair this binary runs on, the
// fourth component of the tool-environment tuple.
func TargetTriple() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// CurrentFingerprint computes the digest of the tool-environment tuple
// currently running: ToolVersion, the go/parser+go/ast version
// surface (stood in by runtime.Version()), Features, and
// TargetTriple. SymbolID folds this in so that a tool upgrade which
// changes extraction semantics produces a fresh identity space rather
// than silently aliasing onto stale rows.
func CurrentFingerprint() (string, error) {
	return ToolEnvironment(ToolVersion, runtime.Version(), Features, TargetTriple())
}

type blake2bDigest struct {
	h hash.Hash
}

func newDigest() (*blake2bDigest, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: init blake2b: %w", err)
	}
	return &blake2bDigest{h}, nil
}

func (d *blake2bDigest) writeString(s string) {
	_, _ = d.h.Write([]byte(s))
	_, _ = d.h.Write([]byte{0}) // separator so adjacent fields can't collide
}

func (d *blake2bDigest) writeUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = d.h.Write(buf[:])
}

func (d *blake2bDigest) hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// FileDigest computes the content digest of a file, prefixed with its
// algorithm tag so the catalog can recognize the format if it ever
// changes.
func FileDigest(content []byte) (string, error) {
	d, err := newDigest()
	if err != nil {
		return "", err
	}
	_, _ = d.h.Write(content)
	return "blake2b:" + d.hex(), nil
}

// SymbolID computes the stable 16-byte identity of a symbol from its
// definition-level components, per the catalog's identity scheme:
// (tool_fingerprint, canonical_path, kind, file_digest, span_start,
// span_end).
func SymbolID(canonicalPath, kind, fileDigest string, spanStart, spanEnd int) (string, error) {
	d, err := newDigest()
	if err != nil {
		return "", err
	}
	envFP, err := CurrentFingerprint()
	if err != nil {
		return "", err
	}
	d.writeString(envFP)
	d.writeString(canonicalPath)
	d.writeString(kind)
	d.writeString(fileDigest)
	d.writeUint32(uint32(spanStart))
	d.writeUint32(uint32(spanEnd))
	return d.hex(), nil
}

// DefHash computes the change-detection hash over a symbol's
// signature plus the literal span text, used to detect definition
// changes without recomputing symbol_id.
func DefHash(signature, spanText string) (string, error) {
	d, err := newDigest()
	if err != nil {
		return "", err
	}
	d.writeString(signature)
	d.writeString(spanText)
	return d.hex(), nil
}

// ToolEnvironment computes the 16-byte digest of the tool/environment
// tuple: tool version, a hash of the go/parser+go/ast version surface
// (stood in by runtime.Version() at the call site), the active build
// feature set, and the target triple (GOOS/GOARCH).
func ToolEnvironment(toolVersion, extractorHash string, features []string, targetTriple string) (string, error) {
	d, err := newDigest()
	if err != nil {
		return "", err
	}
	d.writeString(toolVersion)
	d.writeString(extractorHash)
	sorted := append([]string(nil), features...)
	sort.Strings(sorted)
	for _, f := range sorted {
		d.writeString(f)
	}
	d.writeString(targetTriple)
	return d.hex(), nil
}

// Workspace computes the digest of a workspace as a whole: member
// unit names and roots, sorted for determinism regardless of
// discovery order.
func Workspace(unitNamesAndRoots map[string]string) (string, error) {
	d, err := newDigest()
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(unitNamesAndRoots))
	for name := range unitNamesAndRoots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.writeString(name)
		d.writeString(unitNamesAndRoots[name])
	}
	return d.hex(), nil
}
