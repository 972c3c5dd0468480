package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Member is one workspace-member unit as reported by the Go
// toolchain: a package rooted under the workspace, with the set of
// Go source files the ingestor should parse.
type Member struct {
	Name       string // import path, doubling as the unit name
	Version    string // empty for the main module's own packages
	Dir        string // absolute, as reported by go list
	GoFiles    []string
	ModulePath string
}

// goListPackage mirrors the subset of "go list -json" output this
// package consumes.
type goListPackage struct {
	ImportPath string   `json:"ImportPath"`
	Dir        string   `json:"Dir"`
	GoFiles    []string `json:"GoFiles"`
	Module     *struct {
		Path    string `json:"Path"`
		Version string `json:"Version"`
	} `json:"Module"`
}

// DiscoverMembers enumerates the workspace's member units by
// shelling out to the Go toolchain, the Go-native analogue of the
// external workspace descriptor tool named in spec §4.3 step 1.
func DiscoverMembers(ctx context.Context, workspaceRoot string) ([]Member, error) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "go", "list", "-json", "./...")
	cmd.Dir = workspaceRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ingest: go list failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	dec := json.NewDecoder(&stdout)
	var members []Member
	for dec.More() {
		var pkg goListPackage
		if err := dec.Decode(&pkg); err != nil {
			return nil, fmt.Errorf("ingest: decode go list output: %w", err)
		}
		if len(pkg.GoFiles) == 0 {
			continue
		}

		m := Member{
			Name: pkg.ImportPath,
			Dir:  pkg.Dir,
		}
		if pkg.Module != nil {
			m.Version = pkg.Module.Version
			m.ModulePath = pkg.Module.Path
		}
		for _, f := range pkg.GoFiles {
			m.GoFiles = append(m.GoFiles, filepath.Join(pkg.Dir, f))
		}
		members = append(members, m)
	}
	return members, nil
}

// ModuleRoot reads the module path out of go.mod at workspaceRoot, or
// returns an empty string if there is none (a workspace need not be
// a Go module to be indexed, e.g. a GOPATH-style tree).
func ModuleRoot(workspaceRoot string) (string, error) {
	content, err := os.ReadFile(filepath.Join(workspaceRoot, "go.mod"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("ingest: read go.mod: %w", err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module")), nil
		}
	}
	return "", nil
}
