package ignore

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/ct/pkg/types"
)

// unitRule matches a unit by name, optionally bounding it to versions
// at or below an upper bound written as "name < X".
type unitRule struct {
	name       string
	versionMax string // empty: no bound
}

// pathRule matches a dotted canonical path by prefix.
type pathRule struct {
	prefix string
}

// Matcher holds the compiled rules of a .ctignore file. Zero value is
// a matcher with no rules; it never matches anything.
type Matcher struct {
	units []unitRule
	paths []pathRule
	glob  *gitignore.GitIgnore
}

// Load reads and compiles the .ctignore file at path. A missing file
// is not an error: it yields an empty Matcher.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, fmt.Errorf("ignore: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	m := &Matcher{}
	var globLines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch classifyLine(line) {
		case lineUnit:
			m.units = append(m.units, parseUnitRule(line))
		case linePath:
			m.paths = append(m.paths, pathRule{prefix: line})
		default:
			globLines = append(globLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ignore: scan %s: %w", path, err)
	}

	if len(globLines) > 0 {
		m.glob = gitignore.CompileIgnoreLines(globLines...)
	}
	return m, nil
}

type lineKind int

const (
	lineUnit lineKind = iota
	linePath
	lineGlob
)

// classifyLine identifies one of the three bare pattern shapes a
// .ctignore line may take: a unit name (optionally "name < X"
// version-bounded), a dotted canonical/module path, or a filesystem
// glob. There is no tag prefix: shape is inferred from the line's own
// characters. A " < " bounds a unit; glob metacharacters or a "/"
// mark a glob; a bare dotted token with neither is a path; anything
// else is a unit name.
func classifyLine(line string) lineKind {
	if strings.Contains(line, " < ") {
		return lineUnit
	}
	if strings.ContainsAny(line, "*?[]!") || strings.Contains(line, "/") {
		return lineGlob
	}
	if strings.Contains(line, ".") {
		return linePath
	}
	return lineUnit
}

func parseUnitRule(line string) unitRule {
	name, versionMax, found := strings.Cut(line, " < ")
	if !found {
		return unitRule{name: strings.TrimSpace(line)}
	}
	return unitRule{name: strings.TrimSpace(name), versionMax: strings.TrimSpace(versionMax)}
}

// MatchesUnit reports whether unit (at version) is suppressed.
func (m *Matcher) MatchesUnit(unit *types.Unit) bool {
	if m == nil {
		return false
	}
	for _, r := range m.units {
		if r.name != unit.Name {
			continue
		}
		if r.versionMax == "" {
			return true
		}
		if versionAtMost(unit.Version, r.versionMax) {
			return true
		}
	}
	return false
}

// MatchesPath reports whether canonicalPath falls under a dotted-path
// rule, matched as a dotted-segment prefix (not a plain string prefix:
// "a.b" matches "a.b.c" but not "a.bc").
func (m *Matcher) MatchesPath(canonicalPath string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.paths {
		if canonicalPath == r.prefix || strings.HasPrefix(canonicalPath, r.prefix+".") {
			return true
		}
	}
	return false
}

// MatchesGlob reports whether relPath (workspace-relative, forward
// slashes) is suppressed by a filesystem glob rule.
func (m *Matcher) MatchesGlob(relPath string) bool {
	if m == nil || m.glob == nil {
		return false
	}
	return m.glob.MatchesPath(relPath)
}

// MatchesSymbol is the convenience entry point used by the query and
// expansion packages: a symbol is suppressed from deep expansion if
// its owning unit, its canonical path, or its file path matches any
// rule.
func (m *Matcher) MatchesSymbol(unit *types.Unit, sym *types.Symbol, relFilePath string) bool {
	if m == nil {
		return false
	}
	return m.MatchesUnit(unit) || m.MatchesPath(sym.CanonicalPath) || m.MatchesGlob(relFilePath)
}

// versionAtMost reports whether version <= max, using the same
// semver library internal/catalog uses for its schema_version
// ordering. An unparseable version (a unit with no semver, e.g. a
// bare Go package with no module version) never matches a bounded
// rule: the rule is meant to cap a versioned dependency's blast
// radius, not to silently swallow everything with a malformed tag.
func versionAtMost(version, max string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	m, err := semver.NewVersion(max)
	if err != nil {
		return false
	}
	return !v.GreaterThan(m)
}
