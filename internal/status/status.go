package status

import (
	"regexp"

	"github.com/dshills/ct/pkg/types"
)

var (
	unimplementedPattern = regexp.MustCompile(`(?i)panic\s*\(\s*"[^"]*\b(not\s+implemented|unimplemented)\b[^"]*"\s*\)`)
	todoPattern          = regexp.MustCompile(`\b(TODO|FIXME)\b`)
)

// Classify matches spanText against the unimplemented-sentinel pattern
// and then, if that fails, the TODO/FIXME pattern, and returns its
// implementation status per the rule in spec §4.4: an unimplemented-sentinel panic wins
// over a TODO/FIXME marker, which wins over the implemented default.
func Classify(spanText string) types.Status {
	if unimplementedPattern.MatchString(spanText) {
		return types.StatusUnimplemented
	}
	if todoPattern.MatchString(spanText) {
		return types.StatusTodo
	}
	return types.StatusImplemented
}
