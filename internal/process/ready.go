package process

import "strings"

// Matcher decides whether a single output line indicates that the process is
// ready to serve. Implementations must be safe for concurrent use; the
// supervisor calls Match from both stream readers.
type Matcher interface {
	Match(line string) bool
}

// MatcherFunc adapts a plain predicate to a Matcher.
type MatcherFunc func(line string) bool

func (f MatcherFunc) Match(line string) bool { return f(line) }

// Substring returns a Matcher that matches any line containing marker.
// This is the default readiness check: supervised programs advertise
// readiness by printing a documented substring to either stream.
func Substring(marker string) Matcher {
	return MatcherFunc(func(line string) bool {
		return strings.Contains(line, marker)
	})
}
