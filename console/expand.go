package console

import (
	"regexp"
	"strings"

	"github.com/alexj212/rconkit/cvar"
)

var (
	bracePattern  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	simplePattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandCvars replaces $name and ${name} with the value of the cvar called
// name. References to unknown names and to password cvars are left as is.
func expandCvars(line string, vars *cvar.Store) string {
	if !strings.Contains(line, "$") {
		return line
	}
	lookup := func(match, name string) string {
		if strings.Contains(name, "password") {
			return match
		}
		if v, ok := vars.Lookup(name); ok {
			return v.Value()
		}
		return match
	}

	line = bracePattern.ReplaceAllStringFunc(line, func(match string) string {
		return lookup(match, match[2:len(match)-1])
	})
	return simplePattern.ReplaceAllStringFunc(line, func(match string) string {
		return lookup(match, match[1:])
	})
}
