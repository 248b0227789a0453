package gpkg

import (
	"fmt"
	"sort"
	"strings"
)

// LayerNotFoundError reports a layer name that is not present in a file.
// Suggestion holds the available layer sharing the longest name prefix with
// the requested one, or is empty when no layer shares any prefix.
type LayerNotFoundError struct {
	Path       string
	Layer      string
	Available  []string
	Suggestion string
}

func (e *LayerNotFoundError) Error() string {
	msg := fmt.Sprintf("gpkg: layer %q not found in %s (available: %s)",
		e.Layer, e.Path, strings.Join(e.Available, ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", e.Suggestion)
	}
	return msg
}

// SuggestLayer returns the available name sharing the longest
// case-insensitive prefix with want. Ties resolve to the alphabetically
// first name. It returns "" when nothing shares even one character.
func SuggestLayer(want string, available []string) string {
	names := append([]string(nil), available...)
	sort.Strings(names)

	want = strings.ToLower(want)
	best, bestLen := "", 0
	for _, name := range names {
		n := commonPrefixLen(want, strings.ToLower(name))
		if n > bestLen {
			best, bestLen = name, n
		}
	}
	return best
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
