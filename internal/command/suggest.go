package command

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Suggest returns up to three candidates close to name, nearest first.
// Comparison ignores case; a candidate qualifies when its edit distance is at
// most a third of the longer string, with a floor of two edits.
func Suggest(name string, candidates []string) []string {
	if name == "" || len(candidates) == 0 {
		return nil
	}

	type scored struct {
		value string
		dist  int
	}
	lower := strings.ToLower(name)
	var matches []scored
	for _, c := range candidates {
		if c == name {
			continue
		}
		dist := levenshtein.ComputeDistance(lower, strings.ToLower(c))
		limit := max(2, max(len(name), len(c))/3)
		if dist <= limit {
			matches = append(matches, scored{c, dist})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].value < matches[j].value
	})

	out := make([]string, 0, 3)
	for _, m := range matches {
		if len(out) == 3 {
			break
		}
		out = append(out, m.value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
