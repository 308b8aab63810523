package ui

import (
	"cmp"
	"slices"
	"strings"
)

const (
	// DefaultMaxDistance caps the edit distance considered a close match
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions is the default maximum number of suggestions to return
	DefaultMaxSuggestions = 3
)

// FuzzyMatchOptions configures fuzzy matching behavior
type FuzzyMatchOptions struct {
	MaxDistance    int  // 0 scales with the target length
	MaxSuggestions int  // default: 3
	CaseSensitive  bool // default: false
}

type suggestion struct {
	value    string
	distance int
}

// FindSimilar returns the candidates closest to target, nearest first. Module ids
// share long prefixes, so unless MaxDistance is set the allowed distance is a third
// of the target's length, between 1 and DefaultMaxDistance.
//
// Example:
//
//	FindSimilar("app/veiw", []string{"app/view", "app/main", "lib/util"}, nil)
//	// Returns: ["app/view"]
func FindSimilar(target string, candidates []string, opts *FuzzyMatchOptions) []string {
	var o FuzzyMatchOptions
	if opts != nil {
		o = *opts
	}
	if o.MaxDistance == 0 {
		o.MaxDistance = max(1, min(DefaultMaxDistance, len(target)/3))
	}
	if o.MaxSuggestions == 0 {
		o.MaxSuggestions = DefaultMaxSuggestions
	}

	if !o.CaseSensitive {
		target = strings.ToLower(target)
	}

	var found []suggestion
	for _, candidate := range candidates {
		cmpValue := candidate
		if !o.CaseSensitive {
			cmpValue = strings.ToLower(candidate)
		}
		if d := LevenshteinDistance(target, cmpValue); d <= o.MaxDistance {
			found = append(found, suggestion{value: candidate, distance: d})
		}
	}

	// Stable so equal distances keep the caller's order.
	slices.SortStableFunc(found, func(a, b suggestion) int {
		return cmp.Compare(a.distance, b.distance)
	})

	result := make([]string, 0, min(len(found), o.MaxSuggestions))
	for _, s := range found[:min(len(found), o.MaxSuggestions)] {
		result = append(result, s.value)
	}
	return result
}

// LevenshteinDistance is the minimum number of single-byte insertions, deletions
// or substitutions turning s1 into s2.
func LevenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

// FindBestMatch returns the single best match, or "" when nothing is close.
func FindBestMatch(target string, candidates []string, opts *FuzzyMatchOptions) string {
	matches := FindSimilar(target, candidates, opts)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}
