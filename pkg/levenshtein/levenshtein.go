// Package levenshtein measures edit distance and suggests the closest match
// for mistyped commands and stream keys.
package levenshtein

import "strings"

// Distance returns the number of single-rune insertions, deletions and
// substitutions turning a into b.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		curr[0] = i + 1

		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}

			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Closest returns the candidate nearest to word, compared case-insensitively,
// when its distance is at most maxDistance. Ties keep the earliest candidate.
func Closest(word string, candidates []string, maxDistance int) (string, bool) {
	word = strings.ToLower(word)
	best, bestDist := "", maxDistance+1

	for _, candidate := range candidates {
		dist := Distance(word, strings.ToLower(candidate))
		if dist < bestDist {
			best, bestDist = candidate, dist
		}
	}

	return best, bestDist <= maxDistance
}
