package levenshtein_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/markrec/pkg/levenshtein"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"start", "start", 0},
		{"strat", "start", 2},
		{"stop", "stops", 1},
		{"kitten", "sitting", 3},
		{"événement", "evenement", 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein.Distance(tt.a, tt.b), "%q -> %q", tt.a, tt.b)
		assert.Equal(t, tt.want, levenshtein.Distance(tt.b, tt.a), "%q -> %q", tt.b, tt.a)
	}
}

func TestClosest(t *testing.T) {
	t.Parallel()

	commands := []string{"start", "stop", "split", "status"}

	got, ok := levenshtein.Closest("strat", commands, 2)
	assert.True(t, ok)
	assert.Equal(t, "start", got)

	got, ok = levenshtein.Closest("SPLT", commands, 2)
	assert.True(t, ok)
	assert.Equal(t, "split", got)

	_, ok = levenshtein.Closest("recordings", commands, 2)
	assert.False(t, ok)

	_, ok = levenshtein.Closest("x", nil, 2)
	assert.False(t, ok)
}
