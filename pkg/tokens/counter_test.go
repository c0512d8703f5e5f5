package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace only", text: "  \n\t ", want: 0},
		{name: "single short word", text: "hi", want: 1},
		{name: "three short words", text: "the cat sat", want: 3},
		{name: "long word counts extra", text: "internationalization", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Count(tt.text))
		})
	}
}

func TestHeuristicCounterMonotonic(t *testing.T) {
	c := HeuristicCounter{}
	short := c.Count("a few words")
	long := c.Count("a few words and then considerably more text after them")
	assert.Greater(t, long, short)
}
