package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures prompt text in model tokens.
type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	tk *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tk.Encode(text, nil, nil))
}

// HeuristicCounter approximates token counts without a BPE vocabulary:
// whitespace-delimited words weighted by length, roughly 4 characters per
// token. Deterministic and dependency-free, used when the tiktoken encoding
// cannot be loaded and throughout the tests.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := 0
	for _, word := range strings.Fields(text) {
		n += 1 + utf8.RuneCountInString(word)/5
	}
	return n
}

var (
	defaultCounter Counter
	counterOnce    sync.Once
)

// NewCounter returns a tiktoken cl100k_base counter, degrading to the
// heuristic counter when the encoding is unavailable (e.g. offline first
// run). The counter is shared; tiktoken encoders are safe for concurrent
// use.
func NewCounter() Counter {
	counterOnce.Do(func() {
		tk, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultCounter = HeuristicCounter{}
			return
		}
		defaultCounter = &tiktokenCounter{tk: tk}
	})
	return defaultCounter
}
