// Package chunker splits extracted resume text into token-bounded, overlapping chunks.
package chunker

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/pkg/textx"
)

// Defaults used when the caller passes non-positive limits.
const (
	DefaultMaxTokens = 3000
	DefaultOverlap   = 200
	// sentenceOverlap is the number of trailing sentences carried into the next chunk.
	sentenceOverlap = 2
)

// A sentence ends at terminal punctuation followed by whitespace or the end of text,
// so decimals, versions and dotted names stay intact.
var sentenceRe = regexp.MustCompile(`(?s).+?(?:[.!?]+(?:\s|$)|$)`)

// TokenCounter counts tokens of a text for a fixed model.
type TokenCounter interface {
	Count(text string) int
}

// Chunker splits text within a token budget.
type Chunker struct {
	counter   TokenCounter
	maxTokens int
	overlap   int
}

// New builds a Chunker. Non-positive limits fall back to the defaults.
func New(counter TokenCounter, maxTokens, overlap int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{counter: counter, maxTokens: maxTokens, overlap: overlap}
}

// Split returns ordered chunks with contiguous indices starting at 0. Empty input yields an empty slice.
// Every chunk fits the budget except a single word that alone exceeds it.
func (c *Chunker) Split(text string) []domain.Chunk {
	out := []domain.Chunk{}
	text = textx.NormalizeWhitespace(text)
	if text == "" {
		return out
	}

	emit := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		out = append(out, domain.Chunk{Text: s, Index: len(out), TokenCount: c.counter.Count(s)})
	}

	var cur []string
	for _, s := range sentences(text) {
		if c.counter.Count(s) > c.maxTokens {
			emit(strings.Join(cur, " "))
			cur = nil
			for _, wc := range c.splitWords(s) {
				emit(wc)
			}
			continue
		}
		if c.fits(append(cur, s)) {
			cur = append(cur, s)
			continue
		}
		emit(strings.Join(cur, " "))
		seed := tail(cur, sentenceOverlap)
		next := append(append([]string{}, seed...), s)
		if len(seed) > 0 && c.fits(next) {
			cur = next
		} else {
			cur = []string{s}
		}
	}
	emit(strings.Join(cur, " "))
	return out
}

// splitWords breaks one oversized sentence into word chunks, seeding each new
// chunk with the last min(overlap, words/4) words of the previous one.
func (c *Chunker) splitWords(sentence string) []string {
	words := strings.Fields(sentence)
	seedLen := c.overlap
	if q := len(words) / 4; q < seedLen {
		seedLen = q
	}

	var chunks []string
	var cur []string
	for _, w := range words {
		if c.fits(append(cur, w)) {
			cur = append(cur, w)
			continue
		}
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
		}
		k := seedLen
		if k >= len(cur) {
			k = len(cur) - 1
		}
		next := append(append([]string{}, tail(cur, k)...), w)
		switch {
		case k > 0 && c.fits(next):
			cur = next
		case c.fits([]string{w}):
			cur = []string{w}
		default:
			// a single word over budget is kept whole
			chunks = append(chunks, w)
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

func (c *Chunker) fits(parts []string) bool {
	return c.counter.Count(strings.Join(parts, " ")) <= c.maxTokens
}

func sentences(text string) []string {
	raw := sentenceRe.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func tail(s []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
