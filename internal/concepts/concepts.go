// Package concepts implements the concept-extraction half of C1 (spec
// §4.C1): text -> a small set of short, lower-case-normalised concept
// strings, used as the concept index's keys (spec §3 ConceptIndex).
//
// There is no dedicated "concept extraction API" anywhere in the pack, so
// this is built the way the teacher builds any LLM-backed text
// transformation: a narrow prompt sent through llm.Provider.Complete, with
// the response parsed as a newline/comma-separated list. Grounded on the
// teacher's plain-prompt-template style in internal/engine/cascade.go.
package concepts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/semem/internal/cache"
	"github.com/MrWong99/semem/internal/memerr"
	"github.com/MrWong99/semem/internal/resilience"
	"github.com/MrWong99/semem/pkg/provider/llm"
	"github.com/MrWong99/semem/pkg/types"
)

// jaroWinklerDedupeThreshold is how similar two normalised concept strings
// must be (Jaro-Winkler similarity, 0..1) to be folded into one entry — e.g.
// "machine-learning" and "machine learning" after normalisation.
const jaroWinklerDedupeThreshold = 0.94

// Extractor turns text into a set of concept strings via an LLM. A failed
// extraction is a soft failure per spec §4.C1: callers get back an empty
// slice and a non-nil error, and may log-and-continue.
type Extractor struct {
	provider llm.Provider
	cache    *cache.Cache[string, []string]
}

// Option configures optional Extractor behaviour.
type Option func(*Extractor)

// WithCache adds a content-hash-keyed LRU+TTL cache (spec §5) in front of
// Extract, so repeated text is only ever sent to the LLM once per TTL
// window.
func WithCache(capacity int, ttl time.Duration) Option {
	return func(e *Extractor) { e.cache = cache.New[string, []string](capacity, ttl) }
}

// NewExtractor wraps provider as a concept Extractor.
func NewExtractor(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{provider: provider}
	for _, o := range opts {
		o(e)
	}
	return e
}

const extractionPrompt = `Extract up to 8 short, specific concepts (single words or short phrases) that best describe the key topics of the following text. Reply with ONLY the concepts, one per line, lower case, no numbering or punctuation.

Text:
%s`

// Extract returns 0..N normalised concept strings for text. On provider
// failure it returns (nil, err) per spec §4.C1 — the caller (C5) treats this
// as the empty set and proceeds.
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var key string
	if e.cache != nil {
		key = cache.Key(text)
		if cs, ok := e.cache.Get(key); ok {
			return cs, nil
		}
	}

	resp, err := resilience.WithProviderRetry(ctx, func() (*llm.CompletionResponse, error) {
		r, err := e.provider.Complete(ctx, llm.CompletionRequest{
			Messages: []types.Message{
				{Role: "user", Content: fmt.Sprintf(extractionPrompt, text)},
			},
			Temperature: 0,
			MaxTokens:   128,
		})
		if err != nil {
			return nil, memerr.New("concepts.Extract", memerr.KindProviderUnavailable, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	cs := Normalize(splitLines(resp.Content))
	if e.cache != nil {
		e.cache.Set(key, cs)
	}
	return cs, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ',' }) {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. \t")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Normalize lower-cases every concept and folds near-duplicates into a
// single representative using Jaro-Winkler similarity, preserving first-seen
// order.
func Normalize(raw []string) []string {
	var out []string
	for _, c := range raw {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if dup := nearestDuplicate(out, c); dup != "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// nearestDuplicate returns the first entry in existing whose Jaro-Winkler
// similarity to candidate meets jaroWinklerDedupeThreshold, or "" if none.
func nearestDuplicate(existing []string, candidate string) string {
	for _, e := range existing {
		if matchr.JaroWinkler(e, candidate, true) >= jaroWinklerDedupeThreshold {
			return e
		}
	}
	return ""
}
