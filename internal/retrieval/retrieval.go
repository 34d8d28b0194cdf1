// Package retrieval implements cosine-similarity ranking across an
// interaction set with concept-boost and recency decay (spec §4.C4).
package retrieval

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/semem/internal/memory"
)

// Options configures one Retrieve call. An Options whose
// SimilarityThreshold, ConceptWeight and Limit are all zero is replaced
// wholesale by [DefaultOptions] (Dimension included); otherwise every field
// is used as given.
type Options struct {
	SimilarityThreshold float64 // default 40
	ConceptWeight       float64 // default 10
	Limit               int     // default 10
	Dimension           int     // expected embedding length; 0 disables the check
}

// DefaultOptions returns the defaults named in spec §4.C4.
func DefaultOptions() Options {
	return Options{SimilarityThreshold: 40, ConceptWeight: 10, Limit: 10}
}

// Scored pairs an interaction with its retrieval score.
type Scored struct {
	Interaction *memory.Interaction
	Score       float64
}

// Retrieve scores every candidate in candidates against queryVector and
// queryConcepts, keeps items at or above opts.SimilarityThreshold, and
// returns them ordered by score descending (stable on insertion order),
// truncated to opts.Limit.
//
// A zero-length or all-zero queryVector yields an empty result (spec §4.C4
// edge case). Candidates with a wrong-length embedding are skipped and
// logged, never fatal.
func Retrieve(ctx context.Context, queryVector []float32, queryConcepts []string, candidates []*memory.Interaction, opts Options) ([]Scored, error) {
	if opts.SimilarityThreshold == 0 && opts.ConceptWeight == 0 && opts.Limit == 0 {
		opts = DefaultOptions()
	}
	if isZeroVector(queryVector) {
		return nil, nil
	}

	type result struct {
		idx   int
		score float64
		ok    bool
	}
	results := make([]result, len(candidates))

	workers := min(runtime.GOMAXPROCS(0), max(1, len(candidates)))
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(candidates) + workers - 1) / max(workers, 1)
	if chunk == 0 {
		chunk = 1
	}
	for start := 0; start < len(candidates); start += chunk {
		end := min(start+chunk, len(candidates))
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				cand := candidates[i]
				if opts.Dimension > 0 && len(cand.Embedding) != opts.Dimension {
					slog.Debug("retrieval: skipping candidate with wrong embedding length",
						"id", cand.ID, "got", len(cand.Embedding), "want", opts.Dimension)
					continue
				}
				if cand.Embedding == nil {
					// Embedding-less interactions are scored on concept
					// overlap alone. Lazily-told ones (spec §9 Open Question
					// #2) carry no concepts either, so they never match here.
					s, ok := conceptOnlyScore(queryConcepts, cand, opts)
					results[i] = result{idx: i, score: s, ok: ok}
					continue
				}
				score, ok := score(queryVector, queryConcepts, cand, opts)
				results[i] = result{idx: i, score: score, ok: ok}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Scored, 0, len(candidates))
	for _, r := range results {
		if r.ok {
			out = append(out, Scored{Interaction: candidates[r.idx], Score: r.score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// score computes the final retrieval score for one candidate, per spec
// §4.C4 steps 1-4. The second return value is false when the candidate falls
// below the similarity threshold.
func score(q []float32, queryConcepts []string, x *memory.Interaction, opts Options) (float64, bool) {
	cos := cosine(q, x.Embedding)
	cosBand := 100 * (cos + 1) / 2

	boost := 0.0
	if len(queryConcepts) > 0 {
		overlap := intersectionSize(queryConcepts, x.Concepts)
		boost = float64(overlap) / float64(max(1, len(queryConcepts))) * opts.ConceptWeight
	}

	decay := float64(x.DecayFactor)
	if decay <= 0 {
		decay = 1
	}

	final := (cosBand + boost) * decay
	if final < opts.SimilarityThreshold {
		return final, false
	}
	return final, true
}

// conceptOnlyScore scores an embedding-less candidate purely on concept
// overlap with queryConcepts, putting a full match on the same 0-100 scale
// a perfect cosine match would occupy so the result is comparable against
// opts.SimilarityThreshold alongside embedded candidates. Returns ok=false
// when there is no overlap at all (no query concepts, or none shared).
func conceptOnlyScore(queryConcepts []string, x *memory.Interaction, opts Options) (float64, bool) {
	if len(queryConcepts) == 0 {
		return 0, false
	}
	overlap := intersectionSize(queryConcepts, x.Concepts)
	if overlap == 0 {
		return 0, false
	}

	decay := float64(x.DecayFactor)
	if decay <= 0 {
		decay = 1
	}

	final := (float64(overlap) / float64(len(queryConcepts)) * 100) * decay
	if final < opts.SimilarityThreshold {
		return final, false
	}
	return final, true
}

// Cosine returns the cosine similarity of a and b in [-1, 1], or -1 if the
// vectors differ in length, are empty, or either is all-zero. Exported for
// callers (e.g. augment{operation:"relationships"}) that need the raw
// similarity outside a full Retrieve call.
func Cosine(a, b []float32) float64 { return cosine(a, b) }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isZeroVector(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func intersectionSize(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range a {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}
