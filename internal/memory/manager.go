package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/semem/internal/concepts"
	"github.com/MrWong99/semem/internal/memerr"
	"github.com/MrWong99/semem/internal/observe"
	"github.com/MrWong99/semem/internal/resilience"
	"github.com/MrWong99/semem/internal/retrieval"
	"github.com/MrWong99/semem/pkg/provider/embeddings"
	"github.com/MrWong99/semem/pkg/provider/llm"
	"github.com/MrWong99/semem/pkg/types"
)

// maxContextChars bounds the assembled retrieval context string, since the
// manager has no token-accounting access to the caller's chosen LLM provider
// at ingest time (spec §4.C5 "retrieve" step 4 names a token/length budget;
// a character budget is this implementation's concrete choice — see
// DESIGN.md).
const maxContextChars = 4000

// sourceSnippetChars is how much of each source's output is quoted in the
// assembled context string.
const sourceSnippetChars = 200

// answerPromptTemplate is the stable prompt used by Answer to turn a
// retrieval context into a final response, grounded on the teacher's
// plain-template style (internal/engine/cascade.go).
const answerPromptTemplate = `Answer the question using the provided context. If the context does not contain the answer, say so plainly.

%s

Question: %s`

// Manager is C5: the orchestrator tying concept extraction (C1), embedding
// (pkg/provider/embeddings), the interaction store (C3), and retrieval
// scoring (C4) into the three operations spec §4.C5 names: ingest, retrieve,
// answer.
type Manager struct {
	store     Store
	embedder  embeddings.Provider
	extractor *concepts.Extractor
	llm       llm.Provider
	now       func() time.Time

	retrievalMu sync.RWMutex
	retrieval   retrieval.Options
}

// NewManager wires a Manager from its collaborators. llmProvider may be nil
// if the caller never invokes Answer (e.g. a deployment that only ever calls
// tell/augment and leaves answer synthesis to the MCP client).
func NewManager(store Store, embedder embeddings.Provider, extractor *concepts.Extractor, llmProvider llm.Provider, opts retrieval.Options) *Manager {
	return &Manager{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		llm:       llmProvider,
		retrieval: opts,
		now:       time.Now,
	}
}

// UpdateRetrievalOptions swaps the similarity/concept-weight tunables in
// place, for a config hot reload (spec §6) — an in-flight Retrieve call
// finishes with whichever options it already read.
func (m *Manager) UpdateRetrievalOptions(opts retrieval.Options) {
	m.retrievalMu.Lock()
	defer m.retrievalMu.Unlock()
	m.retrieval = opts
}

// Source is one interaction cited in an assembled retrieval context.
type Source struct {
	ID        string
	Prompt    string
	Output    string
	Score     float64
	Timestamp time.Time
}

func interactionID(prompt string, ts time.Time) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(ts.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Ingest is the `tell` verb's core: it extracts concepts, embeds the
// interaction, and inserts it into short-term memory (spec §4.C5 "ingest").
// When lazy is true, concept extraction and embedding are both skipped and
// Concepts and Embedding are left nil; the interaction still enters
// short-term, but retrieval never returns it.
func (m *Manager) Ingest(ctx context.Context, prompt, output string, lazy bool) (*Interaction, error) {
	now := m.now()
	i := &Interaction{
		ID:        interactionID(prompt, now),
		Prompt:    prompt,
		Output:    output,
		Timestamp: now,
		DecayFactor: 1,
		Tier:      ShortTerm,
	}

	// Soft failure per spec §4.C1: on extraction error (or no extractor
	// configured), proceed with no concepts rather than failing the whole
	// ingest. lazy skips both embedding and concept extraction, storing the
	// interaction raw (spec §4.C7 "tell").
	if !lazy && m.extractor != nil {
		if cs, err := m.extractor.Extract(ctx, prompt+"\n"+output); err == nil {
			i.Concepts = cs
		}
	}

	if !lazy && m.embedder != nil {
		start := time.Now()
		vec, err := resilience.WithProviderRetry(ctx, func() ([]float32, error) {
			v, err := m.embedder.Embed(ctx, prompt)
			if err != nil {
				return nil, memerr.New("memory.Ingest", memerr.KindProviderUnavailable, err)
			}
			return v, nil
		})
		m.recordProviderCall(ctx, "embedding", start, err)
		if err != nil {
			return nil, err
		}
		i.Embedding = vec
	}

	// InsertShortTerm commits i to memory before attempting persistence, so a
	// StoreUnavailable error still leaves i usable by the caller (spec §7:
	// "the interaction remains in memory... reported in the envelope").
	if err := m.store.InsertShortTerm(ctx, i); err != nil {
		return i, err
	}
	metrics := observe.DefaultMetrics()
	metrics.RecordInteractionIngested(ctx)
	if len(i.Concepts) > 0 {
		metrics.ConceptsExtracted.Add(ctx, int64(len(i.Concepts)))
	}
	return i, nil
}

// recordProviderCall records the standard duration histogram and
// request/error counters for a single provider call of the given kind
// ("embedding" or "llm"), per observe.Metrics' documented attribute set.
func (m *Manager) recordProviderCall(ctx context.Context, kind string, start time.Time, err error) {
	metrics := observe.DefaultMetrics()
	elapsed := time.Since(start).Seconds()
	status := "ok"
	if err != nil {
		status = "error"
		metrics.RecordProviderError(ctx, "memory", kind)
	}
	metrics.RecordProviderRequest(ctx, "memory", kind, status)
	switch kind {
	case "embedding":
		metrics.EmbeddingDuration.Record(ctx, elapsed)
	case "llm":
		metrics.LLMDuration.Record(ctx, elapsed)
	}
}

// RetrieveResult is what Retrieve hands back to the caller: a formatted
// context string plus the sources it was built from.
type RetrieveResult struct {
	Context string
	Sources []Source
}

// Retrieve is the `ask` verb's core: embed the question, extract its
// concepts, score every candidate across both tiers via C4, touch every
// returned interaction (bumping access count and possibly promoting it),
// and assemble a deterministic context string (spec §4.C5 "retrieve").
func (m *Manager) Retrieve(ctx context.Context, question string) (*RetrieveResult, error) {
	if m.embedder == nil {
		return nil, memerr.New("memory.Retrieve", memerr.KindInvalidArgument, fmt.Errorf("no embedding provider configured"))
	}
	embedStart := time.Now()
	qvec, err := resilience.WithProviderRetry(ctx, func() ([]float32, error) {
		v, err := m.embedder.Embed(ctx, question)
		if err != nil {
			return nil, memerr.New("memory.Retrieve", memerr.KindProviderUnavailable, err)
		}
		return v, nil
	})
	m.recordProviderCall(ctx, "embedding", embedStart, err)
	if err != nil {
		return nil, err
	}

	var qconcepts []string
	if m.extractor != nil {
		if cs, err := m.extractor.Extract(ctx, question); err == nil {
			qconcepts = cs
		}
	}

	m.retrievalMu.RLock()
	opts := m.retrieval
	m.retrievalMu.RUnlock()

	retrievalStart := time.Now()
	candidates := append(m.store.ShortTerm(), m.store.LongTerm()...)
	scored, err := retrieval.Retrieve(ctx, qvec, qconcepts, candidates, opts)
	observe.DefaultMetrics().RetrievalDuration.Record(ctx, time.Since(retrievalStart).Seconds())
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nRelevant context:\n", question)
	sources := make([]Source, 0, len(scored))
	for _, sc := range scored {
		if _, err := m.store.Touch(ctx, sc.Interaction.ID); err != nil {
			continue
		}
		snippet := sc.Interaction.Output
		if len(snippet) > sourceSnippetChars {
			snippet = snippet[:sourceSnippetChars] + "…"
		}
		line := fmt.Sprintf("- %s: %s\n", sc.Interaction.Prompt, snippet)
		if b.Len()+len(line) > maxContextChars {
			break
		}
		b.WriteString(line)
		sources = append(sources, Source{
			ID:        sc.Interaction.ID,
			Prompt:    sc.Interaction.Prompt,
			Output:    sc.Interaction.Output,
			Score:     sc.Score,
			Timestamp: sc.Interaction.Timestamp,
		})
	}

	return &RetrieveResult{Context: b.String(), Sources: sources}, nil
}

// Answer is the higher-level helper chaining Retrieve into one LLM
// completion (spec §4.C5 "answer"). Requires an llm.Provider to have been
// configured at construction.
func (m *Manager) Answer(ctx context.Context, question string) (string, []Source, error) {
	res, err := m.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	return m.complete(ctx, res.Context, question, res.Sources)
}

// AnswerWithContext behaves like Answer but appends extraContext (typically
// C8's merged enhancement text) to the retrieval context before calling the
// LLM — used by the `ask` verb when any `use*` enhancement flag is set
// (spec §4.C7 "ask").
func (m *Manager) AnswerWithContext(ctx context.Context, question, extraContext string) (string, []Source, error) {
	res, err := m.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	combined := res.Context
	if extraContext != "" {
		combined += "\nAdditional context:\n" + extraContext
	}
	return m.complete(ctx, combined, question, res.Sources)
}

// AnswerDirect calls the LLM with no retrieval step at all — used by the
// `ask` verb's `mode: "basic"` (spec §4.C7 "Modes for ask").
func (m *Manager) AnswerDirect(ctx context.Context, question string) (string, error) {
	if m.llm == nil {
		return "", memerr.New("memory.AnswerDirect", memerr.KindInvalidArgument, fmt.Errorf("no LLM provider configured"))
	}
	start := time.Now()
	resp, err := resilience.WithProviderRetry(ctx, func() (*llm.CompletionResponse, error) {
		r, err := m.llm.Complete(ctx, llm.CompletionRequest{
			Messages:    []types.Message{{Role: "user", Content: question}},
			Temperature: 0.2,
		})
		if err != nil {
			return nil, memerr.New("memory.AnswerDirect", memerr.KindProviderUnavailable, err)
		}
		return r, nil
	})
	m.recordProviderCall(ctx, "llm", start, err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (m *Manager) complete(ctx context.Context, contextText, question string, sources []Source) (string, []Source, error) {
	if m.llm == nil {
		return "", nil, memerr.New("memory.Answer", memerr.KindInvalidArgument, fmt.Errorf("no LLM provider configured"))
	}
	start := time.Now()
	resp, err := resilience.WithProviderRetry(ctx, func() (*llm.CompletionResponse, error) {
		r, err := m.llm.Complete(ctx, llm.CompletionRequest{
			Messages: []types.Message{
				{Role: "user", Content: fmt.Sprintf(answerPromptTemplate, contextText, question)},
			},
			Temperature: 0.2,
		})
		if err != nil {
			return nil, memerr.New("memory.Answer", memerr.KindProviderUnavailable, err)
		}
		return r, nil
	})
	m.recordProviderCall(ctx, "llm", start, err)
	if err != nil {
		return "", nil, err
	}
	return resp.Content, sources, nil
}
