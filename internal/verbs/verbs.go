// Package verbs implements C7, the Simple Verbs Service: validates input,
// consults C5/C6, invokes the LLM for synthesis, and returns a uniform
// result envelope carrying the current ZPT state (spec §4.C7).
package verbs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/semem/internal/concepts"
	"github.com/MrWong99/semem/internal/enhance"
	"github.com/MrWong99/semem/internal/memerr"
	"github.com/MrWong99/semem/internal/memory"
	"github.com/MrWong99/semem/internal/observe"
	"github.com/MrWong99/semem/internal/retrieval"
	"github.com/MrWong99/semem/internal/zpt"
	"github.com/MrWong99/semem/pkg/provider/embeddings"
)

// recordVerb records the standard verb-call counter and latency histogram
// (observe.Metrics.VerbCalls/VerbDuration) for a single verb invocation.
func recordVerb(ctx context.Context, verb string, start time.Time, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	metrics := observe.DefaultMetrics()
	metrics.RecordVerbCall(ctx, verb, status)
	metrics.VerbDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("verb", verb)))
}

// Envelope is the uniform response shape every verb returns (spec §4.C7):
// `{ success, verb, ...verb-specific..., zptState }`.
type Envelope struct {
	Success  bool       `json:"success"`
	Verb     string     `json:"verb"`
	Error    string     `json:"error,omitempty"`
	ZptState zpt.Cursor `json:"zptState"`
}

// RelationshipSink is the narrow persistence interface
// augment{operation:"relationships"} needs from C2.
type RelationshipSink interface {
	PersistRelationship(ctx context.Context, sourceID, targetID string, weight float64) error
}

// Service wires the Simple Verbs Service to its C5/C6/C8 collaborators plus
// the store/extractor/embedder it needs directly for augment operations.
// Holds weak/back references only — it never owns the interaction set or
// the ZPT cursor (spec §3 "Ownership").
type Service struct {
	manager   *memory.Manager
	store     memory.Store
	extractor *concepts.Extractor
	embedder  embeddings.Provider
	zpt       *zpt.Manager
	enhancer  *enhance.Coordinator // nil disables use* routing
	relSink   RelationshipSink     // nil disables relationship persistence
}

// New wires a Service. enhancer and relSink may be nil.
func New(manager *memory.Manager, store memory.Store, extractor *concepts.Extractor, embedder embeddings.Provider, zptMgr *zpt.Manager, enhancer *enhance.Coordinator, relSink RelationshipSink) *Service {
	return &Service{
		manager:   manager,
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		zpt:       zptMgr,
		enhancer:  enhancer,
		relSink:   relSink,
	}
}

func requireNonEmpty(field, value string) error {
	if value == "" {
		return memerr.New("verbs.validate", memerr.KindInvalidArgument, fmt.Errorf("%s is required", field))
	}
	return nil
}

func (s *Service) envelope(verb string) Envelope {
	return Envelope{Success: true, Verb: verb, ZptState: s.zpt.Snapshot()}
}

func failEnvelope(verb string, zptState zpt.Cursor, err error) Envelope {
	return Envelope{Success: false, Verb: verb, Error: err.Error(), ZptState: zptState}
}

// TellResult is the envelope for `tell` (spec §6 "tell").
type TellResult struct {
	Envelope
	Stored        bool   `json:"stored"`
	ContentLength int    `json:"contentLength"`
	Type          string `json:"type"`
}

// Tell ingests content into short-term memory (spec §4.C5 "ingest" via
// C7's `tell` verb).
func (s *Service) Tell(ctx context.Context, content, contentType string, lazy bool) *TellResult {
	start := time.Now()
	result := s.tell(ctx, content, contentType, lazy)
	recordVerb(ctx, "tell", start, result.Success)
	return result
}

func (s *Service) tell(ctx context.Context, content, contentType string, lazy bool) *TellResult {
	zptState := s.zpt.Snapshot()
	if err := requireNonEmpty("content", content); err != nil {
		return &TellResult{Envelope: failEnvelope("tell", zptState, err)}
	}
	if contentType == "" {
		contentType = "interaction"
	}

	i, err := s.manager.Ingest(ctx, content, "", lazy)
	if err != nil && memerr.KindOf(err) != memerr.KindStoreUnavailable {
		return &TellResult{Envelope: failEnvelope("tell", zptState, err)}
	}
	stored := i != nil
	// KindStoreUnavailable: the interaction is still committed in memory
	// (spec §7); success stays true, persistence failure is implicit in the
	// lack of a `persisted` flag bump — see DESIGN.md.

	return &TellResult{
		Envelope:      s.envelope("tell"),
		Stored:        stored,
		ContentLength: len(content),
		Type:          contentType,
	}
}

// AskResult is the envelope for `ask` (spec §6 "ask").
type AskResult struct {
	Envelope
	Answer      string `json:"answer"`
	Memories    int    `json:"memories"`
	UsedContext bool   `json:"usedContext"`
}

// AskRequest bundles ask's optional routing flags (spec §4.C7 "ask").
type AskRequest struct {
	Question       string
	Mode           string // "basic" | "standard" | "comprehensive"; default "standard"
	UseContext     bool
	UseHyDE        bool
	UseWikipedia   bool
	UseWikidata    bool
	UseWebSearch   bool
}

func (r AskRequest) anyEnhancement() bool {
	return r.UseHyDE || r.UseWikipedia || r.UseWikidata || r.UseWebSearch
}

// Ask answers a question, routing through C8 when any `use*` flag is set,
// else through C5.answer directly (spec §4.C7 "ask").
func (s *Service) Ask(ctx context.Context, req AskRequest) *AskResult {
	start := time.Now()
	result := s.ask(ctx, req)
	recordVerb(ctx, "ask", start, result.Success)
	return result
}

func (s *Service) ask(ctx context.Context, req AskRequest) *AskResult {
	zptState := s.zpt.Snapshot()
	if err := requireNonEmpty("question", req.Question); err != nil {
		return &AskResult{Envelope: failEnvelope("ask", zptState, err)}
	}
	if req.Mode == "" {
		req.Mode = "standard"
	}

	s.zpt.Ask(ctx, req.Question)

	if req.Mode == "basic" {
		answer, err := s.manager.AnswerDirect(ctx, req.Question)
		if err != nil {
			answer = "I cannot answer that right now."
		}
		return &AskResult{Envelope: s.envelope("ask"), Answer: answer, Memories: 0, UsedContext: false}
	}

	if req.anyEnhancement() && s.enhancer != nil {
		enhRes, err := s.enhancer.Coordinate(ctx, req.Question)
		extra := ""
		if err == nil {
			extra = enhRes.Text
		}
		answer, sources, err := s.manager.AnswerWithContext(ctx, req.Question, extra)
		if err != nil {
			return &AskResult{Envelope: s.envelope("ask"), Answer: "I cannot answer that right now.", Memories: 0, UsedContext: false}
		}
		return &AskResult{Envelope: s.envelope("ask"), Answer: answer, Memories: len(sources), UsedContext: len(sources) > 0}
	}

	answer, sources, err := s.manager.Answer(ctx, req.Question)
	if err != nil {
		// spec §7 ProviderUnavailable: fall back to a stock "cannot answer"
		// string if the LLM step itself fails.
		return &AskResult{Envelope: s.envelope("ask"), Answer: "I cannot answer that right now.", Memories: 0, UsedContext: false}
	}
	return &AskResult{Envelope: s.envelope("ask"), Answer: answer, Memories: len(sources), UsedContext: len(sources) > 0}
}

// AugmentResult is the envelope for `augment` (spec §6 "augment").
type AugmentResult struct {
	Envelope
	Operation string `json:"operation"`
	Result    any    `json:"result"`
}

const autoOperationThreshold = 200 // chars; below this, "auto" extracts concepts only

// Augment dispatches one of the ten operations spec §4.C7 names for the
// `augment` verb.
func (s *Service) Augment(ctx context.Context, target, operation string) *AugmentResult {
	start := time.Now()
	result := s.augment(ctx, target, operation)
	recordVerb(ctx, "augment", start, result.Success)
	return result
}

func (s *Service) augment(ctx context.Context, target, operation string) *AugmentResult {
	zptState := s.zpt.Snapshot()
	if err := requireNonEmpty("target", target); err != nil {
		return &AugmentResult{Envelope: failEnvelope("augment", zptState, err)}
	}
	if operation == "" {
		operation = "auto"
	}
	if operation == "auto" {
		operation = s.resolveAuto(target)
	}

	result, err := s.dispatchAugment(ctx, target, operation)
	if err != nil {
		return &AugmentResult{Envelope: failEnvelope("augment", zptState, err), Operation: operation}
	}
	return &AugmentResult{Envelope: s.envelope("augment"), Operation: operation, Result: result}
}

// resolveAuto implements `auto`'s selection rule: short targets get concept
// extraction only; longer targets get full processing (spec §4.C7: "auto
// selects based on target length and context").
func (s *Service) resolveAuto(target string) string {
	if len(target) < autoOperationThreshold {
		return "concepts"
	}
	return "full_processing"
}

func (s *Service) dispatchAugment(ctx context.Context, target, operation string) (any, error) {
	switch operation {
	case "concepts", "enhance_concepts", "batch_extract_concepts":
		if s.extractor == nil {
			return nil, memerr.New("verbs.augment.concepts", memerr.KindInvalidArgument, fmt.Errorf("no concept extractor configured"))
		}
		cs, err := s.extractor.Extract(ctx, target)
		if err != nil {
			return nil, memerr.New("verbs.augment.concepts", memerr.KindProviderUnavailable, err)
		}
		return map[string]any{"concepts": cs}, nil

	case "embedding":
		if s.embedder == nil {
			return nil, memerr.New("verbs.augment.embedding", memerr.KindInvalidArgument, fmt.Errorf("no embedding provider configured"))
		}
		vec, err := s.embedder.Embed(ctx, target)
		if err != nil {
			return nil, memerr.New("verbs.augment.embedding", memerr.KindProviderUnavailable, err)
		}
		return map[string]any{"dimension": len(vec)}, nil

	case "remember":
		if err := s.store.Promote(ctx, target); err != nil {
			return nil, err
		}
		return map[string]any{"promoted": target}, nil

	case "forget":
		evicted := s.store.Evict(ctx, func(i *memory.Interaction) bool { return i.ID == target })
		return map[string]any{"evicted": evicted}, nil

	case "relationships", "analyze_relationships":
		return s.analyzeRelationships(ctx)

	case "full_processing":
		var cs []string
		if s.extractor != nil {
			if extracted, err := s.extractor.Extract(ctx, target); err == nil {
				cs = extracted
			}
		}
		out := map[string]any{"concepts": cs}
		if s.embedder != nil {
			if vec, err := s.embedder.Embed(ctx, target); err == nil {
				out["dimension"] = len(vec)
			}
		}
		return out, nil

	default:
		return nil, memerr.New("verbs.augment", memerr.KindInvalidArgument, fmt.Errorf("unknown operation %q", operation))
	}
}

// analyzeRelationships implements DESIGN.md's Open Question decision for
// augment{operation:"relationships"}: compute pairwise cosine similarity
// across the N most recent short-term interactions (N=20), persist a
// ragno:Relationship triple for the single highest-scoring pair.
func (s *Service) analyzeRelationships(ctx context.Context) (any, error) {
	const window = 20
	items := s.store.ShortTerm()
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > window {
		items = items[:window]
	}

	var bestA, bestB *memory.Interaction
	bestScore := -2.0
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[i].Embedding == nil || items[j].Embedding == nil {
				continue
			}
			score := retrieval.Cosine(items[i].Embedding, items[j].Embedding)
			if score > bestScore {
				bestScore, bestA, bestB = score, items[i], items[j]
			}
		}
	}
	if bestA == nil || bestB == nil {
		return map[string]any{"pair": nil}, nil
	}
	if s.relSink != nil {
		if err := s.relSink.PersistRelationship(ctx, bestA.ID, bestB.ID, bestScore); err != nil {
			return nil, memerr.New("verbs.augment.relationships", memerr.KindStoreUnavailable, err)
		}
	}
	return map[string]any{"source": bestA.ID, "target": bestB.ID, "weight": bestScore}, nil
}

// ZoomResult is the envelope for `zoom` (spec §6 "zoom").
type ZoomResult struct {
	Envelope
	Level string `json:"level"`
	Query string `json:"query,omitempty"`
}

// Zoom sets the ZPT cursor's zoom level.
func (s *Service) Zoom(ctx context.Context, level, query string, reNavigate zpt.ReNavigateFunc) *ZoomResult {
	if err := requireNonEmpty("level", level); err != nil {
		return &ZoomResult{Envelope: failEnvelope("zoom", s.zpt.Snapshot(), err)}
	}
	z := zpt.Zoom(level)
	if !z.Valid() {
		return &ZoomResult{Envelope: failEnvelope("zoom", s.zpt.Snapshot(), memerr.New("verbs.zoom", memerr.KindInvalidArgument, fmt.Errorf("invalid zoom level %q", level)))}
	}
	cursor := s.zpt.Zoom(ctx, z, query, reNavigate)
	return &ZoomResult{Envelope: Envelope{Success: true, Verb: "zoom", ZptState: cursor}, Level: level, Query: query}
}

// PanResult is the envelope for `pan` (spec §6 "pan").
type PanResult struct {
	Envelope
	PanParams   zpt.Pan `json:"panParams"`
	ReNavigated bool    `json:"reNavigated"`
}

// Pan merges filter params into the ZPT cursor.
func (s *Service) Pan(ctx context.Context, p zpt.Pan, reNavigate zpt.ReNavigateFunc) *PanResult {
	before := s.zpt.Snapshot()
	cursor := s.zpt.Pan(ctx, p, reNavigate)
	return &PanResult{
		Envelope:    Envelope{Success: true, Verb: "pan", ZptState: cursor},
		PanParams:   p,
		ReNavigated: before.LastQuery != "" && !p.IsZero(),
	}
}

// TiltResult is the envelope for `tilt` (spec §6 "tilt").
type TiltResult struct {
	Envelope
	Style string `json:"style"`
	Query string `json:"query,omitempty"`
}

// Tilt sets the ZPT cursor's retrieval style.
func (s *Service) Tilt(ctx context.Context, style, query string, reNavigate zpt.ReNavigateFunc) *TiltResult {
	if err := requireNonEmpty("style", style); err != nil {
		return &TiltResult{Envelope: failEnvelope("tilt", s.zpt.Snapshot(), err)}
	}
	t := zpt.Tilt(style)
	if !t.Valid() {
		return &TiltResult{Envelope: failEnvelope("tilt", s.zpt.Snapshot(), memerr.New("verbs.tilt", memerr.KindInvalidArgument, fmt.Errorf("invalid tilt style %q", style)))}
	}
	cursor := s.zpt.Tilt(ctx, t, query, reNavigate)
	return &TiltResult{Envelope: Envelope{Success: true, Verb: "tilt", ZptState: cursor}, Style: style, Query: query}
}

// MemoryRef is one entry of a `recall` result.
type MemoryRef struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Output     string    `json:"output"`
	Similarity float64   `json:"similarity"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecallResult is the envelope for `recall` (spec §6 "recall").
type RecallResult struct {
	Envelope
	Memories []MemoryRef `json:"memories"`
}

// Recall runs a retrieval-only query (no LLM synthesis), returning the
// matched interactions directly.
func (s *Service) Recall(ctx context.Context, query string) *RecallResult {
	zptState := s.zpt.Snapshot()
	if err := requireNonEmpty("query", query); err != nil {
		return &RecallResult{Envelope: failEnvelope("recall", zptState, err)}
	}
	res, err := s.manager.Retrieve(ctx, query)
	if err != nil {
		return &RecallResult{Envelope: failEnvelope("recall", zptState, err)}
	}
	refs := make([]MemoryRef, 0, len(res.Sources))
	for _, src := range res.Sources {
		refs = append(refs, MemoryRef{ID: src.ID, Prompt: src.Prompt, Output: src.Output, Similarity: src.Score, Timestamp: src.Timestamp})
	}
	return &RecallResult{Envelope: s.envelope("recall"), Memories: refs}
}

// InspectResult is the envelope for `inspect` (spec §6 "inspect").
type InspectResult struct {
	Envelope
	Inspection      map[string]any `json:"inspection"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// Inspect reports store/cursor diagnostics for the given inspection type:
// "memory" (store sizes), "cursor" (ZPT state + history depth), or "all".
func (s *Service) Inspect(ctx context.Context, inspectType, target string, includeRecommendations bool) *InspectResult {
	if inspectType == "" {
		inspectType = "all"
	}
	inspection := map[string]any{"type": inspectType}
	if target != "" {
		inspection["target"] = target
	}

	if inspectType == "memory" || inspectType == "all" {
		inspection["shortTermCount"] = len(s.store.ShortTerm())
		inspection["longTermCount"] = len(s.store.LongTerm())
	}
	if inspectType == "cursor" || inspectType == "all" {
		cursor := s.zpt.Snapshot()
		inspection["zoom"] = string(cursor.Zoom)
		inspection["tilt"] = string(cursor.Tilt)
		inspection["historyDepth"] = len(s.zpt.History())
	}

	result := &InspectResult{Envelope: s.envelope("inspect"), Inspection: inspection}
	if includeRecommendations {
		result.Recommendations = s.recommendations(inspection)
	}
	return result
}

func (s *Service) recommendations(inspection map[string]any) []string {
	var recs []string
	if n, ok := inspection["shortTermCount"].(int); ok && n == 0 {
		recs = append(recs, "no interactions stored yet — try `tell` before `ask`")
	}
	return recs
}
