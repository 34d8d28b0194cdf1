package rdf

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/semem/internal/memory"
)

// embeddingDatatype is the (made-up, but stable) datatype IRI used for the
// packed-float embedding literal. Spec §6: "embedding (typed literal
// array)" — abstracted; the concrete encoding is this gateway's choice.
const embeddingDatatype = "http://purl.org/stuff/ragno/embeddingVector"

// Sink implements [memory.RdfSink] (and the navigation/relationship/
// enhancement persistence the other components need) against one [Gateway].
// Every Interaction maps to one ragno:Corpuscle resource per spec §6
// "Persisted RDF layout".
type Sink struct {
	gw    *Gateway
	graph string // default named graph IRI
}

// NewSink wraps gw as a persistence sink writing into the given named graph.
func NewSink(gw *Gateway, graphIRI string) *Sink {
	return &Sink{gw: gw, graph: graphIRI}
}

var _ memory.RdfSink = (*Sink)(nil)

// Ping confirms the underlying SPARQL endpoint is reachable.
func (s *Sink) Ping(ctx context.Context) error { return s.gw.Ping(ctx) }

func (s *Sink) graphVal() Value { return IRI(s.graph) }

func (s *Sink) resourceVal(id string) Value {
	return IRI(s.graph + "/corpuscle/" + id)
}

func encodeEmbedding(vec []float32) string {
	parts := make([]string, len(vec))
	for i, f := range vec {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}

func decodeEmbedding(s string) []float32 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			continue
		}
		out = append(out, float32(f))
	}
	return out
}

// conceptTriplesFragment builds the `; ragno:hasKeyword "concept" ...`
// SPARQL fragment appended to an insertCorpuscle template, escaping each
// concept as a literal.
func conceptTriplesFragment(concepts []string) string {
	var b strings.Builder
	for _, c := range concepts {
		b.WriteString(" ;\n      ragno:hasKeyword ")
		b.WriteString(EscapeLiteral(c))
	}
	return b.String()
}

func tierIRI(t memory.Tier) string {
	if t == memory.LongTerm {
		return "http://purl.org/stuff/ragno/tier/long-term"
	}
	return "http://purl.org/stuff/ragno/tier/short-term"
}

// PersistInteraction writes one Interaction as a ragno:Corpuscle resource.
func (s *Sink) PersistInteraction(ctx context.Context, i *memory.Interaction) error {
	tmpl, err := s.gw.tmpl.LoadTemplate("insertCorpuscle")
	if err != nil {
		return err
	}
	query, err := Substitute(tmpl, map[string]Value{
		"graph":          s.graphVal(),
		"id":             s.resourceVal(i.ID),
		"prompt":         Lit(i.Prompt),
		"output":         Lit(i.Output),
		"embedding":      {Raw: EscapeLiteral(encodeEmbedding(i.Embedding)) + "^^<" + embeddingDatatype + ">"},
		"timestamp":      Int(int(i.Timestamp.UnixMilli())),
		"accessCount":    Int(i.AccessCount),
		"decayFactor":    Lit(strconv.FormatFloat(float64(i.DecayFactor), 'g', -1, 32)),
		"tier":           IRI(tierIRI(i.Tier)),
		"conceptTriples": {Raw: conceptTriplesFragment(i.Concepts)},
	})
	if err != nil {
		return err
	}
	return s.gw.ExecuteUpdate(ctx, query)
}

// PersistTier rewrites id's ragno:tier triple.
func (s *Sink) PersistTier(ctx context.Context, id string, tier memory.Tier) error {
	tmpl, err := s.gw.tmpl.LoadTemplate("updateTier")
	if err != nil {
		return err
	}
	query, err := Substitute(tmpl, map[string]Value{
		"graph": s.graphVal(),
		"id":    s.resourceVal(id),
		"tier":  IRI(tierIRI(tier)),
	})
	if err != nil {
		return err
	}
	return s.gw.ExecuteUpdate(ctx, query)
}

// DeleteInteraction removes every triple about id.
func (s *Sink) DeleteInteraction(ctx context.Context, id string) error {
	tmpl, err := s.gw.tmpl.LoadTemplate("deleteCorpuscle")
	if err != nil {
		return err
	}
	query, err := Substitute(tmpl, map[string]Value{
		"graph": s.graphVal(),
		"id":    s.resourceVal(id),
	})
	if err != nil {
		return err
	}
	return s.gw.ExecuteUpdate(ctx, query)
}

// conceptsSeparator must match the GROUP_CONCAT separator literal in
// selectCorpusclesTemplate.
const conceptsSeparator = "|||"

// LoadInteractions runs the selectCorpuscles template with no row limit and
// reconstructs each Interaction, including its concepts via the template's
// GROUP_CONCAT(?kw) aggregation over ragno:hasKeyword — required for the
// persist/reload round-trip law (spec §8).
func (s *Sink) LoadInteractions(ctx context.Context) ([]*memory.Interaction, error) {
	tmpl, err := s.gw.tmpl.LoadTemplate("selectCorpuscles")
	if err != nil {
		return nil, err
	}
	query, err := Substitute(tmpl, map[string]Value{
		"graph": s.graphVal(),
		"limit": Null(),
	})
	if err != nil {
		return nil, err
	}
	res, err := s.gw.ExecuteSelect(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]*memory.Interaction, 0, len(res.Bindings))
	for _, row := range res.Bindings {
		ts, _ := strconv.ParseInt(row["timestamp"], 10, 64)
		access, _ := strconv.Atoi(row["accessCount"])
		decay, _ := strconv.ParseFloat(row["decayFactor"], 32)
		tier := memory.ShortTerm
		if strings.HasSuffix(row["tier"], "long-term") {
			tier = memory.LongTerm
		}
		out = append(out, &memory.Interaction{
			ID:          resourceID(row["s"]),
			Prompt:      row["label"],
			Output:      row["content"],
			Embedding:   decodeEmbedding(row["embedding"]),
			Timestamp:   time.UnixMilli(ts),
			AccessCount: access,
			DecayFactor: float32(decay),
			Tier:        tier,
			Concepts:    decodeConcepts(row["concepts"]),
		})
	}
	return out, nil
}

// decodeConcepts splits a GROUP_CONCAT(?kw; separator="|||") result back
// into individual concept strings, dropping the empty entry a corpuscle with
// no keywords produces (an unmatched OPTIONAL binds ?kw to nothing, which
// GROUP_CONCAT renders as an empty string rather than omitting the row).
func decodeConcepts(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, conceptsSeparator)
}

func resourceID(iri string) string {
	idx := strings.LastIndex(iri, "/")
	if idx < 0 {
		return iri
	}
	return iri[idx+1:]
}

// NavigationView is one append-only row of the persisted navigation
// provenance log (spec §3 "NavigationSession / NavigationView").
type NavigationView struct {
	SessionID    string
	Timestamp    time.Time
	Query        string
	Zoom         string
	Tilt         string
	AnswerDigest string
}

// PersistNavigation appends a NavigationView quad-set. Failures are
// best-effort per spec §4.C6: "if the append fails, the in-memory mutation
// is still committed".
func (s *Sink) PersistNavigation(ctx context.Context, v NavigationView) error {
	tmpl, err := s.gw.tmpl.LoadTemplate("insertNavigation")
	if err != nil {
		return err
	}
	id := fmt.Sprintf("%s/navigation/%d", s.graph, v.Timestamp.UnixNano())
	query, err := Substitute(tmpl, map[string]Value{
		"graph":     s.graphVal(),
		"id":        IRI(id),
		"timestamp": Int(int(v.Timestamp.UnixMilli())),
		"query":     Lit(v.Query),
		"zoom":      Lit(v.Zoom),
		"tilt":      Lit(v.Tilt),
		"digest":    Lit(v.AnswerDigest),
		"session":   Lit(v.SessionID),
	})
	if err != nil {
		return err
	}
	return s.gw.ExecuteUpdate(ctx, query)
}

// PersistRelationship writes one ragno:Relationship triple set linking two
// interaction resources, for augment{operation:"relationships"} (spec §9
// Open Question decision, see DESIGN.md).
func (s *Sink) PersistRelationship(ctx context.Context, sourceID, targetID string, weight float64) error {
	tmpl, err := s.gw.tmpl.LoadTemplate("insertRelationship")
	if err != nil {
		return err
	}
	id := fmt.Sprintf("%s/relationship/%s-%s", s.graph, sourceID, targetID)
	query, err := Substitute(tmpl, map[string]Value{
		"graph":  s.graphVal(),
		"id":     IRI(id),
		"source": s.resourceVal(sourceID),
		"target": s.resourceVal(targetID),
		"weight": Lit(strconv.FormatFloat(weight, 'g', -1, 64)),
	})
	if err != nil {
		return err
	}
	return s.gw.ExecuteUpdate(ctx, query)
}

// PersistEnhancement writes one Enhancement artifact resource, linked to its
// triggering question (spec §6 "Each Enhancement artifact -> its own named
// resource linked to the triggering question").
func (s *Sink) PersistEnhancement(ctx context.Context, pipeline, question, content string) error {
	tmpl, err := s.gw.tmpl.LoadTemplate("insertEnhancement")
	if err != nil {
		return err
	}
	id := fmt.Sprintf("%s/enhancement/%s/%d", s.graph, pipeline, time.Now().UnixNano())
	query, err := Substitute(tmpl, map[string]Value{
		"graph":    s.graphVal(),
		"id":       IRI(id),
		"pipeline": Lit(pipeline),
		"question": Lit(question),
		"content":  Lit(content),
	})
	if err != nil {
		return err
	}
	return s.gw.ExecuteUpdate(ctx, query)
}
