// Package memory implements the dual-tier interaction store (spec §4.C3):
// the persisted set of interactions, split across a capped short-term tier
// and an uncapped long-term tier, with a concept inverted index and an
// embedding matrix kept for fast batch similarity over the short-term tier.
//
// Grounded on the teacher's pkg/memory/store.go three-layer split
// (SessionStore/SemanticIndex/KnowledgeGraph): the same "interfaces are
// public so alternative storage backends can be supplied" design is kept
// here — [Store] is an interface, [InMemoryStore] its default backend.
package memory

import "time"

// Tier identifies which compartment of the store an Interaction currently
// occupies.
type Tier int

const (
	ShortTerm Tier = iota
	LongTerm
)

func (t Tier) String() string {
	if t == LongTerm {
		return "long-term"
	}
	return "short-term"
}

// Interaction is one stored (prompt, output, embedding, concepts, metadata)
// tuple. See spec §3 "Interaction" for the full invariant list.
type Interaction struct {
	ID          string
	Prompt      string
	Output      string
	Embedding   []float32 // nil when created via tell{lazy:true}; see DESIGN.md Open Question #2
	Timestamp   time.Time
	AccessCount int
	Concepts    []string
	DecayFactor float32
	Tier        Tier
}

// Clone returns a deep copy of i, safe to hand to a caller outside the
// store's lock.
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	if i.Embedding != nil {
		c.Embedding = append([]float32(nil), i.Embedding...)
	}
	if i.Concepts != nil {
		c.Concepts = append([]string(nil), i.Concepts...)
	}
	return &c
}

// AgeAt returns how old i was at instant now, never negative.
func (i *Interaction) AgeAt(now time.Time) time.Duration {
	d := now.Sub(i.Timestamp)
	if d < 0 {
		return 0
	}
	return d
}
