package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/semem/internal/memerr"
)

// RdfSink is the narrow interface the interaction store needs from the RDF
// gateway (C2) to persist interactions. Modelled on spec §9's "break with an
// interface for each downstream" redesign note and the teacher's narrow
// per-collaborator provider interfaces.
type RdfSink interface {
	PersistInteraction(ctx context.Context, i *Interaction) error
	PersistTier(ctx context.Context, id string, tier Tier) error
	DeleteInteraction(ctx context.Context, id string) error
	LoadInteractions(ctx context.Context) ([]*Interaction, error)
}

// Policy bundles the tunables spec §4.C3 names as configuration defaults.
type Policy struct {
	ShortTermCap       int           // default 200
	DecayRate          float64       // per hour, default 1e-4
	PromotionThreshold int           // default 5
	PromotionAge       time.Duration // default 24h
}

// DefaultPolicy returns the defaults named in spec §4.C3.
func DefaultPolicy() Policy {
	return Policy{
		ShortTermCap:       200,
		DecayRate:          1e-4,
		PromotionThreshold: 5,
		PromotionAge:       24 * time.Hour,
	}
}

// Store is the persisted set of interactions: two ordered sequences
// (short-term, long-term), a concept inverted index, and an embedding matrix
// kept for fast batch similarity over the short-term tier only.
type Store interface {
	InsertShortTerm(ctx context.Context, i *Interaction) error
	LoadHistory(ctx context.Context) error
	SaveHistory(ctx context.Context) error
	Touch(ctx context.Context, id string) (*Interaction, error)
	Promote(ctx context.Context, id string) error
	Evict(ctx context.Context, pred func(*Interaction) bool) []string
	Get(id string) (*Interaction, bool)
	ShortTerm() []*Interaction
	LongTerm() []*Interaction
	ByConcept(concept string) []*Interaction
	EmbeddingMatrix() (ids []string, vectors [][]float32)
}

// InMemoryStore is the default [Store] implementation. Grounded on the
// teacher's pkg/memory/store.go locking discipline: a single exclusive lock
// guards structural mutation (insert/promote/evict/touch), held only for the
// short CPU-bound critical section spec §5 describes.
type InMemoryStore struct {
	mu     sync.RWMutex
	short  []*Interaction
	long   []*Interaction
	byID   map[string]*Interaction
	concept map[string]map[string]struct{} // concept -> interaction ids

	policy Policy
	sink   RdfSink // nil => no persistence (storage.type=memory)
	now    func() time.Time
}

// NewInMemoryStore creates an empty store. sink may be nil for the
// storage.type=memory backend; otherwise every structural mutation is also
// emitted to sink (best-effort — see spec §7 StoreUnavailable policy).
func NewInMemoryStore(policy Policy, sink RdfSink) *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]*Interaction),
		concept: make(map[string]map[string]struct{}),
		policy:  policy,
		sink:    sink,
		now:     time.Now,
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) indexConcepts(i *Interaction) {
	for _, c := range i.Concepts {
		set, ok := s.concept[c]
		if !ok {
			set = make(map[string]struct{})
			s.concept[c] = set
		}
		set[i.ID] = struct{}{}
	}
}

func (s *InMemoryStore) unindexConcepts(i *Interaction) {
	for _, c := range i.Concepts {
		if set, ok := s.concept[c]; ok {
			delete(set, i.ID)
			if len(set) == 0 {
				delete(s.concept, c)
			}
		}
	}
}

// InsertShortTerm appends i to the short-term tier, updates the concept
// index, runs eviction atomically if the cap is exceeded, and emits a
// persistence write to the RDF sink (if configured). A sink failure is
// reported but does not roll back the in-memory insert — spec §7
// StoreUnavailable: "the interaction remains in memory... reported in the
// envelope".
func (s *InMemoryStore) InsertShortTerm(ctx context.Context, i *Interaction) error {
	s.mu.Lock()
	i.Tier = ShortTerm
	s.short = append(s.short, i)
	s.byID[i.ID] = i
	s.indexConcepts(i)
	evicted := s.evictLocked()
	s.mu.Unlock()

	for _, id := range evicted {
		slog.Debug("evicted interaction", "id", id)
	}

	if s.sink == nil {
		return nil
	}
	if err := s.sink.PersistInteraction(ctx, i); err != nil {
		return memerr.New("memory.InsertShortTerm", memerr.KindStoreUnavailable, err)
	}
	return nil
}

// evictLocked must be called with mu held for writing. It evicts from
// short-term until the cap is respected, returning the evicted ids.
func (s *InMemoryStore) evictLocked() []string {
	var evicted []string
	for len(s.short) > s.policy.ShortTermCap {
		lowest := 0
		lowestScore := s.retentionScoreLocked(s.short[0])
		for idx := 1; idx < len(s.short); idx++ {
			score := s.retentionScoreLocked(s.short[idx])
			if score < lowestScore {
				lowest = idx
				lowestScore = score
			}
		}
		victim := s.short[lowest]
		s.short = append(s.short[:lowest], s.short[lowest+1:]...)
		delete(s.byID, victim.ID)
		s.unindexConcepts(victim)
		evicted = append(evicted, victim.ID)
	}
	return evicted
}

func (s *InMemoryStore) retentionScoreLocked(i *Interaction) float64 {
	ageHours := i.AgeAt(s.now()).Hours()
	recencyBoost := math.Exp(-ageHours * s.policy.DecayRate)
	return float64(i.AccessCount) * float64(i.DecayFactor) * recencyBoost
}

// LoadHistory is idempotent; called once at startup to seed short/long from
// the RDF sink. A nil sink makes this a no-op (storage.type=memory).
func (s *InMemoryStore) LoadHistory(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	items, err := s.sink.LoadInteractions(ctx)
	if err != nil {
		return memerr.New("memory.LoadHistory", memerr.KindStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range items {
		s.byID[i.ID] = i
		s.indexConcepts(i)
		if i.Tier == LongTerm {
			s.long = append(s.long, i)
		} else {
			s.short = append(s.short, i)
		}
	}
	return nil
}

// SaveHistory snapshots the current in-memory state to the sink: every
// short-term and long-term interaction is passed to sink.PersistInteraction
// in turn. With no sink it does nothing. For storage.type=json the sink
// (internal/jsonstore) rewrites its whole file on each such call.
func (s *InMemoryStore) SaveHistory(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	s.mu.RLock()
	all := make([]*Interaction, 0, len(s.short)+len(s.long))
	all = append(all, s.short...)
	all = append(all, s.long...)
	s.mu.RUnlock()

	for _, i := range all {
		if err := s.sink.PersistInteraction(ctx, i); err != nil {
			return memerr.New("memory.SaveHistory", memerr.KindStoreUnavailable, err)
		}
	}
	return nil
}

// Touch increments accessCount, recomputes decayFactor, and promotes the
// interaction to long-term in the same critical section if the promotion
// predicate fires (spec §4.C3 "Promotion policy").
func (s *InMemoryStore) Touch(ctx context.Context, id string) (*Interaction, error) {
	s.mu.Lock()
	i, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, memerr.New("memory.Touch", memerr.KindConcurrencyConflict, fmt.Errorf("unknown interaction %q", id))
	}
	i.AccessCount++
	age := i.AgeAt(s.now())
	i.DecayFactor = float32(math.Exp(-age.Hours() * s.policy.DecayRate))

	shouldPromote := i.Tier == ShortTerm &&
		i.AccessCount >= s.policy.PromotionThreshold &&
		age >= s.policy.PromotionAge
	if shouldPromote {
		s.promoteLocked(i)
	}
	result := i.Clone()
	s.mu.Unlock()

	if shouldPromote && s.sink != nil {
		if err := s.sink.PersistTier(ctx, id, LongTerm); err != nil {
			slog.Warn("failed to persist promotion", "id", id, "error", err)
		}
	}
	return result, nil
}

// promoteLocked must be called with mu held. It moves i from short-term to
// long-term and removes it from the embedding matrix (it is found by linear
// scan of s.short, which also backs the embedding matrix).
func (s *InMemoryStore) promoteLocked(i *Interaction) {
	for idx, cur := range s.short {
		if cur.ID == i.ID {
			s.short = append(s.short[:idx], s.short[idx+1:]...)
			break
		}
	}
	i.Tier = LongTerm
	s.long = append(s.long, i)
}

// Promote moves id from short-term to long-term outside of touch (used by
// augment{operation:"remember"}).
func (s *InMemoryStore) Promote(ctx context.Context, id string) error {
	s.mu.Lock()
	i, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return memerr.New("memory.Promote", memerr.KindInvalidArgument, fmt.Errorf("unknown interaction %q", id))
	}
	if i.Tier == LongTerm {
		s.mu.Unlock()
		return nil
	}
	s.promoteLocked(i)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.PersistTier(ctx, id, LongTerm); err != nil {
			return memerr.New("memory.Promote", memerr.KindStoreUnavailable, err)
		}
	}
	return nil
}

// Evict drops from short-term every interaction matching pred (used by
// augment{operation:"forget"}), returning the evicted ids.
func (s *InMemoryStore) Evict(ctx context.Context, pred func(*Interaction) bool) []string {
	s.mu.Lock()
	var kept []*Interaction
	var evicted []string
	for _, i := range s.short {
		if pred(i) {
			delete(s.byID, i.ID)
			s.unindexConcepts(i)
			evicted = append(evicted, i.ID)
		} else {
			kept = append(kept, i)
		}
	}
	s.short = kept
	s.mu.Unlock()

	if s.sink != nil {
		for _, id := range evicted {
			if err := s.sink.DeleteInteraction(ctx, id); err != nil {
				slog.Warn("failed to persist eviction", "id", id, "error", err)
			}
		}
	}
	return evicted
}

func (s *InMemoryStore) Get(id string) (*Interaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return i.Clone(), true
}

func (s *InMemoryStore) ShortTerm() []*Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Interaction, len(s.short))
	for i, x := range s.short {
		out[i] = x.Clone()
	}
	return out
}

func (s *InMemoryStore) LongTerm() []*Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Interaction, len(s.long))
	for i, x := range s.long {
		out[i] = x.Clone()
	}
	return out
}

func (s *InMemoryStore) ByConcept(concept string) []*Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.concept[concept]
	if !ok {
		return nil
	}
	out := make([]*Interaction, 0, len(set))
	for id := range set {
		if i, ok := s.byID[id]; ok {
			out = append(out, i.Clone())
		}
	}
	return out
}

// EmbeddingMatrix returns the short-term tier's embeddings for fast batch
// similarity, skipping interactions with no embedding (tell{lazy:true}).
func (s *InMemoryStore) EmbeddingMatrix() ([]string, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.short))
	vecs := make([][]float32, 0, len(s.short))
	for _, i := range s.short {
		if i.Embedding == nil {
			continue
		}
		ids = append(ids, i.ID)
		vecs = append(vecs, i.Embedding)
	}
	return ids, vecs
}
