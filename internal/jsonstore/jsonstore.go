// Package jsonstore implements the `storage.type: json` backend (spec §6):
// a [memory.RdfSink] that writes the whole interaction set to a single JSON
// file instead of a SPARQL endpoint. It exists because spec §6 names `json`
// as a first-class storage type alongside `memory` and `sparql`.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/semem/internal/memory"
)

type record struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Output      string    `json:"output"`
	Embedding   []float32 `json:"embedding,omitempty"`
	TimestampMs int64     `json:"timestampMs"`
	AccessCount int       `json:"accessCount"`
	Concepts    []string  `json:"concepts,omitempty"`
	DecayFactor float32   `json:"decayFactor"`
	Tier        string    `json:"tier"`
}

// Store persists the full interaction set to a single JSON file on every
// write. Unlike the SPARQL [rdf.Sink], there is no incremental update
// protocol — the whole file is rewritten, matching spec §9's note that
// promotion/tier handling "is implemented inconsistently across storage
// back-ends" in the source; this module keeps that backend simple by design
// rather than growing an ad-hoc diff format for a single flat file.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store writing to path.
func New(path string) *Store {
	return &Store{path: path}
}

func toRecord(i *memory.Interaction) record {
	return record{
		ID:          i.ID,
		Prompt:      i.Prompt,
		Output:      i.Output,
		Embedding:   i.Embedding,
		TimestampMs: i.Timestamp.UnixMilli(),
		AccessCount: i.AccessCount,
		Concepts:    i.Concepts,
		DecayFactor: i.DecayFactor,
		Tier:        i.Tier.String(),
	}
}

func (s *Store) readAll() (map[string]record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	m := make(map[string]record, len(recs))
	for _, r := range recs {
		m[r.ID] = r
	}
	return m, nil
}

func (s *Store) writeAll(m map[string]record) error {
	recs := make([]record, 0, len(m))
	for _, r := range m {
		recs = append(recs, r)
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// PersistInteraction upserts one interaction's record into the file.
func (s *Store) PersistInteraction(_ context.Context, i *memory.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return fmt.Errorf("jsonstore: persist: %w", err)
	}
	m[i.ID] = toRecord(i)
	return s.writeAll(m)
}

// PersistTier rewrites one interaction's tier field.
func (s *Store) PersistTier(_ context.Context, id string, tier memory.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return fmt.Errorf("jsonstore: persist tier: %w", err)
	}
	r, ok := m[id]
	if !ok {
		return nil
	}
	r.Tier = tier.String()
	m[id] = r
	return s.writeAll(m)
}

// DeleteInteraction removes one record.
func (s *Store) DeleteInteraction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return fmt.Errorf("jsonstore: delete: %w", err)
	}
	delete(m, id)
	return s.writeAll(m)
}

// LoadInteractions reads every record from the file.
func (s *Store) LoadInteractions(_ context.Context) ([]*memory.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readAll()
	if err != nil {
		return nil, fmt.Errorf("jsonstore: load: %w", err)
	}
	out := make([]*memory.Interaction, 0, len(m))
	for _, r := range m {
		tier := memory.ShortTerm
		if r.Tier == memory.LongTerm.String() {
			tier = memory.LongTerm
		}
		out = append(out, &memory.Interaction{
			ID:          r.ID,
			Prompt:      r.Prompt,
			Output:      r.Output,
			Embedding:   r.Embedding,
			Timestamp:   time.UnixMilli(r.TimestampMs),
			AccessCount: r.AccessCount,
			Concepts:    r.Concepts,
			DecayFactor: r.DecayFactor,
			Tier:        tier,
		})
	}
	return out, nil
}

var _ memory.RdfSink = (*Store)(nil)
