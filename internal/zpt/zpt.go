// Package zpt implements C6, the ZPT State Manager: the process-wide
// navigation cursor (zoom/pan/tilt) and its provenance log. Grounded on the
// teacher's single-exclusive-lock-per-mutable-state style (e.g.
// internal/resilience/circuitbreaker.go's mu-guarded state machine).
package zpt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Zoom is the abstraction level axis (spec §3 ZPTCursor).
type Zoom string

const (
	ZoomEntity    Zoom = "entity"
	ZoomUnit      Zoom = "unit"
	ZoomText      Zoom = "text"
	ZoomCommunity Zoom = "community"
	ZoomCorpus    Zoom = "corpus"
	ZoomMicro     Zoom = "micro"
)

func (z Zoom) Valid() bool {
	switch z {
	case ZoomEntity, ZoomUnit, ZoomText, ZoomCommunity, ZoomCorpus, ZoomMicro:
		return true
	}
	return false
}

// Tilt is the retrieval-style axis.
type Tilt string

const (
	TiltKeywords  Tilt = "keywords"
	TiltEmbedding Tilt = "embedding"
	TiltGraph     Tilt = "graph"
	TiltTemporal  Tilt = "temporal"
)

func (t Tilt) Valid() bool {
	switch t {
	case TiltKeywords, TiltEmbedding, TiltGraph, TiltTemporal:
		return true
	}
	return false
}

// TemporalRange is the optional ISO-8601 start/end pair in Pan.
type TemporalRange struct {
	Start time.Time
	End   time.Time
}

// Pan is the filter-set axis.
type Pan struct {
	Domains  []string
	Keywords []string
	Temporal *TemporalRange
}

// IsZero reports whether p carries no filters at all — `pan({})` is
// documented as a no-op (spec §8 round-trip law).
func (p Pan) IsZero() bool {
	return len(p.Domains) == 0 && len(p.Keywords) == 0 && p.Temporal == nil
}

// Cursor is one immutable snapshot of ZPTCursor state (spec §3). History
// entries are stored as Cursor values so no aliasing can occur between the
// live cursor and its own history.
type Cursor struct {
	SessionID string
	Zoom      Zoom
	Pan       Pan
	Tilt      Tilt
	LastQuery string
}

// Sink is the narrow persistence interface C6 needs from the RDF gateway —
// mirrors memory.RdfSink's pattern of one small interface per downstream
// collaborator (spec §9).
type Sink interface {
	PersistNavigation(ctx context.Context, view NavigationView) error
}

// NavigationView is one row appended to the provenance log on every
// mutation (spec §3 "NavigationSession / NavigationView").
type NavigationView struct {
	SessionID    string
	Timestamp    time.Time
	Query        string
	Zoom         string
	Tilt         string
	AnswerDigest string
}

const defaultHistoryCap = 50

// Manager owns exactly one ZPTCursor for the process (spec §9: "model as
// explicitly owned values passed to the verb dispatcher at construction").
// A single exclusive lock per session guards mutation; mutations are short
// (spec §5).
type Manager struct {
	mu         sync.Mutex
	cursor     Cursor
	history    []Cursor // newest first, capped at historyCap
	historyCap int
	sink       Sink // nil => provenance logging disabled
	now        func() time.Time
}

// NewManager creates a Manager initialised with cursor defaults: zoom=entity,
// tilt=keywords (spec §3 invariant), a freshly minted session id.
func NewManager(sink Sink) *Manager {
	return &Manager{
		cursor: Cursor{
			SessionID: uuid.NewString(),
			Zoom:      ZoomEntity,
			Tilt:      TiltKeywords,
		},
		historyCap: defaultHistoryCap,
		sink:       sink,
		now:        time.Now,
	}
}

// Snapshot returns a copy of the current cursor.
func (m *Manager) Snapshot() Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// ReNavigateFunc is invoked by Zoom/Pan/Tilt when a re-navigate is triggered
// (spec §4.C6): C7 supplies this to re-run retrieval under the new cursor.
type ReNavigateFunc func(ctx context.Context, query string)

// Zoom sets the zoom level. If query is non-empty, lastQuery is updated and
// a re-navigate is triggered.
func (m *Manager) Zoom(ctx context.Context, level Zoom, query string, reNavigate ReNavigateFunc) Cursor {
	m.mu.Lock()
	m.pushHistoryLocked()
	m.cursor.Zoom = level
	triggersRenav := query != ""
	if triggersRenav {
		m.cursor.LastQuery = query
	}
	snap := m.cursor
	m.mu.Unlock()

	m.logMutation(ctx, snap, query)
	if triggersRenav && reNavigate != nil {
		reNavigate(ctx, query)
	}
	return snap
}

// Pan merges domains/keywords/temporal into the cursor, replacing (not
// union-ing) each field. If lastQuery is non-empty, a re-navigate is
// triggered using the existing lastQuery. An empty Pan ([Pan.IsZero]) is a
// no-op: the cursor, history and provenance log are left untouched.
func (m *Manager) Pan(ctx context.Context, p Pan, reNavigate ReNavigateFunc) Cursor {
	if p.IsZero() {
		return m.Snapshot()
	}
	m.mu.Lock()
	m.pushHistoryLocked()
	m.cursor.Pan = p
	query := m.cursor.LastQuery
	snap := m.cursor
	m.mu.Unlock()

	m.logMutation(ctx, snap, "")
	if query != "" && reNavigate != nil {
		reNavigate(ctx, query)
	}
	return snap
}

// Tilt sets the retrieval style. If query is non-empty, lastQuery is updated
// and a re-navigate is triggered — same rule as Zoom.
func (m *Manager) Tilt(ctx context.Context, style Tilt, query string, reNavigate ReNavigateFunc) Cursor {
	m.mu.Lock()
	m.pushHistoryLocked()
	m.cursor.Tilt = style
	triggersRenav := query != ""
	if triggersRenav {
		m.cursor.LastQuery = query
	}
	snap := m.cursor
	m.mu.Unlock()

	m.logMutation(ctx, snap, query)
	if triggersRenav && reNavigate != nil {
		reNavigate(ctx, query)
	}
	return snap
}

// Ask sets lastQuery. Does not mutate zoom/pan/tilt (spec §4.C6).
func (m *Manager) Ask(ctx context.Context, question string) Cursor {
	m.mu.Lock()
	m.pushHistoryLocked()
	m.cursor.LastQuery = question
	snap := m.cursor
	m.mu.Unlock()

	m.logMutation(ctx, snap, question)
	return snap
}

// Reset restores cursor defaults and clears history — the admin verb named
// in spec §4.C6's transition-trigger list.
func (m *Manager) Reset(ctx context.Context) Cursor {
	m.mu.Lock()
	m.cursor = Cursor{SessionID: uuid.NewString(), Zoom: ZoomEntity, Tilt: TiltKeywords}
	m.history = nil
	snap := m.cursor
	m.mu.Unlock()

	m.logMutation(ctx, snap, "")
	return snap
}

// History returns the bounded ordered sequence of prior cursor states,
// newest first.
func (m *Manager) History() []Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Cursor, len(m.history))
	copy(out, m.history)
	return out
}

// pushHistoryLocked must be called with mu held, before mutating m.cursor.
func (m *Manager) pushHistoryLocked() {
	m.history = append([]Cursor{m.cursor}, m.history...)
	if len(m.history) > m.historyCap {
		m.history = m.history[:m.historyCap]
	}
}

// logMutation appends one NavigationView to the sink. A failure here is
// logged but never rolls back the already-committed in-memory mutation
// (spec §4.C6: "the cursor is the source of truth; provenance is
// best-effort").
func (m *Manager) logMutation(ctx context.Context, snap Cursor, query string) {
	if m.sink == nil {
		return
	}
	if err := m.sink.PersistNavigation(ctx, NavigationView{
		SessionID: snap.SessionID,
		Timestamp: m.now(),
		Query:     query,
		Zoom:      string(snap.Zoom),
		Tilt:      string(snap.Tilt),
	}); err != nil {
		slog.Warn("zpt: failed to persist navigation view", "error", err)
	}
}
