// Package httpfront exposes the transport-neutral verb API over HTTP (spec
// §6 "EXTERNAL INTERFACES"): POST /<verb> plus GET /health and GET /state.
// Grounded on the teacher's internal/health/health.go JSON-response shape
// and http.ServeMux routing style.
package httpfront

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrWong99/semem/internal/verbs"
	"github.com/MrWong99/semem/internal/zpt"
)

// StateProvider is the narrow interface httpfront needs from C6 for
// GET /state.
type StateProvider interface {
	Snapshot() zpt.Cursor
}

// Server wires the Simple Verbs Service to an http.ServeMux under the
// verb-per-route contract spec §6 names.
type Server struct {
	verbs   *verbs.Service
	state   StateProvider
	startAt time.Time
}

// New wires a Server. startAt is recorded once, at construction; GET
// /health's server_state reports the uptime since then, rounded to seconds.
func New(verbService *verbs.Service, state StateProvider) *Server {
	return &Server{verbs: verbService, state: state, startAt: time.Now()}
}

// Register adds every route spec §6 names to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /tell", s.handleTell)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /augment", s.handleAugment)
	mux.HandleFunc("POST /zoom", s.handleZoom)
	mux.HandleFunc("POST /pan", s.handlePan)
	mux.HandleFunc("POST /tilt", s.handleTilt)
	mux.HandleFunc("POST /recall", s.handleRecall)
	mux.HandleFunc("POST /inspect", s.handleInspect)
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	ServerState string    `json:"server_state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Timestamp:   time.Now(),
		ServerState: time.Since(s.startAt).Round(time.Second).String(),
	})
}

type stateResponse struct {
	State zpt.Cursor `json:"state"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{State: s.state.Snapshot()})
}

// tellBody mirrors spec §6's `tell` request body.
type tellBody struct {
	Content  string         `json:"content"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata"`
	Lazy     bool           `json:"lazy"`
}

func (s *Server) handleTell(w http.ResponseWriter, r *http.Request) {
	var body tellBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Tell(r.Context(), body.Content, body.Type, body.Lazy)
	writeEnvelope(w, res.Success, res)
}

type askBody struct {
	Question     string `json:"question"`
	Mode         string `json:"mode"`
	UseContext   bool   `json:"useContext"`
	UseHyDE      bool   `json:"useHyDE"`
	UseWikipedia bool   `json:"useWikipedia"`
	UseWikidata  bool   `json:"useWikidata"`
	UseWebSearch bool   `json:"useWebSearch"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body askBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Ask(r.Context(), verbs.AskRequest{
		Question:     body.Question,
		Mode:         body.Mode,
		UseContext:   body.UseContext,
		UseHyDE:      body.UseHyDE,
		UseWikipedia: body.UseWikipedia,
		UseWikidata:  body.UseWikidata,
		UseWebSearch: body.UseWebSearch,
	})
	writeEnvelope(w, res.Success, res)
}

type augmentBody struct {
	Target    string `json:"target"`
	Operation string `json:"operation"`
}

func (s *Server) handleAugment(w http.ResponseWriter, r *http.Request) {
	var body augmentBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Augment(r.Context(), body.Target, body.Operation)
	writeEnvelope(w, res.Success, res)
}

type zoomBody struct {
	Level string `json:"level"`
	Query string `json:"query"`
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var body zoomBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Zoom(r.Context(), body.Level, body.Query, nil)
	writeEnvelope(w, res.Success, res)
}

type panBody struct {
	Domains  []string `json:"domains"`
	Keywords []string `json:"keywords"`
	Temporal *struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"temporal"`
}

func (s *Server) handlePan(w http.ResponseWriter, r *http.Request) {
	var body panBody
	if !decodeJSON(w, r, &body) {
		return
	}
	p := zpt.Pan{Domains: body.Domains, Keywords: body.Keywords}
	if body.Temporal != nil {
		p.Temporal = &zpt.TemporalRange{Start: body.Temporal.Start, End: body.Temporal.End}
	}
	res := s.verbs.Pan(r.Context(), p, nil)
	writeEnvelope(w, res.Success, res)
}

type tiltBody struct {
	Style string `json:"style"`
	Query string `json:"query"`
}

func (s *Server) handleTilt(w http.ResponseWriter, r *http.Request) {
	var body tiltBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Tilt(r.Context(), body.Style, body.Query, nil)
	writeEnvelope(w, res.Success, res)
}

type recallBody struct {
	Query string `json:"query"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var body recallBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Recall(r.Context(), body.Query)
	writeEnvelope(w, res.Success, res)
}

type inspectBody struct {
	Type                   string `json:"type"`
	Target                 string `json:"target"`
	IncludeRecommendations bool   `json:"includeRecommendations"`
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var body inspectBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res := s.verbs.Inspect(r.Context(), body.Type, body.Target, body.IncludeRecommendations)
	writeEnvelope(w, res.Success, res)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "malformed request body: " + err.Error()})
		return false
	}
	return true
}

// writeEnvelope always answers HTTP 200: per spec §6 the envelope's own
// `success`/`error` fields carry the verdict, malformed JSON bodies are the
// only case that gets a non-200 status (handled in decodeJSON).
func writeEnvelope(w http.ResponseWriter, _ bool, v any) {
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"internal encoding failure"}`, http.StatusInternalServerError)
	}
}
