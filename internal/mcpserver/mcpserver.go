// Package mcpserver exposes the Simple Verbs Service (C7) as an MCP tool
// server, using the official MCP Go SDK. This is a server, distinct from the
// teacher's internal/mcp/mcphost (an MCP client used to consume external
// tool servers) — the two are not the same role and are not merged.
//
// Grounded on the go-sdk server-side usage shown by
// vvoland-cagent/pkg/mcp/server.go: one mcp.NewServer, one mcp.AddTool call
// per exposed operation, typed In/Out structs per tool.
package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/semem/internal/verbs"
	"github.com/MrWong99/semem/internal/zpt"
)

const serverName = "semem"

// New builds an MCP server with one tool per Simple Verbs Service verb.
func New(svc *verbs.Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tell",
		Description: "Store a piece of content as an interaction in semantic memory.",
	}, makeTellHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using retrieved memory context, optionally enhanced with HyDE/Wikipedia/Wikidata.",
	}, makeAskHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "augment",
		Description: "Run a processing operation (concepts, embedding, remember, forget, relationships, full_processing, or auto) against a target.",
	}, makeAugmentHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "zoom",
		Description: "Set the ZPT navigation cursor's zoom level (entity, unit, text, community, corpus, micro).",
	}, makeZoomHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pan",
		Description: "Replace the ZPT navigation cursor's filter set with the given domains and keywords (this tool sets no temporal range).",
	}, makePanHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tilt",
		Description: "Set the ZPT navigation cursor's representation style (keywords, embedding, graph, temporal).",
	}, makeTiltHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Retrieve raw matching memories for a query without generating an LLM answer.",
	}, makeRecallHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "inspect",
		Description: "Report diagnostic state of the memory store and/or navigation cursor.",
	}, makeInspectHandler(svc))

	return server
}

// Serve runs server over stdio until ctx is cancelled.
func Serve(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// ServeHTTP runs server as a Streamable HTTP MCP endpoint on ln until ctx is
// cancelled.
func ServeHTTP(ctx context.Context, server *mcp.Server, ln net.Listener) error {
	httpServer := &http.Server{
		Handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// ── tell ──────────────────────────────────────────────────────────────────

type tellInput struct {
	Content     string `json:"content" jsonschema:"the content to store"`
	ContentType string `json:"type,omitempty" jsonschema:"the content type, default interaction"`
	Lazy        bool   `json:"lazy,omitempty" jsonschema:"skip embedding generation for faster ingestion"`
}

type tellOutput struct {
	Success bool   `json:"success"`
	Stored  bool   `json:"stored"`
	Error   string `json:"error,omitempty"`
}

func makeTellHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, tellInput) (*mcp.CallToolResult, tellOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in tellInput) (*mcp.CallToolResult, tellOutput, error) {
		res := svc.Tell(ctx, in.Content, in.ContentType, in.Lazy)
		return nil, tellOutput{Success: res.Success, Stored: res.Stored, Error: res.Error}, nil
	}
}

// ── ask ───────────────────────────────────────────────────────────────────

type askInput struct {
	Question     string `json:"question" jsonschema:"the question to answer"`
	Mode         string `json:"mode,omitempty" jsonschema:"basic, standard, or comprehensive"`
	UseHyDE      bool   `json:"useHyDE,omitempty"`
	UseWikipedia bool   `json:"useWikipedia,omitempty"`
	UseWikidata  bool   `json:"useWikidata,omitempty"`
}

type askOutput struct {
	Success     bool   `json:"success"`
	Answer      string `json:"answer,omitempty"`
	MemoryCount int    `json:"memories,omitempty"`
	Error       string `json:"error,omitempty"`
}

func makeAskHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, askInput) (*mcp.CallToolResult, askOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, askOutput, error) {
		res := svc.Ask(ctx, verbs.AskRequest{
			Question:     in.Question,
			Mode:         in.Mode,
			UseHyDE:      in.UseHyDE,
			UseWikipedia: in.UseWikipedia,
			UseWikidata:  in.UseWikidata,
		})
		return nil, askOutput{Success: res.Success, Answer: res.Answer, MemoryCount: res.Memories, Error: res.Error}, nil
	}
}

// ── augment ───────────────────────────────────────────────────────────────

type augmentInput struct {
	Target    string `json:"target" jsonschema:"the text or interaction id to process"`
	Operation string `json:"operation,omitempty" jsonschema:"concepts, embedding, remember, forget, relationships, full_processing, or auto"`
}

type augmentOutput struct {
	Success   bool   `json:"success"`
	Operation string `json:"operation,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func makeAugmentHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, augmentInput) (*mcp.CallToolResult, augmentOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in augmentInput) (*mcp.CallToolResult, augmentOutput, error) {
		res := svc.Augment(ctx, in.Target, in.Operation)
		return nil, augmentOutput{Success: res.Success, Operation: res.Operation, Result: res.Result, Error: res.Error}, nil
	}
}

// ── zoom ──────────────────────────────────────────────────────────────────

type zoomInput struct {
	Level string `json:"level" jsonschema:"entity, unit, text, community, corpus, or micro"`
	Query string `json:"query,omitempty"`
}

type zoomOutput struct {
	Success bool       `json:"success"`
	State   zpt.Cursor `json:"state,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func makeZoomHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, zoomInput) (*mcp.CallToolResult, zoomOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in zoomInput) (*mcp.CallToolResult, zoomOutput, error) {
		res := svc.Zoom(ctx, in.Level, in.Query, nil)
		return nil, zoomOutput{Success: res.Success, State: res.ZptState, Error: res.Error}, nil
	}
}

// ── pan ───────────────────────────────────────────────────────────────────

type panInput struct {
	Domains  []string `json:"domains,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

type panOutput struct {
	Success bool       `json:"success"`
	State   zpt.Cursor `json:"state,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func makePanHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, panInput) (*mcp.CallToolResult, panOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in panInput) (*mcp.CallToolResult, panOutput, error) {
		res := svc.Pan(ctx, zpt.Pan{Domains: in.Domains, Keywords: in.Keywords}, nil)
		return nil, panOutput{Success: res.Success, State: res.ZptState, Error: res.Error}, nil
	}
}

// ── tilt ──────────────────────────────────────────────────────────────────

type tiltInput struct {
	Style string `json:"style" jsonschema:"keywords, embedding, graph, or temporal"`
	Query string `json:"query,omitempty"`
}

type tiltOutput struct {
	Success bool       `json:"success"`
	State   zpt.Cursor `json:"state,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func makeTiltHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, tiltInput) (*mcp.CallToolResult, tiltOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in tiltInput) (*mcp.CallToolResult, tiltOutput, error) {
		res := svc.Tilt(ctx, in.Style, in.Query, nil)
		return nil, tiltOutput{Success: res.Success, State: res.ZptState, Error: res.Error}, nil
	}
}

// ── recall ────────────────────────────────────────────────────────────────

type recallInput struct {
	Query string `json:"query" jsonschema:"the search query"`
}

type recallOutput struct {
	Success bool              `json:"success"`
	Memories []verbs.MemoryRef `json:"memories,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func makeRecallHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, recallInput) (*mcp.CallToolResult, recallOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in recallInput) (*mcp.CallToolResult, recallOutput, error) {
		res := svc.Recall(ctx, in.Query)
		return nil, recallOutput{Success: res.Success, Memories: res.Memories, Error: res.Error}, nil
	}
}

// ── inspect ───────────────────────────────────────────────────────────────

type inspectInput struct {
	Type                   string `json:"type,omitempty" jsonschema:"memory, cursor, or all; default all"`
	Target                 string `json:"target,omitempty"`
	IncludeRecommendations bool   `json:"includeRecommendations,omitempty"`
}

type inspectOutput struct {
	Success         bool           `json:"success"`
	Inspection      map[string]any `json:"inspection,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func makeInspectHandler(svc *verbs.Service) func(context.Context, *mcp.CallToolRequest, inspectInput) (*mcp.CallToolResult, inspectOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in inspectInput) (*mcp.CallToolResult, inspectOutput, error) {
		res := svc.Inspect(ctx, in.Type, in.Target, in.IncludeRecommendations)
		return nil, inspectOutput{Success: res.Success, Inspection: res.Inspection, Recommendations: res.Recommendations, Error: res.Error}, nil
	}
}
