package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/semem/internal/memory"
	"github.com/MrWong99/semem/internal/retrieval"
	"github.com/MrWong99/semem/internal/verbs"
	"github.com/MrWong99/semem/internal/zpt"
	embeddingsmock "github.com/MrWong99/semem/pkg/provider/embeddings/mock"
)

func newTestService(t *testing.T) *verbs.Service {
	t.Helper()
	store := memory.NewInMemoryStore(memory.Policy{
		ShortTermCap:       200,
		DecayRate:          1e-4,
		PromotionThreshold: 5,
		PromotionAge:       24 * time.Hour,
	}, nil)
	embedder := &embeddingsmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}, DimensionsValue: 3}
	mgr := memory.NewManager(store, embedder, nil, nil, retrieval.DefaultOptions())
	zptMgr := zpt.NewManager(nil)
	return verbs.New(mgr, store, nil, embedder, zptMgr, nil, nil)
}

func TestNew_RegistersServer(t *testing.T) {
	svc := newTestService(t)
	srv := New(svc, "test")
	if srv == nil {
		t.Fatal("expected a non-nil *mcp.Server")
	}
}

func TestMakeTellHandler(t *testing.T) {
	svc := newTestService(t)
	handler := makeTellHandler(svc)

	_, out, err := handler(context.Background(), nil, tellInput{Content: "the sky is blue", ContentType: "interaction"})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !out.Success || !out.Stored {
		t.Errorf("expected success+stored, got %+v", out)
	}
}

func TestMakeRecallHandler_AfterTell(t *testing.T) {
	svc := newTestService(t)
	tell := makeTellHandler(svc)
	if _, _, err := tell(context.Background(), nil, tellInput{Content: "paris is the capital of france"}); err != nil {
		t.Fatalf("tell: %v", err)
	}

	recall := makeRecallHandler(svc)
	_, out, err := recall(context.Background(), nil, recallInput{Query: "capital of france"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if !out.Success {
		t.Errorf("expected success, got %+v", out)
	}
}

func TestMakeZoomHandler(t *testing.T) {
	svc := newTestService(t)
	handler := makeZoomHandler(svc)

	_, out, err := handler(context.Background(), nil, zoomInput{Level: "entity"})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !out.Success {
		t.Errorf("expected success, got %+v", out)
	}
	if out.State.Zoom != "entity" {
		t.Errorf("expected zoom=entity, got %q", out.State.Zoom)
	}
}

func TestMakeInspectHandler(t *testing.T) {
	svc := newTestService(t)
	handler := makeInspectHandler(svc)

	_, out, err := handler(context.Background(), nil, inspectInput{Type: "system"})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !out.Success {
		t.Errorf("expected success, got %+v", out)
	}
}
