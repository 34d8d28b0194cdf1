package enhance

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/semem/pkg/provider/llm"
	llmmock "github.com/MrWong99/semem/pkg/provider/llm/mock"
)

func TestHyDEPipeline_Name(t *testing.T) {
	p := NewHyDEPipeline(&llmmock.Provider{})
	if p.Name() != "hyde" {
		t.Errorf("expected name \"hyde\", got %q", p.Name())
	}
}

func TestHyDEPipeline_Enhance_ReturnsProviderContent(t *testing.T) {
	mockProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "a hypothetical passage"}}
	p := NewHyDEPipeline(mockProvider)

	res, err := p.Enhance(context.Background(), "what is the capital of france?")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if res.Text != "a hypothetical passage" {
		t.Errorf("expected the provider's content, got %q", res.Text)
	}
	if res.Pipeline != "hyde" {
		t.Errorf("expected pipeline name \"hyde\", got %q", res.Pipeline)
	}
	if len(mockProvider.CompleteCalls) != 1 {
		t.Fatalf("expected exactly 1 Complete call, got %d", len(mockProvider.CompleteCalls))
	}
	if len(mockProvider.CompleteCalls[0].Req.Messages) != 1 {
		t.Fatalf("expected a single prompt message, got %+v", mockProvider.CompleteCalls[0].Req.Messages)
	}
}

func TestHyDEPipeline_Enhance_WrapsProviderError(t *testing.T) {
	p := NewHyDEPipeline(&llmmock.Provider{CompleteErr: errors.New("provider unavailable")})
	if _, err := p.Enhance(context.Background(), "q"); err == nil {
		t.Error("expected an error when the provider fails")
	}
}
