package enhance

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubPipeline struct {
	name string
	text string
	err  error
}

func (s *stubPipeline) Name() string { return s.name }

func (s *stubPipeline) Enhance(ctx context.Context, question string) (EnhancementResult, error) {
	if s.err != nil {
		return EnhancementResult{}, s.err
	}
	return EnhancementResult{Pipeline: s.name, Text: s.text}, nil
}

func TestCoordinate_NoPipelines_FallsBackToQuestion(t *testing.T) {
	c := NewCoordinator(nil, DefaultOptions())
	res, err := c.Coordinate(context.Background(), "what is the capital of france?")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if !res.FellBack || res.Text != "what is the capital of france?" {
		t.Errorf("expected fallback to the original question, got %+v", res)
	}
}

func TestCoordinate_MergesSuccessfulPipelines(t *testing.T) {
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", text: "hyde output"},
		&stubPipeline{name: "wikipedia", text: "wikipedia output"},
	}, DefaultOptions())

	res, err := c.Coordinate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if len(res.Succeeded) != 2 || len(res.Failed) != 0 {
		t.Fatalf("expected both pipelines to succeed, got %+v", res)
	}
	if !strings.Contains(res.Text, "hyde output") || !strings.Contains(res.Text, "wikipedia output") {
		t.Errorf("expected both outputs merged, got %q", res.Text)
	}
	if res.FellBack {
		t.Error("expected FellBack=false when at least one pipeline succeeds")
	}
}

func TestCoordinate_PartialFailure_MergesSurvivors(t *testing.T) {
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", text: "hyde output"},
		&stubPipeline{name: "wikidata", err: errors.New("unreachable")},
	}, DefaultOptions())

	res, err := c.Coordinate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != "hyde" {
		t.Errorf("expected hyde to be the only success, got %+v", res.Succeeded)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "wikidata" {
		t.Errorf("expected wikidata recorded as failed, got %+v", res.Failed)
	}
}

func TestCoordinate_AllFail_NoFallback_ReturnsError(t *testing.T) {
	opts := DefaultOptions()
	opts.FallbackOnError = false
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", err: errors.New("down")},
	}, opts)

	if _, err := c.Coordinate(context.Background(), "q"); err == nil {
		t.Error("expected an error when every pipeline fails and fallback is disabled")
	}
}

func TestCoordinate_AllFail_WithFallback_ReturnsQuestion(t *testing.T) {
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", err: errors.New("down")},
	}, DefaultOptions())

	res, err := c.Coordinate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if !res.FellBack || res.Text != "q" {
		t.Errorf("expected fallback to the question text, got %+v", res)
	}
}

func TestCoordinate_TruncatesToMaxCombinedChars(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxCombinedChars = 10
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", text: "this text is much longer than the budget allows"},
	}, opts)

	res, err := c.Coordinate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if len(res.Text) > opts.MaxCombinedChars {
		t.Errorf("expected merged text capped at %d chars, got %d: %q", opts.MaxCombinedChars, len(res.Text), res.Text)
	}
}

func TestCoordinate_Sequential(t *testing.T) {
	opts := DefaultOptions()
	opts.Concurrent = false
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", text: "hyde output"},
	}, opts)

	res, err := c.Coordinate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if len(res.Succeeded) != 1 {
		t.Errorf("expected 1 success in sequential mode, got %+v", res)
	}
}

func TestUpdateOptions_AppliesToSubsequentCoordinate(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxCombinedChars = 1000
	c := NewCoordinator([]Pipeline{
		&stubPipeline{name: "hyde", text: "this text is much longer than the new budget allows"},
	}, opts)

	narrower := opts
	narrower.MaxCombinedChars = 10
	c.UpdateOptions(narrower)

	res, err := c.Coordinate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	if len(res.Text) > 10 {
		t.Errorf("expected the updated budget applied, got %d chars: %q", len(res.Text), res.Text)
	}
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	if w["hyde"] != 0.3 || w["wikipedia"] != 0.4 || w["wikidata"] != 0.3 {
		t.Errorf("unexpected default weights: %+v", w)
	}
}
