package enhance

import (
	"context"
	"fmt"

	"github.com/MrWong99/semem/pkg/provider/llm"
	"github.com/MrWong99/semem/pkg/types"
)

// hydePrompt asks the LLM to write a hypothetical answer document, per the
// HyDE (Hypothetical Document Embeddings) technique named in spec §4.C8.
const hydePrompt = `Write a short, plausible passage (3-5 sentences) that would answer the following question, as if it were an excerpt from a reference document. Do not mention that it is hypothetical.

Question: %s`

// HyDEPipeline generates a hypothetical answer passage via an LLM, used to
// widen retrieval recall before the real similarity search runs.
type HyDEPipeline struct {
	provider llm.Provider
}

// NewHyDEPipeline wraps provider as a HyDE [Pipeline].
func NewHyDEPipeline(provider llm.Provider) *HyDEPipeline {
	return &HyDEPipeline{provider: provider}
}

func (p *HyDEPipeline) Name() string { return "hyde" }

func (p *HyDEPipeline) Enhance(ctx context.Context, question string) (EnhancementResult, error) {
	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "user", Content: fmt.Sprintf(hydePrompt, question)},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		return EnhancementResult{}, fmt.Errorf("hyde: %w", err)
	}
	return EnhancementResult{Pipeline: p.Name(), Text: resp.Content}, nil
}

var _ Pipeline = (*HyDEPipeline)(nil)
