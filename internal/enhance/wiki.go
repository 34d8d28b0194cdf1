package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// wikiClient is the shared stdlib-only HTTP plumbing for the Wikipedia and
// Wikidata pipelines — grounded on the same "only standard library" style as
// internal/rdf/gateway.go (itself grounded on the teacher's
// pkg/provider/embeddings/ollama/ollama.go). A per-pipeline token bucket
// enforces spec §5's "default 200ms minimum inter-call delay for external
// wikis".
type wikiClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

func newWikiClient(baseURL string) *wikiClient {
	return &wikiClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

func (c *wikiClient) get(ctx context.Context, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wiki: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// WikipediaPipeline fetches the plain-text extract of the best-matching
// article for a question via one MediaWiki Action API "query" request
// (generator=search, prop=extracts).
type WikipediaPipeline struct {
	client *wikiClient
}

// NewWikipediaPipeline creates a pipeline against the public Wikipedia API.
func NewWikipediaPipeline() *WikipediaPipeline {
	return &WikipediaPipeline{client: newWikiClient("https://en.wikipedia.org/w/api.php")}
}

func (p *WikipediaPipeline) Name() string { return "wikipedia" }

type wikipediaQueryResponse struct {
	Query struct {
		Pages map[string]struct {
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

func (p *WikipediaPipeline) Enhance(ctx context.Context, question string) (EnhancementResult, error) {
	body, err := p.client.get(ctx, url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"generator":   {"search"},
		"gsrsearch":   {question},
		"gsrlimit":    {"1"},
		"format":      {"json"},
	})
	if err != nil {
		return EnhancementResult{}, fmt.Errorf("wikipedia: %w", err)
	}
	var parsed wikipediaQueryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return EnhancementResult{}, fmt.Errorf("wikipedia: decode: %w", err)
	}
	for _, page := range parsed.Query.Pages {
		if page.Extract != "" {
			return EnhancementResult{Pipeline: p.Name(), Text: page.Extract}, nil
		}
	}
	return EnhancementResult{Pipeline: p.Name(), Text: ""}, nil
}

var _ Pipeline = (*WikipediaPipeline)(nil)

// WikidataPipeline fetches the description/label of the best-matching
// entity for a question via Wikidata's wbsearchentities action.
type WikidataPipeline struct {
	client *wikiClient
}

// NewWikidataPipeline creates a pipeline against the public Wikidata API.
func NewWikidataPipeline() *WikidataPipeline {
	return &WikidataPipeline{client: newWikiClient("https://www.wikidata.org/w/api.php")}
}

func (p *WikidataPipeline) Name() string { return "wikidata" }

type wikidataSearchResponse struct {
	Search []struct {
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
}

func (p *WikidataPipeline) Enhance(ctx context.Context, question string) (EnhancementResult, error) {
	body, err := p.client.get(ctx, url.Values{
		"action":   {"wbsearchentities"},
		"search":   {question},
		"language": {"en"},
		"limit":    {"1"},
		"format":   {"json"},
	})
	if err != nil {
		return EnhancementResult{}, fmt.Errorf("wikidata: %w", err)
	}
	var parsed wikidataSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return EnhancementResult{}, fmt.Errorf("wikidata: decode: %w", err)
	}
	if len(parsed.Search) == 0 {
		return EnhancementResult{Pipeline: p.Name(), Text: ""}, nil
	}
	r := parsed.Search[0]
	return EnhancementResult{Pipeline: p.Name(), Text: fmt.Sprintf("%s: %s", r.Label, r.Description)}, nil
}

var _ Pipeline = (*WikidataPipeline)(nil)
