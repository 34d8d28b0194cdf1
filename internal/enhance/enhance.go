// Package enhance implements C8, the Enhancement Coordinator: optional
// external context pipelines (HyDE / Wikipedia / Wikidata) run concurrently
// and merged under a weighted length budget (spec §4.C8).
package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EnhancementResult is one pipeline's contribution before merging.
type EnhancementResult struct {
	Pipeline string
	Text     string
}

// Pipeline is the narrow interface C8 drives each enrichment source
// through — grounded on SPEC_FULL.md §6's `Enhancer` interface and the
// teacher's per-collaborator provider-interface style.
type Pipeline interface {
	Name() string
	Enhance(ctx context.Context, question string) (EnhancementResult, error)
}

// Weights assigns a merge weight per pipeline name; spec §4.C8 defaults:
// HyDE 0.3, Wikipedia 0.4, Wikidata 0.3.
type Weights map[string]float64

// DefaultWeights returns the spec-named defaults.
func DefaultWeights() Weights {
	return Weights{"hyde": 0.3, "wikipedia": 0.4, "wikidata": 0.3}
}

// Options configures one Coordinate call.
type Options struct {
	Weights          Weights
	MaxCombinedChars int  // default 8000
	Concurrent       bool // default true
	FallbackOnError  bool // default true
}

// DefaultOptions returns spec §4.C8's named defaults.
func DefaultOptions() Options {
	return Options{Weights: DefaultWeights(), MaxCombinedChars: 8000, Concurrent: true, FallbackOnError: true}
}

// Coordinator runs a fixed set of enhancement pipelines and merges their
// output.
type Coordinator struct {
	pipelines []Pipeline

	mu   sync.RWMutex
	opts Options
}

// NewCoordinator wires pipelines (1..3 of HyDE/Wikipedia/Wikidata) under
// opts.
func NewCoordinator(pipelines []Pipeline, opts Options) *Coordinator {
	return &Coordinator{pipelines: pipelines, opts: normalizeOptions(opts)}
}

func normalizeOptions(opts Options) Options {
	if opts.Weights == nil {
		opts.Weights = DefaultWeights()
	}
	if opts.MaxCombinedChars == 0 {
		opts.MaxCombinedChars = 8000
	}
	return opts
}

// UpdateOptions swaps the merge weights/budget in place, for a config hot
// reload (spec §6) — in-flight Coordinate calls finish with whichever
// options they already read.
func (c *Coordinator) UpdateOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = normalizeOptions(opts)
}

// Result is the merged enhancement context handed back to C7/C5.
type Result struct {
	Text      string
	Succeeded []string // pipeline names that produced a result
	Failed    []string // pipeline names that errored
	FellBack  bool      // true if no pipeline succeeded and Text == original query
}

// Coordinate runs every configured pipeline (concurrently by default, per
// opts.Concurrent), merges successful results weighted by opts.Weights and
// truncated to opts.MaxCombinedChars, and falls back to the unmodified
// query if none succeed (spec §4.C8).
func (c *Coordinator) Coordinate(ctx context.Context, question string) (*Result, error) {
	if len(c.pipelines) == 0 {
		return &Result{Text: question, FellBack: true}, nil
	}

	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()

	type outcome struct {
		res EnhancementResult
		err error
	}
	outcomes := make([]outcome, len(c.pipelines))

	run := func(i int) {
		res, err := c.pipelines[i].Enhance(ctx, question)
		outcomes[i] = outcome{res: res, err: err}
	}

	if opts.Concurrent {
		g, gctx := errgroup.WithContext(ctx)
		_ = gctx
		for i := range c.pipelines {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range c.pipelines {
			run(i)
		}
	}

	var succeeded, failed []string
	type weighted struct {
		name   string
		text   string
		weight float64
	}
	var parts []weighted
	for i, o := range outcomes {
		name := c.pipelines[i].Name()
		if o.err != nil {
			failed = append(failed, name)
			slog.Warn("enhance: pipeline failed", "pipeline", name, "error", o.err)
			continue
		}
		succeeded = append(succeeded, name)
		parts = append(parts, weighted{name: name, text: o.res.Text, weight: opts.Weights[name]})
	}

	if len(parts) == 0 {
		if !opts.FallbackOnError {
			return nil, fmt.Errorf("enhance: all pipelines failed: %v", failed)
		}
		return &Result{Text: question, Succeeded: succeeded, Failed: failed, FellBack: true}, nil
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].weight > parts[j].weight })

	var b strings.Builder
	for _, p := range parts {
		if p.text == "" {
			continue
		}
		budget := int(float64(opts.MaxCombinedChars) * p.weight)
		text := p.text
		if budget > 0 && len(text) > budget {
			text = text[:budget]
		}
		if b.Len()+len(text) > opts.MaxCombinedChars {
			remaining := opts.MaxCombinedChars - b.Len()
			if remaining <= 0 {
				break
			}
			text = text[:remaining]
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return &Result{Text: b.String(), Succeeded: succeeded, Failed: failed}, nil
}
