// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianResearch/services/llm"
)

// ===== Executor =====

// ExecutorConfig tunes stage execution.
type ExecutorConfig struct {
	// SearchParallelism caps concurrent web-search calls within one
	// Search stage fan-out. Values of 1 or less run queries strictly
	// in order. Results are reassembled in query order either way.
	SearchParallelism int
}

// Executor dispatches a single stage configuration to its behavior.
//
// # Description
//
// Executor implements the six stage behaviors. Dispatch is a closed
// switch over StageType; each behavior renders its prompt from the
// run's Context, performs its external calls, and returns the Value the
// driver records under the stage's name.
//
// Recoverable degradations (template placeholder misses, JSON parse
// misses, per-item query field misses) are recorded as warnings on the
// Context and the stage still succeeds. Unrecoverable conditions
// (unknown model, zero resolved queries, backend failures) abort the
// stage with a typed error.
//
// # Thread Safety
//
// Executor is safe for concurrent use across runs; the per-run Context
// passed to ExecuteStage is not, and must be owned by one run at a time.
type Executor struct {
	completion llm.CompletionClient
	ensemble   *Ensemble
	registry   *llm.ModelRegistry
	config     ExecutorConfig
}

// NewExecutor creates an Executor from its collaborators.
//
// # Inputs
//
//   - completion: Client for plain and web-search-augmented completions.
//   - ensemble: Ensemble used by Extract stages for internal retrieval.
//   - registry: Model registry checked before any external call.
//   - config: Execution tuning. The zero value runs searches sequentially.
//
// # Outputs
//
//   - *Executor: Ready to use executor.
//   - error: Non-nil if any collaborator is nil.
func NewExecutor(completion llm.CompletionClient, ensemble *Ensemble, registry *llm.ModelRegistry, config ExecutorConfig) (*Executor, error) {
	if completion == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	if ensemble == nil {
		return nil, fmt.Errorf("ensemble is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("model registry is required")
	}
	return &Executor{
		completion: completion,
		ensemble:   ensemble,
		registry:   registry,
		config:     config,
	}, nil
}

// ExecuteStage runs one stage and returns its result value.
//
// # Description
//
// Validates the stage's model against the registry, then dispatches on
// the stage type. The returned Value is not yet recorded in the Context;
// the pipeline driver appends it after the stage completes.
//
// # Inputs
//
//   - ctx: Context for cancellation. In-flight external calls observe it.
//   - cfg: The stage configuration. Must have passed Validate.
//   - pc: The run's accumulated context, used for template rendering and
//     warning collection.
//
// # Outputs
//
//   - Value: The stage result to record under cfg.Name.
//   - error: InvalidModelError, NoQueriesError, ContextTooLargeError, or
//     ExternalCallError. Any error aborts the containing run.
func (x *Executor) ExecuteStage(ctx context.Context, cfg StageConfig, pc *Context) (Value, error) {
	ctx, span := tracer.Start(ctx, "ExecuteStage")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage", cfg.Name),
		attribute.String("stage_type", cfg.Type.String()),
		attribute.String("model", cfg.Model),
	)

	if !x.registry.IsValid(cfg.Model) {
		err := &InvalidModelError{Model: cfg.Model}
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid model")
		return Value{}, err
	}

	var result Value
	var err error
	switch cfg.Type {
	case StagePlan:
		result, err = x.runPlan(ctx, cfg, pc)
	case StageExtract:
		result, err = x.runExtract(ctx, cfg, pc)
	case StageSearch:
		result, err = x.runSearch(ctx, cfg, pc)
	case StageTransform, StageGenerate:
		// A Generate stage is a Transform stage whose intent is content
		// creation; the engine treats them identically.
		result, err = x.runTransform(ctx, cfg, pc)
	case StageCombine:
		result, err = x.runCombine(ctx, cfg, pc)
	default:
		err = fmt.Errorf("unhandled stage type %q", cfg.Type)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		return Value{}, err
	}
	return result, nil
}

// complete renders nothing itself; it wraps the completion call with the
// stage's sampling parameters and the shared error taxonomy.
func (x *Executor) complete(ctx context.Context, cfg StageConfig, prompt string) (string, error) {
	response, err := x.completion.Complete(ctx, prompt, cfg.Model, llm.GenerationParams{
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", &ExternalCallError{Op: "completion", Err: err}
	}
	return response, nil
}

// ===== Plan =====

// runPlan renders the prompt, completes it, and extracts the plan object.
// A response with no parseable JSON object degrades to
// {"raw_text": ..., "parse_error": ...} instead of failing the stage.
func (x *Executor) runPlan(ctx context.Context, cfg StageConfig, pc *Context) (Value, error) {
	prompt := pc.Render(cfg.PromptTemplate)
	response, err := x.complete(ctx, cfg, prompt)
	if err != nil {
		return Value{}, err
	}

	plan, err := ExtractJSONObject(response)
	if err != nil {
		pc.Warn(cfg.Name, "plan response kept as raw text: %v", err)
		return ObjectValue(map[string]any{
			"raw_text":    response,
			"parse_error": err.Error(),
		}), nil
	}
	return ObjectValue(plan), nil
}

// ===== Extract =====

// runExtract answers the rendered prompt from the internal corpus only,
// then applies best-effort format coercion when the stage requests a
// structured output.
func (x *Executor) runExtract(ctx context.Context, cfg StageConfig, pc *Context) (Value, error) {
	question := pc.Render(cfg.PromptTemplate)
	if cfg.ExtractionSchema != "" {
		question += "\n\nReturn data matching this structure:\n" + cfg.ExtractionSchema
	}

	answer, err := x.ensemble.Answer(ctx, AnswerRequest{
		Question:      question,
		KKeyword:      cfg.KKeyword,
		KVector:       cfg.KVector,
		Model:         cfg.Model,
		PriorityOrder: []string{SourceInternal},
		Temperature:   cfg.Temperature,
	})
	if err != nil {
		return Value{}, err
	}

	switch cfg.OutputFormat {
	case FormatJSONObject:
		obj, err := ExtractJSONObject(answer.Answer)
		if err != nil {
			pc.Warn(cfg.Name, "extract response kept as raw text: %v", err)
			return ObjectValue(map[string]any{
				"raw_text":    answer.Answer,
				"parse_error": err.Error(),
			}), nil
		}
		return ObjectValue(obj), nil
	case FormatJSONList:
		items, err := ExtractJSONList(answer.Answer)
		if err != nil {
			pc.Warn(cfg.Name, "extract response kept as raw text: %v", err)
			return TextValue(answer.Answer), nil
		}
		return ListValue(items), nil
	default:
		return TextValue(answer.Answer), nil
	}
}

// ===== Search =====

// searchResult pairs a dispatched query with its response, in dispatch order.
type searchResult struct {
	query  string
	result string
}

// runSearch resolves the stage's queries, executes each against the
// web-search-augmented completion service, and shapes the result: one
// query returns its text directly, several return the ordered list of
// (query, result) pairs.
func (x *Executor) runSearch(ctx context.Context, cfg StageConfig, pc *Context) (Value, error) {
	queries := x.resolveQueries(cfg, pc)
	if len(queries) == 0 {
		return Value{}, &NoQueriesError{Stage: cfg.Name}
	}

	results, err := x.executeSearchQueries(ctx, cfg, queries)
	if err != nil {
		return Value{}, err
	}

	if len(results) == 1 {
		return TextValue(results[0].result), nil
	}
	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"query":  r.query,
			"result": r.result,
		})
	}
	return ListValue(items), nil
}

// resolveQueries produces the ordered query list for a Search stage.
//
// Three forms, checked in order: a static query list (each rendered
// against the Context), a query template iterated over a prior stage's
// list result (one query per item, rendered from the item's fields), or
// a single query rendered from the template alone.
func (x *Executor) resolveQueries(cfg StageConfig, pc *Context) []string {
	if len(cfg.Queries) > 0 {
		queries := make([]string, 0, len(cfg.Queries))
		for _, q := range cfg.Queries {
			queries = append(queries, pc.Render(q))
		}
		return queries
	}

	if cfg.IterateOver != "" {
		items := pc.ResolveList(cfg.Name, cfg.IterateOver)
		queries := make([]string, 0, len(items))
		for i, item := range items {
			query, missing, ok := renderQueryFromItem(cfg.QueryTemplate, item)
			if !ok {
				pc.Warn(cfg.Name, "skipping item %d of %s: no field %q", i, cfg.IterateOver, missing)
				continue
			}
			queries = append(queries, query)
		}
		return queries
	}

	return []string{pc.Render(cfg.QueryTemplate)}
}

// renderQueryFromItem renders a query template against one iteration
// item. Placeholders resolve against the item's fields only, walking
// dotted paths into nested objects. Any unresolvable placeholder fails
// the whole item so a half-rendered query is never dispatched.
func renderQueryFromItem(template string, item map[string]any) (rendered string, missing string, ok bool) {
	ok = true
	rendered = placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		ref := match[1 : len(match)-1]
		var current any = item
		for _, segment := range strings.Split(ref, ".") {
			obj, isObj := current.(map[string]any)
			if !isObj {
				missing, ok = ref, false
				return match
			}
			val, found := obj[segment]
			if !found {
				missing, ok = ref, false
				return match
			}
			current = val
		}
		return renderAny(current)
	})
	if !ok {
		return "", missing, false
	}
	return rendered, "", true
}

// executeSearchQueries dispatches every query and reassembles responses
// in query order. With SearchParallelism above 1 the calls fan out in a
// bounded errgroup; output ordering is identical either way.
func (x *Executor) executeSearchQueries(ctx context.Context, cfg StageConfig, queries []string) ([]searchResult, error) {
	results := make([]searchResult, len(queries))

	if x.config.SearchParallelism > 1 && len(queries) > 1 {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(x.config.SearchParallelism)
		for i, query := range queries {
			i, query := i, query
			g.Go(func() error {
				response, err := x.completion.CompleteWithSearch(gCtx, query, cfg.Model)
				if err != nil {
					return &ExternalCallError{Op: fmt.Sprintf("web search %q", query), Err: err}
				}
				results[i] = searchResult{query: query, result: response}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	for i, query := range queries {
		response, err := x.completion.CompleteWithSearch(ctx, query, cfg.Model)
		if err != nil {
			return nil, &ExternalCallError{Op: fmt.Sprintf("web search %q", query), Err: err}
		}
		results[i] = searchResult{query: query, result: response}
	}
	return results, nil
}

// ===== Transform / Generate =====

// runTransform renders the prompt, completes it, and coerces the
// response into the requested output format. Coercion is best-effort:
// a parse miss records a warning and keeps the raw text.
func (x *Executor) runTransform(ctx context.Context, cfg StageConfig, pc *Context) (Value, error) {
	prompt := pc.Render(cfg.PromptTemplate)
	response, err := x.complete(ctx, cfg, prompt)
	if err != nil {
		return Value{}, err
	}

	switch cfg.OutputFormat {
	case FormatJSONObject:
		obj, err := ExtractJSONObject(response)
		if err != nil {
			pc.Warn(cfg.Name, "transform output kept as raw text: %v", err)
			return TextValue(response), nil
		}
		return ObjectValue(obj), nil
	case FormatJSONList:
		items, err := ExtractJSONList(response)
		if err != nil {
			pc.Warn(cfg.Name, "transform output kept as raw text: %v", err)
			return TextValue(response), nil
		}
		return ListValue(items), nil
	default:
		return TextValue(response), nil
	}
}

// ===== Combine =====

// runCombine renders the prompt, typically referencing several prior
// stages by name, and returns the raw response without coercion.
func (x *Executor) runCombine(ctx context.Context, cfg StageConfig, pc *Context) (Value, error) {
	prompt := pc.Render(cfg.PromptTemplate)
	response, err := x.complete(ctx, cfg, prompt)
	if err != nil {
		return Value{}, err
	}
	return TextValue(response), nil
}
