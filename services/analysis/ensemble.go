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
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

var tracer = otel.Tracer("research.analysis")

// ===== Knowledge Sources =====

// Knowledge source names accepted in an AnswerRequest priority order.
const (
	SourceInternal = "internal"
	SourceOnline   = "online"
)

// MinRetrievalK is the floor for budget-reduction halving. Below five
// passages per retriever the evidence is too thin to answer from anyway.
const MinRetrievalK = 5

// Fusion weights for merging keyword and vector result lists.
const (
	keywordFusionWeight = 0.5
	vectorFusionWeight  = 0.5
)

// normalizeSource maps accepted source aliases onto canonical names.
// Returns the canonical name and whether the input was recognized.
func normalizeSource(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SourceInternal, "internal_corpus":
		return SourceInternal, true
	case SourceOnline, "online_search", "web":
		return SourceOnline, true
	default:
		return "", false
	}
}

// ===== Request / Result =====

// AnswerRequest configures one ensemble answering call.
//
// # Description
//
// PriorityOrder lists the knowledge sources to consult, highest priority
// first; the first entry wins conflict resolution in the synthesis prompt.
// Sources absent from PriorityOrder are not consulted at all. Aliases
// "online_search", "web", and "internal_corpus" are accepted and
// normalized by EnsureDefaults.
type AnswerRequest struct {
	Question          string   `json:"question"`
	KKeyword          int      `json:"k_keyword,omitempty"`
	KVector           int      `json:"k_vector,omitempty"`
	Model             string   `json:"model"`
	PriorityOrder     []string `json:"priority_order,omitempty"`
	AutoReduceOnLimit *bool    `json:"auto_reduce_on_limit,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty"`
}

// EnsureDefaults fills unset fields with production defaults.
//
// # Description
//
// Defaults: k_keyword and k_vector 10, priority order internal then
// online, auto reduce enabled, temperature 0.2. Source aliases in
// PriorityOrder are rewritten to canonical names; unknown names are left
// in place for Validate to reject.
func (r *AnswerRequest) EnsureDefaults() {
	if r.KKeyword <= 0 {
		r.KKeyword = DefaultKKeyword
	}
	if r.KVector <= 0 {
		r.KVector = DefaultKVector
	}
	if len(r.PriorityOrder) == 0 {
		r.PriorityOrder = []string{SourceInternal, SourceOnline}
	} else {
		// Normalize into a fresh slice; the caller's backing array is
		// not ours to rewrite.
		normalized := make([]string, len(r.PriorityOrder))
		for i, source := range r.PriorityOrder {
			if canonical, ok := normalizeSource(source); ok {
				normalized[i] = canonical
			} else {
				normalized[i] = source
			}
		}
		r.PriorityOrder = normalized
	}
	if r.AutoReduceOnLimit == nil {
		enabled := true
		r.AutoReduceOnLimit = &enabled
	}
	if r.Temperature == nil {
		r.Temperature = llm.Float32Ptr(0.2)
	}
}

// Validate checks the request for structural problems.
//
// # Outputs
//
//   - error: Non-nil if the question or model is empty, PriorityOrder
//     contains an unknown source, or a source is listed twice. Model
//     registry membership is checked by Answer, not here.
func (r *AnswerRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("question is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	seen := make(map[string]bool, len(r.PriorityOrder))
	for _, source := range r.PriorityOrder {
		canonical, ok := normalizeSource(source)
		if !ok {
			return fmt.Errorf("unknown knowledge source %q (valid: %s, %s)", source, SourceInternal, SourceOnline)
		}
		if seen[canonical] {
			return fmt.Errorf("knowledge source %q listed more than once", canonical)
		}
		seen[canonical] = true
	}
	return nil
}

// AnswerResult is the outcome of one ensemble answering call.
type AnswerResult struct {
	// Answer is the synthesized answer text.
	Answer string `json:"answer"`

	// OnlineRaw is the raw web-search response, or the unavailability
	// placeholder if online search failed, or empty if online was not
	// in the priority order.
	OnlineRaw string `json:"online_raw,omitempty"`

	// Sources is the fused internal passage list the answer drew from.
	Sources []retrieval.Passage `json:"sources,omitempty"`

	// KKeywordUsed and KVectorUsed are the retrieval sizes of the
	// attempt that fit the token budget. They differ from the request
	// when budget reduction kicked in.
	KKeywordUsed int `json:"k_keyword_used"`
	KVectorUsed  int `json:"k_vector_used"`
}

// ===== Ensemble =====

// Ensemble answers questions by fusing internal corpus retrieval with
// live web search and synthesizing a single reply through the completion
// service.
//
// # Description
//
// Ensemble is the two-source question-answering routine used standalone
// by the /v1/answer endpoint and as the Extract building block inside
// pipelines. Evidence gathering honors the request's priority order;
// the synthesis prompt states an explicit conflict-resolution rule so
// disagreements between corpus and web resolve deterministically.
//
// When the rendered prompt exceeds the model's context window and auto
// reduce is enabled, both retrieval sizes are halved (floor MinRetrievalK)
// and evidence is gathered once more. The reduction runs at most once;
// a prompt still over the limit after reduction fails with
// ContextTooLargeError.
//
// # Thread Safety
//
// Ensemble is safe for concurrent use provided its collaborators are.
// Each Answer call owns all of its intermediate state.
//
// # Example
//
//	ensemble, err := analysis.NewEnsemble(keywordRet, vectorRet, client, registry)
//	result, err := ensemble.Answer(ctx, analysis.AnswerRequest{
//	    Question: "Who supplies battery-grade lithium to Tesla?",
//	    Model:    "gpt-4o",
//	})
type Ensemble struct {
	keyword    retrieval.Retriever
	vector     retrieval.Retriever
	completion llm.CompletionClient
	registry   *llm.ModelRegistry
}

// NewEnsemble creates an Ensemble from its collaborators.
//
// # Inputs
//
//   - keyword: Retriever for BM25 keyword search over the corpus.
//   - vector: Retriever for embedding similarity search over the corpus.
//   - completion: Client for plain and web-search-augmented completions.
//   - registry: Model registry used for validation and token limits.
//
// # Outputs
//
//   - *Ensemble: Ready to use instance.
//   - error: Non-nil if any collaborator is nil.
func NewEnsemble(keyword, vector retrieval.Retriever, completion llm.CompletionClient, registry *llm.ModelRegistry) (*Ensemble, error) {
	if keyword == nil || vector == nil {
		return nil, fmt.Errorf("keyword and vector retrievers are required")
	}
	if completion == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("model registry is required")
	}
	return &Ensemble{
		keyword:    keyword,
		vector:     vector,
		completion: completion,
		registry:   registry,
	}, nil
}

// Answer runs the full ensemble answering algorithm.
//
// # Description
//
// Validates the request and the model, gathers evidence from the sources
// in the request's priority order, renders the synthesis prompt, checks
// it against the model's token limit (reducing retrieval sizes once if
// allowed), and calls the completion service for the final answer. The
// caller-specified model is used for every completion call, including
// online search.
//
// # Inputs
//
//   - ctx: Context for cancellation. Checked around each external call.
//   - req: The answering request. Defaults are applied to a copy; the
//     caller's struct is not mutated.
//
// # Outputs
//
//   - *AnswerResult: The answer plus evidence bookkeeping.
//   - error: InvalidModelError for an unregistered model,
//     ContextTooLargeError when the budget is exhausted,
//     ExternalCallError for retriever or completion failures, or a plain
//     validation error for a malformed request.
//
// # Limitations
//
//   - Online search failure is downgraded to a placeholder string in the
//     knowledge base, except when caused by cancellation of ctx.
func (e *Ensemble) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	ctx, span := tracer.Start(ctx, "EnsembleAnswer")
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}
	if !e.registry.IsValid(req.Model) {
		err := &InvalidModelError{Model: req.Model}
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid model")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model", req.Model),
		attribute.Int("k_keyword", req.KKeyword),
		attribute.Int("k_vector", req.KVector),
	)

	kk, kv := req.KKeyword, req.KVector
	autoReduce := *req.AutoReduceOnLimit

	// Bounded retry: at most one budget reduction pass. The flag flips
	// to false on the retry so a second overflow exits the loop.
	for {
		evidence, err := e.gatherEvidence(ctx, &req, kk, kv)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "evidence gathering failed")
			return nil, err
		}

		prompt := buildAnswerPrompt(req.Question, req.PriorityOrder, evidence.knowledge)
		tokens, limit, exceeds := e.registry.CheckLimit(prompt, req.Model)
		if !exceeds {
			answer, err := e.completion.Complete(ctx, prompt, req.Model, llm.GenerationParams{
				Temperature: req.Temperature,
			})
			if err != nil {
				wrapped := &ExternalCallError{Op: "completion", Err: err}
				span.RecordError(wrapped)
				span.SetStatus(codes.Error, "completion failed")
				return nil, wrapped
			}
			return &AnswerResult{
				Answer:       answer,
				OnlineRaw:    evidence.onlineRaw,
				Sources:      evidence.fused,
				KKeywordUsed: kk,
				KVectorUsed:  kv,
			}, nil
		}

		tooLarge := &ContextTooLargeError{
			Model:    req.Model,
			Tokens:   tokens,
			Limit:    limit,
			KKeyword: kk,
			KVector:  kv,
		}
		if !autoReduce {
			span.RecordError(tooLarge)
			span.SetStatus(codes.Error, "context too large")
			return nil, tooLarge
		}

		hk, hv := halveFloor(kk), halveFloor(kv)
		if hk >= kk && hv >= kv {
			// Already at the floor; reducing again would change nothing.
			span.RecordError(tooLarge)
			span.SetStatus(codes.Error, "context too large at floor")
			return nil, tooLarge
		}

		slog.Warn("Prompt exceeds model context window, reducing retrieval sizes",
			"model", req.Model,
			"tokens", tokens,
			"limit", limit,
			"kKeyword", kk, "kVector", kv,
			"reducedKKeyword", hk, "reducedKVector", hv)
		span.AddEvent("budget reduction")
		kk, kv = hk, hv
		autoReduce = false
	}
}

// halveFloor halves a retrieval size, never going below MinRetrievalK.
func halveFloor(k int) int {
	half := k / 2
	if half < MinRetrievalK {
		return MinRetrievalK
	}
	return half
}

// gatheredEvidence carries one evidence-gathering pass's output.
type gatheredEvidence struct {
	// knowledge maps canonical source name to concatenated evidence text,
	// populated only for sources in the request's priority order.
	knowledge map[string]string
	onlineRaw string
	fused     []retrieval.Passage
}

// gatherEvidence consults each source in the request's priority order.
//
// Internal retrieval failures are fatal. An online search failure is
// downgraded to a placeholder string unless ctx itself was canceled,
// in which case the cancellation propagates.
func (e *Ensemble) gatherEvidence(ctx context.Context, req *AnswerRequest, kk, kv int) (*gatheredEvidence, error) {
	evidence := &gatheredEvidence{knowledge: make(map[string]string, len(req.PriorityOrder))}

	for _, source := range req.PriorityOrder {
		switch source {
		case SourceInternal:
			keywordPassages, err := e.keyword.Retrieve(ctx, req.Question, kk)
			if err != nil {
				return nil, &ExternalCallError{Op: "keyword retrieval", Err: err}
			}
			vectorPassages, err := e.vector.Retrieve(ctx, req.Question, kv)
			if err != nil {
				return nil, &ExternalCallError{Op: "vector retrieval", Err: err}
			}
			evidence.fused = retrieval.FuseWeighted(keywordPassages, vectorPassages, keywordFusionWeight, vectorFusionWeight)
			evidence.knowledge[SourceInternal] = formatPassages(evidence.fused)

		case SourceOnline:
			text, err := e.completion.CompleteWithSearch(ctx, req.Question, req.Model)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Warn("Online search unavailable, continuing with placeholder", "error", err)
				text = fmt.Sprintf("[Online search unavailable: %v]", err)
			}
			evidence.onlineRaw = text
			evidence.knowledge[SourceOnline] = text
		}
	}
	return evidence, nil
}

// formatPassages concatenates fused passages into knowledge-base text,
// tagging each with its source document so the model can cite it.
func formatPassages(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return "(no passages retrieved)"
	}
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", p.Source, p.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// ===== Prompt Construction =====

// sourceHeadings maps canonical source names to prompt section headings.
var sourceHeadings = map[string]string{
	SourceInternal: "INTERNAL CORPUS",
	SourceOnline:   "ONLINE SEARCH",
}

const answerInstructions = `Instructions:
- When the sources disagree on a numeric or conceptual point, defer to the first-priority source.
- When the sources disagree on a temporal claim, prefer the claim with the most recent date.
- Use only the content provided above. Do not fabricate information.
- Answer factually and without embellishment, emphasizing the key facts.`

// buildAnswerPrompt renders the fixed-shape synthesis prompt: the
// question, each knowledge source under a numbered heading in priority
// order, and the conflict-resolution instructions.
func buildAnswerPrompt(question string, priorityOrder []string, knowledge map[string]string) string {
	var b strings.Builder
	b.WriteString("You are a research analyst answering a question from the knowledge sources below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Knowledge sources in priority order:\n\n")
	for i, source := range priorityOrder {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, sourceHeadings[source], knowledge[source])
	}
	b.WriteString(answerInstructions)
	return b.String()
}
