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
	"fmt"
)

// =============================================================================
// Stage types
// =============================================================================

// StageType is the closed set of pipeline stage kinds. Dispatch over
// stage types is an exhaustive switch; adding a kind is a compile-time
// change everywhere dispatch occurs, not a stringly-typed fallthrough.
type StageType int

const (
	// StagePlan asks the model to produce a JSON plan object.
	StagePlan StageType = iota + 1
	// StageExtract answers a rendered question over the internal corpus
	// via ensemble answering, optionally coercing the result to JSON.
	StageExtract
	// StageSearch issues one or more web-search-augmented queries.
	StageSearch
	// StageTransform reshapes prior results through a completion call.
	StageTransform
	// StageGenerate creates new content; engine-identical to Transform.
	StageGenerate
	// StageCombine synthesizes prior results into raw text.
	StageCombine
)

var stageTypeNames = map[StageType]string{
	StagePlan:      "plan",
	StageExtract:   "extract",
	StageSearch:    "search",
	StageTransform: "transform",
	StageGenerate:  "generate",
	StageCombine:   "combine",
}

// String returns the wire name of the stage type.
func (t StageType) String() string {
	if name, ok := stageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("StageType(%d)", int(t))
}

// Valid reports whether t is one of the six known kinds.
func (t StageType) Valid() bool {
	_, ok := stageTypeNames[t]
	return ok
}

// ParseStageType maps a wire name back to its stage type.
func ParseStageType(name string) (StageType, error) {
	for t, n := range stageTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown stage type %q", name)
}

// MarshalText implements encoding.TextMarshaler so stage types
// serialize by name in JSON payloads.
func (t StageType) MarshalText() ([]byte, error) {
	name, ok := stageTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown stage type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *StageType) UnmarshalText(text []byte) error {
	parsed, err := ParseStageType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// Output formats
// =============================================================================

// OutputFormat selects the best-effort coercion applied to completion
// output by Extract, Transform, and Generate stages. The zero value is
// raw text, so omitting the field in a stage definition means "no
// coercion".
type OutputFormat int

const (
	// FormatRawText returns model output verbatim.
	FormatRawText OutputFormat = iota
	// FormatJSONObject attempts a greedy brace-span object extraction.
	FormatJSONObject
	// FormatJSONList attempts a greedy bracket-span list extraction.
	FormatJSONList
)

var outputFormatNames = map[OutputFormat]string{
	FormatRawText:    "raw_text",
	FormatJSONObject: "json_object",
	FormatJSONList:   "json_list",
}

// String returns the wire name of the format.
func (f OutputFormat) String() string {
	if name, ok := outputFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("OutputFormat(%d)", int(f))
}

// ParseOutputFormat maps a wire name to its format. The empty string
// parses as raw text.
func ParseOutputFormat(name string) (OutputFormat, error) {
	if name == "" {
		return FormatRawText, nil
	}
	for f, n := range outputFormatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown output format %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (f OutputFormat) MarshalText() ([]byte, error) {
	name, ok := outputFormatNames[f]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown output format %d", int(f))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *OutputFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseOutputFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// =============================================================================
// Stage configuration
// =============================================================================

// Default retrieval sizes for Extract stages that do not set their own.
const (
	DefaultKKeyword = 10
	DefaultKVector  = 10
)

// StageConfig describes one pipeline step. Configs are treated as
// immutable once a run starts; EnsureDefaults and validation happen
// before the first stage executes.
//
// Kind-specific fields:
//
//   - Extract: ExtractionSchema (optional hint appended to the prompt),
//     KKeyword and KVector retrieval sizes.
//   - Search: either a static Queries list, or QueryTemplate with an
//     optional IterateOver field path into a prior list-valued result.
//   - Extract, Transform, Generate: OutputFormat coercion.
type StageConfig struct {
	Name           string    `json:"name"`
	Type           StageType `json:"stage_type"`
	PromptTemplate string    `json:"prompt_template,omitempty"`
	Model          string    `json:"model"`
	Temperature    *float32  `json:"temperature,omitempty"`

	OutputFormat     OutputFormat `json:"output_format,omitempty"`
	ExtractionSchema string       `json:"extraction_schema,omitempty"`
	KKeyword         int          `json:"k_keyword,omitempty"`
	KVector          int          `json:"k_vector,omitempty"`

	Queries       []string `json:"queries,omitempty"`
	QueryTemplate string   `json:"query_template,omitempty"`
	IterateOver   string   `json:"iterate_over,omitempty"`
}

// EnsureDefaults fills retrieval sizes for Extract stages.
func (s *StageConfig) EnsureDefaults() {
	if s.Type == StageExtract {
		if s.KKeyword <= 0 {
			s.KKeyword = DefaultKKeyword
		}
		if s.KVector <= 0 {
			s.KVector = DefaultKVector
		}
	}
}

// Validate checks the config's internal consistency. Cross-stage rules
// (name uniqueness within a run) live in the pipeline driver.
func (s *StageConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	if s.Name == InitialInputKey {
		return fmt.Errorf("stage name %q is reserved", InitialInputKey)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("stage %q: unknown stage type", s.Name)
	}
	if s.Model == "" {
		return fmt.Errorf("stage %q: model is required", s.Name)
	}

	switch s.Type {
	case StageSearch:
		if len(s.Queries) == 0 && s.QueryTemplate == "" {
			return fmt.Errorf("stage %q: search needs queries or a query_template", s.Name)
		}
		if len(s.Queries) > 0 && s.QueryTemplate != "" {
			return fmt.Errorf("stage %q: queries and query_template are mutually exclusive", s.Name)
		}
		if s.IterateOver != "" && s.QueryTemplate == "" {
			return fmt.Errorf("stage %q: iterate_over requires a query_template", s.Name)
		}
	default:
		if s.PromptTemplate == "" {
			return fmt.Errorf("stage %q: prompt_template is required for %s stages", s.Name, s.Type)
		}
	}
	return nil
}
