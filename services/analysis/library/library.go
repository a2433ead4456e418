// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package library loads reusable pipeline definitions from YAML files
// and compiles them into runnable stage lists.
//
// A definition file looks like:
//
//	name: earnings-deep-dive
//	description: Summarize the latest earnings call and extract guidance.
//	min_engine: "1.2.0"
//	stages:
//	  - name: plan
//	    type: plan
//	    model: qwen3:14b
//	    prompt_template: "Plan the research steps for: {initial_input}"
//	  - name: guidance
//	    type: extract
//	    model: qwen3:14b
//	    prompt_template: "What forward guidance was given? Plan: {plan}"
//	    output_format: json_object
//
// Definitions that fail to parse, validate, or compile are skipped with
// a warning so one broken file cannot take the whole library down.
package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianResearch/services/analysis"
)

// =============================================================================
// Definition types
// =============================================================================

// StageDef is one stage as written in YAML. Stage and output format
// types are plain strings here and converted during Compile.
type StageDef struct {
	Name           string   `yaml:"name" validate:"required,max=128"`
	Type           string   `yaml:"type" validate:"required,stagetype"`
	Model          string   `yaml:"model" validate:"required"`
	PromptTemplate string   `yaml:"prompt_template"`
	Temperature    *float32 `yaml:"temperature"`

	OutputFormat     string `yaml:"output_format"`
	ExtractionSchema string `yaml:"extraction_schema"`
	KKeyword         int    `yaml:"k_keyword"`
	KVector          int    `yaml:"k_vector"`

	Queries       []string `yaml:"queries"`
	QueryTemplate string   `yaml:"query_template"`
	IterateOver   string   `yaml:"iterate_over"`
}

// PipelineDef is a named, versioned pipeline definition.
type PipelineDef struct {
	Name        string     `yaml:"name" validate:"required,max=128"`
	Description string     `yaml:"description"`
	MinEngine   string     `yaml:"min_engine"`
	Stages      []StageDef `yaml:"stages" validate:"required,min=1,max=32,dive"`
}

// defValidate is the validator instance for pipeline definitions.
// Initialized in init() with custom validators.
var defValidate *validator.Validate

func init() {
	defValidate = validator.New()
	_ = defValidate.RegisterValidation("stagetype", validateStageTypeName)
}

// validateStageTypeName accepts only the known stage type names.
func validateStageTypeName(fl validator.FieldLevel) bool {
	_, err := analysis.ParseStageType(fl.Field().String())
	return err == nil
}

// ParseDefinition parses raw YAML definition bytes. Used for inline
// definitions submitted over the API; file loading goes through
// LoadDefinition.
func ParseDefinition(data []byte) (PipelineDef, error) {
	var def PipelineDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}
	return def, nil
}

// LoadDefinition reads and parses a single YAML definition file.
func LoadDefinition(path string) (PipelineDef, error) {
	var def PipelineDef
	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read pipeline definition: %w", err)
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("failed to parse pipeline definition %s: %w", filepath.Base(path), err)
	}
	return def, nil
}

// Compile validates the definition, enforces the engine gate, and
// converts the stages into engine configs.
func (d *PipelineDef) Compile(engineVersion string) ([]analysis.StageConfig, error) {
	if err := defValidate.Struct(d); err != nil {
		return nil, fmt.Errorf("pipeline definition failed validation: %w", err)
	}

	if d.MinEngine != "" {
		required := "v" + strings.TrimPrefix(d.MinEngine, "v")
		if !semver.IsValid(required) {
			return nil, fmt.Errorf("pipeline %q: min_engine %q is not a semantic version", d.Name, d.MinEngine)
		}
		running := "v" + strings.TrimPrefix(engineVersion, "v")
		if semver.Compare(required, running) > 0 {
			return nil, fmt.Errorf("pipeline %q requires engine %s or newer, running %s", d.Name, d.MinEngine, engineVersion)
		}
	}

	seen := make(map[string]bool, len(d.Stages))
	stages := make([]analysis.StageConfig, 0, len(d.Stages))
	for _, s := range d.Stages {
		if seen[s.Name] {
			return nil, fmt.Errorf("pipeline %q: duplicate stage name %q", d.Name, s.Name)
		}
		seen[s.Name] = true

		stageType, err := analysis.ParseStageType(s.Type)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q stage %q: %w", d.Name, s.Name, err)
		}
		format, err := analysis.ParseOutputFormat(s.OutputFormat)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q stage %q: %w", d.Name, s.Name, err)
		}

		cfg := analysis.StageConfig{
			Name:             s.Name,
			Type:             stageType,
			PromptTemplate:   s.PromptTemplate,
			Model:            s.Model,
			Temperature:      s.Temperature,
			OutputFormat:     format,
			ExtractionSchema: s.ExtractionSchema,
			KKeyword:         s.KKeyword,
			KVector:          s.KVector,
			Queries:          s.Queries,
			QueryTemplate:    s.QueryTemplate,
			IterateOver:      s.IterateOver,
		}
		cfg.EnsureDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", d.Name, err)
		}
		stages = append(stages, cfg)
	}
	return stages, nil
}

// =============================================================================
// Library
// =============================================================================

// Entry is one loaded, compiled pipeline.
type Entry struct {
	Def      PipelineDef
	Stages   []analysis.StageConfig
	Path     string
	LoadedAt time.Time
}

// Summary is the listing view of a loaded pipeline.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MinEngine   string `json:"min_engine,omitempty"`
	StageCount  int    `json:"stage_count"`
}

// Library holds the compiled pipeline definitions from one directory.
// Reload swaps the whole set atomically, so readers never observe a
// half-loaded library.
type Library struct {
	dir           string
	engineVersion string

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewLibrary creates an empty library over a definitions directory.
// Call Load before first use.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:           dir,
		engineVersion: analysis.EngineVersion,
		entries:       make(map[string]Entry),
	}
}

// Load scans the directory and compiles every definition. A missing
// directory is not an error; the service just runs without reusable
// pipelines.
func (l *Library) Load() (int, error) {
	return l.Reload()
}

// Reload rescans the directory and atomically replaces the loaded set.
// Returns the number of pipelines now loaded.
func (l *Library) Reload() (int, error) {
	files, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		slog.Info("No pipeline directory, library is empty", "dir", l.dir)
		l.mu.Lock()
		l.entries = make(map[string]Entry)
		l.mu.Unlock()
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pipeline directory %s: %w", l.dir, err)
	}

	next := make(map[string]Entry)
	for _, file := range files {
		if file.IsDir() || !isDefinitionFile(file.Name()) {
			continue
		}
		path := filepath.Join(l.dir, file.Name())

		def, err := LoadDefinition(path)
		if err != nil {
			slog.Warn("Skipping pipeline definition", "path", path, "error", err)
			continue
		}
		stages, err := def.Compile(l.engineVersion)
		if err != nil {
			slog.Warn("Skipping pipeline definition", "path", path, "error", err)
			continue
		}
		if _, dup := next[def.Name]; dup {
			slog.Warn("Skipping duplicate pipeline name", "path", path, "name", def.Name)
			continue
		}

		next[def.Name] = Entry{
			Def:      def,
			Stages:   stages,
			Path:     path,
			LoadedAt: time.Now(),
		}
	}

	l.mu.Lock()
	l.entries = next
	l.mu.Unlock()
	return len(next), nil
}

// Get returns the compiled pipeline by name.
func (l *Library) Get(name string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[name]
	return entry, ok
}

// List returns summaries of every loaded pipeline, sorted by name.
func (l *Library) List() []Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summaries := make([]Summary, 0, len(l.entries))
	for _, entry := range l.entries {
		summaries = append(summaries, Summary{
			Name:        entry.Def.Name,
			Description: entry.Def.Description,
			MinEngine:   entry.Def.MinEngine,
			StageCount:  len(entry.Def.Stages),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

// Len returns the number of loaded pipelines.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
