// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func newHistoryModel(history []string, draft string) inputModel {
	ti := textinput.New()
	ti.SetValue(draft)
	return inputModel{
		textInput:    ti,
		history:      history,
		historyIndex: -1,
	}
}

func TestInputModelHistoryNavigation(t *testing.T) {
	m := newHistoryModel([]string{"first question", "second question"}, "draft")

	// Up walks backwards through history, newest first
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(inputModel)
	if m.textInput.Value() != "second question" {
		t.Errorf("First KeyUp should recall the newest entry, got %q", m.textInput.Value())
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(inputModel)
	if m.textInput.Value() != "first question" {
		t.Errorf("Second KeyUp should recall the oldest entry, got %q", m.textInput.Value())
	}

	// Down walks forward and finally restores the unfinished draft
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(inputModel)
	if m.textInput.Value() != "second question" {
		t.Errorf("KeyDown should step forward, got %q", m.textInput.Value())
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(inputModel)
	if m.textInput.Value() != "draft" {
		t.Errorf("Leaving history should restore the draft, got %q", m.textInput.Value())
	}
	if m.historyIndex != -1 {
		t.Errorf("historyIndex should reset to -1, got %d", m.historyIndex)
	}
}

func TestInputModelUpOnEmptyHistory(t *testing.T) {
	m := newHistoryModel(nil, "draft")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(inputModel)
	if m.textInput.Value() != "draft" {
		t.Errorf("KeyUp with no history should leave the draft alone, got %q", m.textInput.Value())
	}
}

func TestInputModelEnterSubmits(t *testing.T) {
	m := newHistoryModel(nil, "ship it")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(inputModel)
	if !m.done {
		t.Error("Enter should mark the model done")
	}
	if cmd == nil {
		t.Error("Enter should quit the program")
	}
	if m.textInput.Value() != "ship it" {
		t.Errorf("Enter should keep the typed value, got %q", m.textInput.Value())
	}
}

func TestInputModelCtrlDSignalsEOF(t *testing.T) {
	m := newHistoryModel(nil, "")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	m = updated.(inputModel)
	if !m.cancelled {
		t.Error("Ctrl+D should mark the model cancelled")
	}
	if m.textInput.Value() != "" {
		t.Errorf("Ctrl+D should clear the value, got %q", m.textInput.Value())
	}
}

func TestAddToHistory(t *testing.T) {
	r := &InteractiveInputReader{maxHistory: 2}

	r.addToHistory("alpha")
	r.addToHistory("alpha") // immediate repeat is dropped
	if len(r.history) != 1 {
		t.Fatalf("Expected deduped history of 1, got %d", len(r.history))
	}

	r.addToHistory("beta")
	r.addToHistory("gamma")
	if len(r.history) != 2 {
		t.Fatalf("History should be capped at 2, got %d", len(r.history))
	}
	if r.history[0] != "beta" || r.history[1] != "gamma" {
		t.Errorf("Oldest entry should be evicted, got %v", r.history)
	}
}
