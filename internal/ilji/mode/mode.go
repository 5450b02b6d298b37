// Package mode maps a conversation's display label to a Mode: the system
// prompt, model tier, rate class and save strategy that govern it.
//
// The mode table is data. It is parsed once from YAML (an embedded default
// or an operator-supplied file) and is immutable afterwards, so a *Table may
// be shared freely between goroutines.
package mode

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed modes.yaml
var defaultModes []byte

// Tier selects which model a mode talks to.
type Tier string

const (
	TierFast  Tier = "fast"
	TierSmart Tier = "smart"
)

// RateClass selects the cooldown window applied to a mode's messages.
type RateClass string

const (
	RateStandard RateClass = "standard"
	RateHeavy    RateClass = "heavy"
)

// Strategy selects how a save turns history into a journal entry.
type Strategy string

const (
	// StrategyExtract asks the model for structured JSON records.
	StrategyExtract Strategy = "extract"
	// StrategySummarize asks the model for a free-text summary.
	StrategySummarize Strategy = "summarize"
)

// Scope decides whose turns share one history.
type Scope string

const (
	// ScopeChannel keys history by room: everyone in the room shares it.
	ScopeChannel Scope = "channel"
	// ScopeActor keys history by sender, regardless of room.
	ScopeActor Scope = "actor"
)

// Mode is one entry of the closed mode set.
type Mode struct {
	Name     string    `yaml:"name"`
	Emoji    string    `yaml:"emoji"`
	Keywords []string  `yaml:"keywords"`
	Tier     Tier      `yaml:"tier"`
	Rate     RateClass `yaml:"rate"`
	Strategy Strategy  `yaml:"strategy"`
	Scope    Scope     `yaml:"scope"`

	// SystemPrompt is sent with every model request in this mode.
	SystemPrompt string `yaml:"systemPrompt"`

	// SummaryInstruction is appended as the final user message when a
	// save runs the free-text strategy.
	SummaryInstruction string `yaml:"summaryInstruction"`

	// ForwardTranslations enables the translation side channel.
	ForwardTranslations bool `yaml:"forwardTranslations"`

	// Default marks the fallback mode. Exactly one mode carries it.
	Default bool `yaml:"default"`
}

// Extracts reports whether saves in this mode produce structured records.
func (m Mode) Extracts() bool { return m.Strategy == StrategyExtract }

type document struct {
	Modes []Mode `yaml:"modes"`
}

type entry struct {
	keyword string
	mode    Mode
}

// Table is an immutable, ordered keyword table.
type Table struct {
	entries  []entry
	modes    []Mode
	byName   map[string]Mode
	fallback Mode
}

// Default returns the table compiled into the binary.
func Default() *Table {
	t, err := Parse(defaultModes)
	if err != nil {
		panic(fmt.Sprintf("mode: embedded table is invalid: %v", err))
	}
	return t
}

// LoadFile reads and parses a mode table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modes file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML mode table. Keywords are matched in
// document order: the first mode listed wins when a label matches several.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("modes parse: %w", err)
	}
	if err := Validate(doc.Modes); err != nil {
		return nil, err
	}

	t := &Table{byName: make(map[string]Mode, len(doc.Modes))}
	for _, m := range doc.Modes {
		m.Keywords = append([]string(nil), m.Keywords...)
		t.modes = append(t.modes, m)
		t.byName[m.Name] = m
		if m.Default {
			t.fallback = m
			continue
		}
		for _, kw := range m.Keywords {
			t.entries = append(t.entries, entry{keyword: kw, mode: m})
		}
	}
	return t, nil
}

// Validate checks a mode list for structural correctness.
func Validate(modes []Mode) error {
	if len(modes) == 0 {
		return fmt.Errorf("modes must not be empty")
	}

	seen := make(map[string]struct{}, len(modes))
	defaults := 0
	for i, m := range modes {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("modes[%d]: name must not be empty", i)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("modes[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = struct{}{}

		if strings.TrimSpace(m.SystemPrompt) == "" {
			return fmt.Errorf("modes[%d] (%q): systemPrompt must not be empty", i, m.Name)
		}
		switch m.Tier {
		case TierFast, TierSmart:
		default:
			return fmt.Errorf("modes[%d] (%q): unknown tier %q", i, m.Name, m.Tier)
		}
		switch m.Rate {
		case RateStandard, RateHeavy:
		default:
			return fmt.Errorf("modes[%d] (%q): unknown rate class %q", i, m.Name, m.Rate)
		}
		switch m.Strategy {
		case StrategyExtract, StrategySummarize:
		default:
			return fmt.Errorf("modes[%d] (%q): unknown strategy %q", i, m.Name, m.Strategy)
		}
		switch m.Scope {
		case ScopeChannel, ScopeActor:
		default:
			return fmt.Errorf("modes[%d] (%q): unknown scope %q", i, m.Name, m.Scope)
		}
		if m.Strategy == StrategySummarize && strings.TrimSpace(m.SummaryInstruction) == "" {
			return fmt.Errorf("modes[%d] (%q): summarize strategy needs a summaryInstruction", i, m.Name)
		}

		if m.Default {
			defaults++
			continue
		}
		if len(m.Keywords) == 0 {
			return fmt.Errorf("modes[%d] (%q): keywords must not be empty", i, m.Name)
		}
		for j, kw := range m.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("modes[%d] (%q): keywords[%d] must not be empty", i, m.Name, j)
			}
		}
	}
	if defaults != 1 {
		return fmt.Errorf("exactly one default mode required, got %d", defaults)
	}
	return nil
}

// Resolve returns the first mode whose keyword is a substring of label, or
// the default mode.
func (t *Table) Resolve(label string) Mode {
	for _, e := range t.entries {
		if strings.Contains(label, e.keyword) {
			return e.mode
		}
	}
	return t.fallback
}

// Lookup finds a mode by name.
func (t *Table) Lookup(name string) (Mode, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Modes returns the modes in table order.
func (t *Table) Modes() []Mode {
	return append([]Mode(nil), t.modes...)
}

// Fallback returns the default mode.
func (t *Table) Fallback() Mode { return t.fallback }
