package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/composer/internal/session"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/writer"
)

// Scenario is a scripted editing session with assertions on its outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path of the model definition (CUE, YAML or JSON).
	Model string `yaml:"model"`

	// Source names the root source within the model.
	Source string `yaml:"source"`

	// Steps are applied to a fresh session in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final session state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one session op, optionally expected to be refused.
type Step struct {
	session.Op `yaml:",inline"`

	// ExpectError is the error code the op must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final session state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Form selects the source form for source_equals; default run.
	Form string `yaml:"form,omitempty"`

	// Expected is the exact source text for source_equals.
	Expected string `yaml:"expected,omitempty"`

	// Value is the expected boolean for can_run and is_empty.
	Value *bool `yaml:"value,omitempty"`

	// Stage and Index address a summary field for summary_item.
	Stage string `yaml:"stage,omitempty"`
	Index *int   `yaml:"index,omitempty"`

	// Item lists the expected summary field attributes; empty members
	// are not checked.
	Item *ItemExpect `yaml:"item,omitempty"`

	// Count is the expected number for stage_count and history_count.
	Count *int `yaml:"count,omitempty"`
}

// ItemExpect is the subset of a summary field an assertion checks.
type ItemExpect struct {
	Type     string `yaml:"type,omitempty"`
	Property string `yaml:"property,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// Assertion type constants.
const (
	AssertSourceEquals = "source_equals"
	AssertCanRun       = "can_run"
	AssertIsEmpty      = "is_empty"
	AssertSummaryItem  = "summary_item"
	AssertStageCount   = "stage_count"
	AssertHistoryCount = "history_count"
)

// LoadScenario reads and parses a scenario YAML file, resolving the model
// path relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the model path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}
	if s.Source == "" {
		return fmt.Errorf("source is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Kind == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertSourceEquals:
		if a.Form != "" {
			if _, err := writer.ParseForm(a.Form); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertCanRun, AssertIsEmpty:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertSummaryItem:
		if a.Index == nil || a.Item == nil {
			return fmt.Errorf("assertions[%d]: index and item are required for summary_item", index)
		}
		if a.Stage != "" {
			if _, err := stagepath.Parse(a.Stage); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertStageCount, AssertHistoryCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
