package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a vault scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Limits overrides capacity ceilings. Unset fields keep their defaults.
	Limits *LimitOverrides `yaml:"limits,omitempty"`

	// Setup establishes initial state. Every setup step must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence, validated against each step's expect clause.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and vault state.
	Assertions []Assertion `yaml:"assertions"`
}

// LimitOverrides are optional capacity ceilings for a scenario.
type LimitOverrides struct {
	MaxOwners        int `yaml:"max_owners,omitempty"`
	MaxItemsPerOwner int `yaml:"max_items_per_owner,omitempty"`
	MaxPayloadChars  int `yaml:"max_payload_chars,omitempty"`
	MaxGrantees      int `yaml:"max_grantees,omitempty"`
}

// Step is one operation performed as a principal.
type Step struct {
	// As is the caller principal. Empty is anonymous.
	As string `yaml:"as"`

	// Op names the operation, e.g. "note.create". See Operations.
	Op string `yaml:"op"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Save binds the step's result for later steps as $<save>.
	Save string `yaml:"save,omitempty"`

	// Expect specifies the expected outcome. Nil expects success.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// Code is the expected error code, or "OK" for success.
	Code string `yaml:"code"`

	// Result is a subset of the expected result. Only checked on success.
	Result map[string]any `yaml:"result,omitempty"`
}

// CodeOK is the outcome code of a successful step.
const CodeOK = "OK"

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Code optionally restricts trace_contains and trace_count to one
	// outcome.
	Code string `yaml:"code,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count) or items
	// (final_state).
	Count *int `yaml:"count,omitempty"`

	// As and List name the list operation of final_state.
	As   string `yaml:"as,omitempty"`
	List string `yaml:"list,omitempty"`

	// Args are the list operation's arguments (final_state), or a subset of
	// a traced step's arguments as written (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Contains is a subset one listed item must match (final_state).
	Contains map[string]any `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertConsistent    = "consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot have expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil && step.Expect.Code == "" {
			return fmt.Errorf("flow[%d].expect: code is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("%s: op is required", where)
	}
	if _, ok := operations[step.Op]; !ok {
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertFinalState:
		if _, ok := lists[a.List]; !ok {
			return fmt.Errorf("assertions[%d]: unknown list %q for final_state", index, a.List)
		}
		if a.Count == nil && len(a.Contains) == 0 {
			return fmt.Errorf("assertions[%d]: count or contains is required for final_state", index)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
