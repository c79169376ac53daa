package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/timeline"
)

// Scenario is one replayable situation.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Start is the initial fake clock time.
	Start time.Time `yaml:"start"`

	// Timezone is the subject's IANA zone. Empty means UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// ScannerPolicy selects the boundary scanner policy.
	ScannerPolicy string `yaml:"scannerPolicy,omitempty"`

	Subject  profile.Subject   `yaml:"subject"`
	Timeline []timeline.Period `yaml:"timeline,omitempty"`

	// Advisory maps trigger names to canned answers. Missing triggers get
	// an empty answer.
	Advisory map[string]Advice `yaml:"advisory,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Advice is a canned advisory answer.
type Advice struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

// Step moves the clock and drives the session.
type Step struct {
	At      *time.Time       `yaml:"at,omitempty"`
	Advance string           `yaml:"advance,omitempty"`
	Repeat  int              `yaml:"repeat,omitempty"`
	Summary *profile.Summary `yaml:"summary,omitempty"`

	Poll     bool     `yaml:"poll,omitempty"`
	Evaluate bool     `yaml:"evaluate,omitempty"`
	Growth   []string `yaml:"growth,omitempty"`
}

// Assertion checks the trace.
type Assertion struct {
	Type  string   `yaml:"type"`
	Key   string   `yaml:"key,omitempty"`
	Rule  string   `yaml:"rule,omitempty"`
	Count int      `yaml:"count,omitempty"`
	Keys  []string `yaml:"keys,omitempty"`
}

// Assertion type constants.
const (
	AssertFired    = "fired"
	AssertNotFired = "not_fired"
	AssertCount    = "count"
	AssertOrder    = "order"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	if s.Subject.SubjectID == "" {
		return fmt.Errorf("subject.id is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if step.At != nil && step.Advance != "" {
			return fmt.Errorf("steps[%d]: at and advance are mutually exclusive", i)
		}
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d]: advance: %w", i, err)
			}
		}
		if step.Repeat < 0 {
			return fmt.Errorf("steps[%d]: repeat must be non-negative", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertFired, AssertNotFired:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
	case AssertCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertOrder:
		if len(a.Keys) < 2 {
			return fmt.Errorf("assertions[%d]: order needs at least two keys", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
