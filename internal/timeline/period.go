package timeline

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Depth identifies whether a boundary belongs to a top-level period or a
// sub-period.
type Depth string

const (
	// DepthPrimary marks a top-level period boundary.
	DepthPrimary Depth = "primary"
	// DepthSecondary marks a sub-period boundary.
	DepthSecondary Depth = "secondary"
)

// Period is a named, time-bounded interval with optional nested sub-periods.
type Period struct {
	Label      string    `json:"label" yaml:"label"`
	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
	SubPeriods []Period  `json:"subPeriods,omitempty" yaml:"subPeriods,omitempty"`
}

// wellFormed reports whether the period can take part in a scan.
func (p Period) wellFormed() bool {
	return !p.End.IsZero() && p.End.After(p.Start)
}

// Transition is a period or sub-period reaching its End boundary.
// Created by the Scanner, never mutated.
type Transition struct {
	Label        string    `json:"label"`
	BoundaryTime time.Time `json:"boundaryTime"`
	Depth        Depth     `json:"depth"`
}

// ValidationError describes one malformed period.
type ValidationError struct {
	Path    string // e.g. "[2]" or "[2].subPeriods[0]"
	Label   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("period %s (%q): %s", e.Path, e.Label, e.Message)
}

// Validate reports malformed periods: missing End, End not after Start,
// sub-periods escaping their parent, and top-level periods out of order or
// overlapping. An empty result means the timeline is well formed.
func Validate(periods []Period) []error {
	var errs []error
	for i, p := range periods {
		path := fmt.Sprintf("[%d]", i)
		errs = append(errs, validatePeriod(path, p)...)
		if i > 0 {
			prev := periods[i-1]
			if p.Start.Before(prev.Start) {
				errs = append(errs, &ValidationError{Path: path, Label: p.Label, Message: "not ordered by start"})
			} else if p.Start.Before(prev.End) {
				errs = append(errs, &ValidationError{Path: path, Label: p.Label, Message: "overlaps previous period"})
			}
		}
		for j, sub := range p.SubPeriods {
			subPath := fmt.Sprintf("%s.subPeriods[%d]", path, j)
			errs = append(errs, validatePeriod(subPath, sub)...)
			if sub.Start.Before(p.Start) || sub.End.After(p.End) {
				errs = append(errs, &ValidationError{Path: subPath, Label: sub.Label, Message: "not nested inside parent"})
			}
		}
	}
	return errs
}

func validatePeriod(path string, p Period) []error {
	switch {
	case p.End.IsZero():
		return []error{&ValidationError{Path: path, Label: p.Label, Message: "missing end"}}
	case !p.End.After(p.Start):
		return []error{&ValidationError{Path: path, Label: p.Label, Message: "end is not after start"}}
	}
	return nil
}

// file is the on-disk shape accepted by LoadFile. JSON documents parse too,
// since YAML is a superset.
type file struct {
	Periods []Period `yaml:"periods"`
}

// LoadFile reads a timeline from a YAML or JSON file of the form
// {periods: [...]}.
func LoadFile(path string) ([]Period, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	return Parse(data)
}

// Parse decodes a timeline document. Unknown fields are rejected.
func Parse(data []byte) ([]Period, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse timeline: %w", err)
	}
	return f.Periods, nil
}
