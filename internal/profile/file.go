package profile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Subject is one entry of a subjects file.
type Subject struct {
	Profile `yaml:",inline"`
	Summary Summary `yaml:"summary"`
}

type subjectsFile struct {
	Subjects []Subject `yaml:"subjects"`
}

// FileSource serves profiles and summaries from a YAML subjects file.
//
// The file is re-read on every call so edits show up on the next evaluator
// tick, the way a remote store would reflect writes made elsewhere.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path. The file is not read until used.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Subjects returns every subject in the file.
func (f *FileSource) Subjects() ([]Subject, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read subjects file: %w", err)
	}
	return ParseSubjects(data)
}

// Profile implements ProfileReader.
func (f *FileSource) Profile(ctx context.Context, subjectID string) (Profile, error) {
	s, err := f.find(subjectID)
	if err != nil {
		return Profile{}, err
	}
	return s.Profile, nil
}

// Summary implements SummaryReader.
func (f *FileSource) Summary(ctx context.Context, subjectID string) (Summary, error) {
	s, err := f.find(subjectID)
	if err != nil {
		return Summary{}, err
	}
	return s.Summary, nil
}

func (f *FileSource) find(subjectID string) (Subject, error) {
	subjects, err := f.Subjects()
	if err != nil {
		return Subject{}, err
	}
	for _, s := range subjects {
		if s.SubjectID == subjectID {
			return s, nil
		}
	}
	return Subject{}, fmt.Errorf("%w: %s", ErrNotFound, subjectID)
}

// ParseSubjects decodes a subjects document. Unknown fields are rejected.
func ParseSubjects(data []byte) ([]Subject, error) {
	var f subjectsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse subjects: %w", err)
	}
	for i, s := range f.Subjects {
		if s.SubjectID == "" {
			return nil, fmt.Errorf("parse subjects: subject[%d] missing id", i)
		}
	}
	return f.Subjects, nil
}

// Static is an in-memory Reader, used by the harness and tests.
type Static struct {
	mu       sync.RWMutex
	subjects map[string]Subject
}

// NewStatic creates a reader over the given subjects.
func NewStatic(subjects ...Subject) *Static {
	s := &Static{subjects: make(map[string]Subject, len(subjects))}
	for _, sub := range subjects {
		s.subjects[sub.SubjectID] = sub
	}
	return s
}

// Put replaces a subject's data.
func (s *Static) Put(sub Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[sub.SubjectID] = sub
}

// Profile implements ProfileReader.
func (s *Static) Profile(ctx context.Context, subjectID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[subjectID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, subjectID)
	}
	return sub.Profile, nil
}

// Summary implements SummaryReader.
func (s *Static) Summary(ctx context.Context, subjectID string) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[subjectID]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, subjectID)
	}
	return sub.Summary, nil
}
