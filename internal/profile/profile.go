// Package profile defines the subject data the nudge engine reads from
// externally owned stores: birth data for the chart service and the
// consciousness/mood summary used to build ambient state.
package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by readers when the subject does not exist.
var ErrNotFound = errors.New("subject not found")

// Coordinates is an optional birth location.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Profile is the birth data for a subject.
type Profile struct {
	SubjectID   string       `json:"subjectId" yaml:"id"`
	DOB         string       `json:"dob" yaml:"dob"` // YYYY-MM-DD
	TOB         string       `json:"tob" yaml:"tob"` // HH:MM
	POB         string       `json:"pob" yaml:"pob"`
	Coordinates *Coordinates `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
}

// HasBirthTime reports whether the chart service can be queried.
// Without DOB and TOB the poller is disabled for the subject.
func (p Profile) HasBirthTime() bool {
	return p.DOB != "" && p.TOB != ""
}

// Routine is a recurring practice the subject tracks.
type Routine struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	TimeOfDay         string `json:"timeOfDay" yaml:"timeOfDay"` // "morning", "evening", ...
	Active            bool   `json:"active" yaml:"active"`
	LastCompletedDate string `json:"lastCompletedDate,omitempty" yaml:"lastCompletedDate,omitempty"` // YYYY-MM-DD
}

// Relationship is a tracked key relationship.
type Relationship struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// LifeEvent is a significant event the subject recorded.
type LifeEvent struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Status string `json:"status" yaml:"status"`                 // "completed", "planned", ...
	Date   string `json:"date,omitempty" yaml:"date,omitempty"` // YYYY-MM-DD
}

// Completed reports whether the event has been lived through.
func (e LifeEvent) Completed() bool {
	return e.Status == "completed"
}

// Summary is the consciousness/mood summary.
type Summary struct {
	EmotionalState      string         `json:"emotionalState" yaml:"emotionalState"`
	LastEmotionalUpdate time.Time      `json:"lastEmotionalUpdate" yaml:"lastEmotionalUpdate"`
	DailyIntention      string         `json:"dailyIntention" yaml:"dailyIntention"`
	DailyGratitudeDate  string         `json:"dailyGratitudeDate" yaml:"dailyGratitudeDate"` // YYYY-MM-DD
	Routines            []Routine      `json:"routines" yaml:"routines"`
	KeyRelationships    []Relationship `json:"keyRelationships" yaml:"keyRelationships"`
	ActiveEvents        []LifeEvent    `json:"activeEvents" yaml:"activeEvents"`
}

// ProfileReader reads birth data.
type ProfileReader interface {
	Profile(ctx context.Context, subjectID string) (Profile, error)
}

// SummaryReader reads the consciousness/mood summary.
type SummaryReader interface {
	Summary(ctx context.Context, subjectID string) (Summary, error)
}

// Reader is a source of both.
type Reader interface {
	ProfileReader
	SummaryReader
}
