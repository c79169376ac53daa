// Package advisory talks to the external advisory nudge service, which turns
// ambient state plus a trigger tag into a short title and message.
//
// The wire protocol is a single unary gRPC method whose request and response
// are google.protobuf.Struct messages, so no generated stubs are needed on
// either side.
package advisory

import (
	"context"
	"strings"
	"time"

	"github.com/roach88/nudge/internal/engine"
)

// Trigger tags the reason a rule asked for advice.
type Trigger string

const (
	TriggerDailyTransit      Trigger = "daily_transit"
	TriggerRelationalCheckin Trigger = "relational_checkin"
)

// Advice is the service's answer.
type Advice struct {
	Title   string
	Message string
}

// Empty reports whether the advice lacks a title or a message.
func (a Advice) Empty() bool {
	return strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Message) == ""
}

// Service requests advisory nudges.
type Service interface {
	RequestNudge(ctx context.Context, st engine.State, trigger Trigger) (Advice, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, st engine.State, trigger Trigger) (Advice, error)

// RequestNudge implements Service.
func (f ServiceFunc) RequestNudge(ctx context.Context, st engine.State, trigger Trigger) (Advice, error) {
	return f(ctx, st, trigger)
}

// Request is the projection of ambient state sent over the wire.
type Request struct {
	SubjectID      string
	Trigger        Trigger
	Now            time.Time
	Today          string
	EmotionalState string
	DailyIntention string
	Relationships  []string
	CurrentPeriod  string
}

// RequestFromState projects st for the service.
func RequestFromState(st engine.State, trigger Trigger) Request {
	req := Request{
		SubjectID:      st.SubjectID,
		Trigger:        trigger,
		Now:            st.Now,
		Today:          st.Today(),
		EmotionalState: st.Summary.EmotionalState,
		DailyIntention: st.Summary.DailyIntention,
	}
	for _, r := range st.Summary.KeyRelationships {
		req.Relationships = append(req.Relationships, r.Name)
	}
	for _, p := range st.Timeline {
		if !st.Now.Before(p.Start) && st.Now.Before(p.End) {
			req.CurrentPeriod = p.Label
			break
		}
	}
	return req
}
