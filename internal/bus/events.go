package bus

import (
	"time"

	"github.com/roach88/nudge/internal/timeline"
)

// Topics carried by the bus. These payload shapes are an internal protocol;
// any new consumer must accept exactly these fields.
const (
	TopicTransitionApproaching Topic = "period-transition-approaching"
	TopicGrowthDetected        Topic = "growth-detected"
)

// TransitionApproaching is published by the poller when a period boundary
// falls inside the look-ahead window.
type TransitionApproaching struct {
	Label         string         `json:"label"`
	BoundaryTime  time.Time      `json:"boundaryTime"`
	Depth         timeline.Depth `json:"depth"`
	DaysRemaining int            `json:"daysRemaining"`
}

// GrowthDetected carries contradiction descriptions found by an external
// analysis step.
type GrowthDetected struct {
	Contradictions []string `json:"contradictions"`
}
