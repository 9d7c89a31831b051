package models

import (
	"time"

	"github.com/google/uuid"
)

// PostureLabel is the categorical reading of the session posture score
type PostureLabel string

const (
	PostureRiskOn  PostureLabel = "Risk-On"
	PostureNeutral PostureLabel = "Neutral"
	PostureRiskOff PostureLabel = "Risk-Off"
)

// PostureComponents holds the three sub-scores, each in [-100, 100]
type PostureComponents struct {
	Breadth    float64 `json:"breadth"`
	Dispersion float64 `json:"dispersion"`
	VolOverlay float64 `json:"vol_overlay"`
}

// SessionPosture is the composite market posture heuristic
type SessionPosture struct {
	Score      float64           `json:"score"`
	Label      PostureLabel      `json:"label"`
	Components PostureComponents `json:"components"`
	Notes      []string          `json:"notes"`
}

// PostureSnapshot is a recorded posture reading
type PostureSnapshot struct {
	ID         uuid.UUID         `json:"id"`
	Score      float64           `json:"score"`
	Label      PostureLabel      `json:"label"`
	Components PostureComponents `json:"components"`
	Sources    map[string]string `json:"sources"`
	TakenAt    time.Time         `json:"taken_at"`
}

// NewPostureSnapshot captures a posture together with the provenance of its inputs
func NewPostureSnapshot(p SessionPosture, sources map[string]string, at time.Time) *PostureSnapshot {
	return &PostureSnapshot{
		ID:         uuid.New(),
		Score:      p.Score,
		Label:      p.Label,
		Components: p.Components,
		Sources:    sources,
		TakenAt:    at,
	}
}
