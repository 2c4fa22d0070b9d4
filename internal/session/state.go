package session

import "github.com/loqalabs/loqa-reader/internal/reading"

// Outcome tells callers whether the article came with narration.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
)

// Result of a successful Process call. Warning is set only for
// OutcomePartial.
type Result struct {
	Article reading.Article `json:"article"`
	Outcome Outcome         `json:"outcome"`
	Warning string          `json:"warning,omitempty"`
}

// State is what presentation code renders.
type State struct {
	Current      *reading.Article `json:"current,omitempty"`
	Processing   bool             `json:"processing"`
	Synthesizing bool             `json:"synthesizing"`
	LastWarning  string           `json:"lastWarning,omitempty"`
	LastError    string           `json:"lastError,omitempty"`
}

func (s State) clone() State {
	if s.Current != nil {
		current := *s.Current
		s.Current = &current
	}
	return s
}
