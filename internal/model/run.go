package model

// RunMode selects which stages a run executes.
type RunMode string

// Run modes.
const (
	RunModeFull     RunMode = "full"
	RunModeClassify RunMode = "classify"
	RunModeSegments RunMode = "segments"
)

// PhaseStatus represents the outcome of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunResult is the final output of a pipeline run.
type RunResult struct {
	RunID   string        `json:"run_id"`
	Mode    RunMode       `json:"mode"`
	Tag     string        `json:"tag"`
	Blocks  int           `json:"blocks"`
	Outputs []string      `json:"outputs"`
	Phases  []PhaseResult `json:"phases"`
}

// Phase returns the named phase, or nil if it did not run.
func (r *RunResult) Phase(name string) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}
