package battle

import (
	"context"
	"encoding/json"
	"fmt"
)

// Engine runs one match in a prepared workspace. The workspace holds the
// extracted problem, an algobattle.toml listing the participating teams
// and the extracted programs they point at.
type Engine interface {
	// InstallDependencies installs whatever the problem in the workspace
	// declares before the match runs. May mutate the host's package set.
	InstallDependencies(ctx context.Context, workDir string) error
	Run(ctx context.Context, workDir string) (*Report, error)
}

// EngineError describes why the engine excluded a team from a match.
type EngineError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Report is the engine's account of a finished match. Scores are the
// fraction of the achievable points each team earned. Raw preserves the
// engine's full output for the match logs.
type Report struct {
	Scores        map[string]float64     `json:"scores"`
	ExcludedTeams map[string]EngineError `json:"excluded_teams"`

	Raw json.RawMessage `json:"-"`
}

func ParseReport(data []byte) (*Report, error) {
	var report Report
	err := json.Unmarshal(data, &report)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine report: %w", err)
	}
	if report.ExcludedTeams == nil {
		report.ExcludedTeams = map[string]EngineError{}
	}

	report.Raw = data
	return &report, nil
}

// ExcludeTeam records a team the platform excluded before the engine ever
// saw it, such as one without an uploaded program.
func (r *Report) ExcludeTeam(name string, message string) {
	if r.ExcludedTeams == nil {
		r.ExcludedTeams = map[string]EngineError{}
	}

	r.ExcludedTeams[name] = EngineError{Type: "RuntimeError", Message: message}
}

// MarshalLogs serializes the report for persistence. The engine's own
// document is kept intact except for excluded_teams, which is replaced
// with the merged set so platform-side exclusions show up in the stored
// log.
func (r *Report) MarshalLogs() ([]byte, error) {
	var doc map[string]any
	err := json.Unmarshal(r.Raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine report: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	doc["excluded_teams"] = r.ExcludedTeams

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize match log: %w", err)
	}

	return data, nil
}

// CalculatePoints splits the match's point budget between the teams
// according to their score fractions. Excluded teams and teams the engine
// never scored get zero.
func (r *Report) CalculatePoints(budget float64) map[string]float64 {
	points := make(map[string]float64, len(r.Scores))
	for name, fraction := range r.Scores {
		if _, excluded := r.ExcludedTeams[name]; excluded {
			points[name] = 0
			continue
		}
		points[name] = fraction * budget
	}

	return points
}
