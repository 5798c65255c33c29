package battle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReport(t *testing.T) {
	raw := []byte(`{
		"scores": {"team a": 0.75, "team b": 0.25},
		"excluded_teams": {"team c": {"type": "BuildError", "message": "image build failed"}},
		"battles": [{"round": 1}]
	}`)

	report, err := ParseReport(raw)
	require.NoError(t, err)

	assert.Equal(t, 0.75, report.Scores["team a"])
	assert.Equal(t, 0.25, report.Scores["team b"])
	assert.Equal(t, "BuildError", report.ExcludedTeams["team c"].Type)
	assert.Equal(t, raw, []byte(report.Raw), "raw output must be preserved for the match logs")
}

func TestParseReportInvalid(t *testing.T) {
	_, err := ParseReport([]byte("not json"))
	assert.Error(t, err)
}

func TestParseReportNoExclusions(t *testing.T) {
	report, err := ParseReport([]byte(`{"scores": {"team a": 1}}`))
	require.NoError(t, err)
	assert.NotNil(t, report.ExcludedTeams)
}

func TestMarshalLogs(t *testing.T) {
	raw := `{
		"scores": {"team a": 1},
		"battles": [{"round": 1}]
	}`
	report, err := ParseReport([]byte(raw))
	require.NoError(t, err)

	report.ExcludeTeam("team b", "missing program")

	data, err := report.MarshalLogs()
	require.NoError(t, err)

	var doc struct {
		Scores        map[string]float64     `json:"scores"`
		ExcludedTeams map[string]EngineError `json:"excluded_teams"`
		Battles       []map[string]any       `json:"battles"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	excluded, ok := doc.ExcludedTeams["team b"]
	require.True(t, ok, "merged exclusions must reach the stored log")
	assert.Equal(t, "RuntimeError", excluded.Type)
	assert.Equal(t, "missing program", excluded.Message)

	assert.Equal(t, 1.0, doc.Scores["team a"], "engine fields survive the merge")
	assert.Len(t, doc.Battles, 1)
}

func TestMarshalLogsKeepsEngineExclusions(t *testing.T) {
	raw := `{
		"scores": {},
		"excluded_teams": {"team c": {"type": "BuildError", "message": "image build failed"}}
	}`
	report, err := ParseReport([]byte(raw))
	require.NoError(t, err)

	report.ExcludeTeam("team b", "missing program")

	data, err := report.MarshalLogs()
	require.NoError(t, err)

	var doc struct {
		ExcludedTeams map[string]EngineError `json:"excluded_teams"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.ExcludedTeams, 2)
	assert.Equal(t, "BuildError", doc.ExcludedTeams["team c"].Type)
}

func TestCalculatePoints(t *testing.T) {
	report := &Report{
		Scores: map[string]float64{"team a": 0.6, "team b": 0.4, "team c": 0.5},
	}
	report.ExcludeTeam("team c", "missing program")

	points := report.CalculatePoints(100)

	assert.InDelta(t, 60, points["team a"], 1e-9)
	assert.InDelta(t, 40, points["team b"], 1e-9)
	assert.Zero(t, points["team c"], "excluded teams earn nothing")
	assert.Equal(t, "RuntimeError", report.ExcludedTeams["team c"].Type)
}
