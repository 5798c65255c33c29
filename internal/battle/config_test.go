package battle

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[match]
problem = "Pairsum"
build_timeout = 600

[teams.leftover]
generator = "/old/gen"
solver = "/old/sol"

[project]
name_images = true

[docker.advanced_run_params]
network_mode = "none"
`

func TestConfigRewrite(t *testing.T) {
	config, err := ParseConfig(strings.NewReader(sampleConfig))
	require.NoError(t, err, "failed to parse config")

	config.ClearTeams()
	config.ForceProjectSettings()
	config.SetTeam("team a", TeamPrograms{Generator: "/ws/a/generator", Solver: "/ws/a/solver"})
	config.SetTeam("team b", TeamPrograms{Generator: "/ws/b/generator", Solver: "/ws/b/solver"})

	var buf bytes.Buffer
	require.NoError(t, config.Write(&buf), "failed to encode config")

	var raw map[string]any
	require.NoError(t, toml.Unmarshal(buf.Bytes(), &raw), "rewritten config is not valid toml")

	teams, ok := raw["teams"].(map[string]any)
	require.True(t, ok, "teams table missing")
	assert.Len(t, teams, 2)
	assert.NotContains(t, teams, "leftover", "uploaded teams must be dropped")

	teamA, ok := teams["team a"].(map[string]any)
	require.True(t, ok, "team a entry missing")
	assert.Equal(t, "/ws/a/generator", teamA["generator"])
	assert.Equal(t, "/ws/a/solver", teamA["solver"])

	project, ok := raw["project"].(map[string]any)
	require.True(t, ok, "project table missing")
	assert.Equal(t, false, project["name_images"])
	assert.Equal(t, true, project["cleanup_images"])

	// keys the platform knows nothing about survive the rewrite
	docker, ok := raw["docker"].(map[string]any)
	require.True(t, ok, "docker table missing")
	params, ok := docker["advanced_run_params"].(map[string]any)
	require.True(t, ok, "advanced_run_params missing")
	assert.Equal(t, "none", params["network_mode"])

	match, ok := raw["match"].(map[string]any)
	require.True(t, ok, "match table missing")
	assert.Equal(t, "Pairsum", match["problem"])
}

func TestConfigRoundTripFile(t *testing.T) {
	config, err := ParseConfig(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	path := t.TempDir() + "/algobattle.toml"
	require.NoError(t, config.WriteFile(path))

	reparsed, err := ParseConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.raw["match"], reparsed.raw["match"])
}
