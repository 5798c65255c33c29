// Package battle bridges the platform to the battle engine that actually
// runs matches. The engine is an external tool; this package prepares its
// project config and interprets the report it produces.
package battle

import (
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// TeamPrograms points the engine at one team's extracted programs.
type TeamPrograms struct {
	Generator string `toml:"generator"`
	Solver    string `toml:"solver"`
}

// Config is an algobattle.toml project config. It is kept as a raw table
// so that problem-specific keys we know nothing about survive the rewrite
// the packager performs.
type Config struct {
	raw map[string]any
}

func ParseConfig(r io.Reader) (*Config, error) {
	raw := map[string]any{}
	err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse match config: %w", err)
	}

	return &Config{raw: raw}, nil
}

func ParseConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open match config: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}

// ClearTeams drops whatever teams the uploaded config declared. The
// packager fills the table back in with this match's participants.
func (c *Config) ClearTeams() {
	delete(c.raw, "teams")
}

func (c *Config) SetTeam(name string, programs TeamPrograms) {
	teams, ok := c.raw["teams"].(map[string]any)
	if !ok {
		teams = map[string]any{}
		c.raw["teams"] = teams
	}

	teams[name] = map[string]any{
		"generator": programs.Generator,
		"solver":    programs.Solver,
	}
}

// ForceProjectSettings overrides the project table so match runs never
// reuse or leave behind docker images from earlier runs.
func (c *Config) ForceProjectSettings() {
	project, ok := c.raw["project"].(map[string]any)
	if !ok {
		project = map[string]any{}
		c.raw["project"] = project
	}

	project["name_images"] = false
	project["cleanup_images"] = true
}

func (c *Config) Write(w io.Writer) error {
	err := toml.NewEncoder(w).Encode(c.raw)
	if err != nil {
		return fmt.Errorf("failed to encode match config: %w", err)
	}

	return nil
}

func (c *Config) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create match config: %w", err)
	}
	defer f.Close()

	return c.Write(f)
}
