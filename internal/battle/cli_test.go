package battle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algobattle/algobattle-server/internal/command"
)

// fakeExecutor records the commands it is asked to run and optionally
// drops a report file the way the real engine would.
type fakeExecutor struct {
	exitCode   int
	stderr     string
	reportJSON string

	commands []*command.Command
}

func (f *fakeExecutor) Execute(_ context.Context, cmd *command.Command) (*command.Result, error) {
	f.commands = append(f.commands, cmd)

	if f.reportJSON != "" && len(cmd.Args) > 0 && cmd.Args[0] == "run" {
		err := os.WriteFile(filepath.Join(cmd.Dir, reportFilename), []byte(f.reportJSON), 0o644)
		if err != nil {
			return nil, err
		}
	}

	return &command.Result{
		Cmd:      append([]string{cmd.Program}, cmd.Args...),
		Stderr:   []byte(f.stderr),
		ExitCode: f.exitCode,
	}, nil
}

func TestNewCLIEngine(t *testing.T) {
	_, err := NewCLIEngine(&fakeExecutor{}, nil)
	assert.Error(t, err, "an empty engine command is a config error")

	engine, err := NewCLIEngine(&fakeExecutor{}, []string{"uv", "run", "algobattle"})
	require.NoError(t, err)
	assert.Equal(t, "uv", engine.program)
	assert.Equal(t, []string{"run", "algobattle"}, engine.args)
}

func TestCLIEngineInstallDependencies(t *testing.T) {
	executor := &fakeExecutor{}
	engine, err := NewCLIEngine(executor, []string{"algobattle"})
	require.NoError(t, err)

	workDir := t.TempDir()
	require.NoError(t, engine.InstallDependencies(context.Background(), workDir))

	require.Len(t, executor.commands, 1)
	assert.Equal(t, "algobattle", executor.commands[0].Program)
	assert.Equal(t, []string{"install", "--path", workDir}, executor.commands[0].Args)
	assert.Equal(t, workDir, executor.commands[0].Dir)
}

func TestCLIEngineRun(t *testing.T) {
	executor := &fakeExecutor{reportJSON: `{"scores": {"team a": 1}}`}
	engine, err := NewCLIEngine(executor, []string{"algobattle"})
	require.NoError(t, err)

	workDir := t.TempDir()
	report, err := engine.Run(context.Background(), workDir)
	require.NoError(t, err)

	assert.Equal(t, 1.0, report.Scores["team a"])
	require.Len(t, executor.commands, 1)
	assert.Equal(t,
		[]string{"run", "--path", workDir, "--result-path", filepath.Join(workDir, reportFilename)},
		executor.commands[0].Args,
	)
}

func TestCLIEngineRunNonzeroExit(t *testing.T) {
	executor := &fakeExecutor{exitCode: 1, stderr: "docker daemon unreachable"}
	engine, err := NewCLIEngine(executor, []string{"algobattle"})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker daemon unreachable")
}

func TestCLIEngineRunMissingReport(t *testing.T) {
	engine, err := NewCLIEngine(&fakeExecutor{}, []string{"algobattle"})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), t.TempDir())
	assert.Error(t, err, "a run that leaves no report is a failure")
}
