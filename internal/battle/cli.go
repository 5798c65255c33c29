package battle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/algobattle/algobattle-server/internal/command"
)

var tracer = otel.Tracer("github.com/algobattle/algobattle-server/internal/battle")

const reportFilename = "result.json"

var _ Engine = (*CLIEngine)(nil)

// CLIEngine drives the battle engine through its command line interface.
// The base command comes from operator config, typically just
// ["algobattle"].
type CLIEngine struct {
	executor command.Executor
	program  string
	args     []string
}

func NewCLIEngine(executor command.Executor, commandLine []string) (*CLIEngine, error) {
	if len(commandLine) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}

	return &CLIEngine{
		executor: executor,
		program:  commandLine[0],
		args:     commandLine[1:],
	}, nil
}

func (e *CLIEngine) InstallDependencies(ctx context.Context, workDir string) error {
	ctx, span := tracer.Start(ctx, "CLIEngine.InstallDependencies", trace.WithAttributes(
		attribute.String("workDir", workDir),
	))
	defer span.End()

	args := slices.Clone(e.args)
	args = append(args, "install", "--path", workDir)
	cmd := command.New(e.program, args...)
	cmd.Dir = workDir

	result, err := e.executor.Execute(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to execute engine")
		return err
	}
	if result.ExitCode != 0 {
		err = fmt.Errorf(
			"engine install exited with code %d\nstderr(%s)",
			result.ExitCode,
			result.Stderr,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine exited nonzero")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "installed problem dependencies")
	return nil
}

func (e *CLIEngine) Run(ctx context.Context, workDir string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "CLIEngine.Run", trace.WithAttributes(
		attribute.String("workDir", workDir),
	))
	defer span.End()

	reportPath := filepath.Join(workDir, reportFilename)

	args := slices.Clone(e.args)
	args = append(args, "run", "--path", workDir, "--result-path", reportPath)
	cmd := command.New(e.program, args...)
	cmd.Dir = workDir

	result, err := e.executor.Execute(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to execute engine")
		return nil, err
	}
	if result.ExitCode != 0 {
		err = fmt.Errorf(
			"engine exited with code %d\nstderr(%s)",
			result.ExitCode,
			result.Stderr,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine exited nonzero")
		return nil, err
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read engine report")
		return nil, err
	}

	report, err := ParseReport(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse engine report")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran match")
	return report, nil
}
