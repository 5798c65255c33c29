package match

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/algobattle/algobattle-server/internal/battle"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/types"
)

const configFilename = "algobattle.toml"

// workspace is the temp directory a match runs in: the extracted problem,
// each participating team's extracted programs and the rewritten config
// that ties them together.
type workspace struct {
	dir          string
	participants []models.ResultParticipant
	// names of teams left out for lacking a generator or solver
	excluded  []string
	teamNames map[uuid.UUID]string
}

func (ws *workspace) Close() {
	_ = os.RemoveAll(ws.dir)
}

// packageMatch assembles the workspace for a scheduled match. Teams with
// both a generator and a solver are wired into the config; the rest are
// recorded as excluded but still become participants with null program
// refs so the result lists every team of the tournament.
func (r *Runner) packageMatch(
	ctx context.Context,
	scheduled *models.ScheduledMatch,
) (*workspace, error) {
	ctx, span := tracer.Start(ctx, "Runner.packageMatch", trace.WithAttributes(
		attribute.String("problemID", scheduled.ProblemID.String()),
	))
	defer span.End()

	var problem models.Problem
	err := r.db.WithContext(ctx).
		Preload("File").
		Preload("Config").
		First(&problem, scheduled.ProblemID).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load problem")
		return nil, err
	}

	dir, err := os.MkdirTemp("", "algobattle-match-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create workspace")
		return nil, err
	}
	ws := &workspace{dir: dir, teamNames: map[uuid.UUID]string{}}

	err = r.populate(ctx, ws, scheduled, &problem)
	if err != nil {
		ws.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to populate workspace")
		return nil, err
	}

	span.AddEvent("packaged", trace.WithAttributes(
		attribute.Int("participants", len(ws.participants)),
		attribute.StringSlice("excluded", ws.excluded),
	))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "packaged match")
	return ws, nil
}

func (r *Runner) populate(
	ctx context.Context,
	ws *workspace,
	scheduled *models.ScheduledMatch,
	problem *models.Problem,
) error {
	err := r.extractor.Extract(ctx, r.store.Path(&problem.File), ws.dir)
	if err != nil {
		return fmt.Errorf("failed to extract problem archive: %w", err)
	}

	configPath := filepath.Join(ws.dir, configFilename)
	// problem archives usually ship their config; fall back to the one
	// uploaded separately
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		err = r.store.CopyTo(ctx, &problem.Config, configPath)
		if err != nil {
			return fmt.Errorf("failed to copy match config: %w", err)
		}
	}

	config, err := battle.ParseConfigFile(configPath)
	if err != nil {
		return err
	}
	config.ClearTeams()
	config.ForceProjectSettings()

	teams, err := models.TournamentTeams(ctx, r.db, problem.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to load tournament teams: %w", err)
	}

	for _, team := range teams {
		ws.teamNames[team.ID] = team.Name

		participant, err := r.packageTeam(ctx, ws, config, problem, &team)
		if err != nil {
			return err
		}

		ws.participants = append(ws.participants, participant)
	}

	return config.WriteFile(configPath)
}

func (r *Runner) packageTeam(
	ctx context.Context,
	ws *workspace,
	config *battle.Config,
	problem *models.Problem,
	team *models.Team,
) (models.ResultParticipant, error) {
	participant := models.ResultParticipant{TeamID: team.ID}

	generator, err := models.LatestProgram(ctx, r.db, team.ID, problem.ID, types.RoleGenerator)
	if err != nil {
		return participant, err
	}
	solver, err := models.LatestProgram(ctx, r.db, team.ID, problem.ID, types.RoleSolver)
	if err != nil {
		return participant, err
	}

	if generator == nil || solver == nil {
		ws.excluded = append(ws.excluded, team.Name)
		return participant, nil
	}

	generatorDir, err := r.extractProgram(ctx, ws, team.ID, generator)
	if err != nil {
		// a program row whose blob is gone excludes the team rather than
		// failing the whole match
		if errors.Is(err, fs.ErrNotExist) {
			ws.excluded = append(ws.excluded, team.Name)
			return participant, nil
		}
		return participant, err
	}
	solverDir, err := r.extractProgram(ctx, ws, team.ID, solver)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ws.excluded = append(ws.excluded, team.Name)
			return participant, nil
		}
		return participant, err
	}

	participant.GeneratorID = &generator.ID
	participant.SolverID = &solver.ID
	config.SetTeam(team.Name, battle.TeamPrograms{Generator: generatorDir, Solver: solverDir})

	return participant, nil
}

func (r *Runner) extractProgram(
	ctx context.Context,
	ws *workspace,
	teamID uuid.UUID,
	program *models.Program,
) (string, error) {
	dir := filepath.Join(ws.dir, teamID.String(), string(program.Role))
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", err
	}

	err = r.extractor.Extract(ctx, r.store.Path(&program.File), dir)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s for team %s: %w", program.Role, teamID, err)
	}

	return dir, nil
}
