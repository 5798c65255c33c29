package match

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/battle"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/extract"
	"github.com/algobattle/algobattle-server/internal/migrations"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/types"
)

// fakeEngine returns a canned report and snapshots the workspace config
// so tests can assert what the real engine would have been given.
type fakeEngine struct {
	reportJSON string
	runErr     error

	installed bool
	config    []byte
}

func (f *fakeEngine) InstallDependencies(_ context.Context, _ string) error {
	f.installed = true
	return nil
}

func (f *fakeEngine) Run(_ context.Context, workDir string) (*battle.Report, error) {
	f.config, _ = os.ReadFile(workDir + "/" + configFilename)
	if f.runErr != nil {
		return nil, f.runErr
	}

	return battle.ParseReport([]byte(f.reportJSON))
}

type fixture struct {
	db         *gorm.DB
	store      *blob.Store
	tournament models.Tournament
	teamA      models.Team
	teamB      models.Team
	problem    models.Problem
	scheduled  models.ScheduledMatch
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16.4-alpine",
		postgres.WithDatabase("algobattle"),
		postgres.WithUsername("algobattle"),
		postgres.WithPassword("algobattle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(postgresContainer)
		assert.NoError(t, err, "failed to terminate container")
	})
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to connect to the database")
	require.NoError(t, migrations.Up(ctx, db), "failed to migrate db")

	store, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{db: db, store: store}

	f.tournament = models.Tournament{Name: "winter 2026"}
	require.NoError(t, db.Create(&f.tournament).Error)
	f.teamA = models.Team{Name: "team a", TournamentID: f.tournament.ID}
	f.teamB = models.Team{Name: "team b", TournamentID: f.tournament.ID}
	require.NoError(t, db.Create(&f.teamA).Error)
	require.NoError(t, db.Create(&f.teamB).Error)

	problemArchive := f.createZipBlob(t, "pairsum.zip", map[string]string{
		"algobattle.toml": "[match]\nproblem = \"Pairsum\"\n",
		"pairsum.prob":    "problem definition",
	})
	config := f.createBlob(t, "algobattle.toml", "[match]\nproblem = \"Pairsum\"\n")

	f.problem = models.Problem{
		Name:         "pairsum",
		TournamentID: f.tournament.ID,
		FileID:       problemArchive.ID,
		ConfigID:     config.ID,
	}
	require.NoError(t, db.Create(&f.problem).Error)

	f.scheduled = models.ScheduledMatch{
		Name:      "weekly match",
		ProblemID: f.problem.ID,
		Time:      time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, db.Create(&f.scheduled).Error)

	return f
}

func (f *fixture) createBlob(t *testing.T, filename, content string) models.File {
	t.Helper()
	return f.createBlobFromReader(t, filename, bytes.NewReader([]byte(content)))
}

func (f *fixture) createZipBlob(t *testing.T, filename string, entries map[string]string) models.File {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return f.createBlobFromReader(t, filename, &buf)
}

func (f *fixture) createBlobFromReader(t *testing.T, filename string, content io.Reader) models.File {
	t.Helper()

	file := blob.NewFile(filename)
	require.NoError(t, f.store.Transaction(context.Background(), f.db,
		func(tx *gorm.DB, stage *blob.Stage) error {
			if err := stage.Create(&file, content); err != nil {
				return err
			}
			return tx.Create(&file).Error
		}))
	return file
}

func (f *fixture) uploadProgram(t *testing.T, team *models.Team, role types.ProgramRole) models.Program {
	t.Helper()

	archive := f.createZipBlob(t, string(role)+".zip", map[string]string{
		"Dockerfile": "FROM scratch",
	})
	program := models.Program{
		Name:         team.Name + " " + string(role),
		TeamID:       team.ID,
		ProblemID:    f.problem.ID,
		Role:         role,
		FileID:       archive.ID,
		CreationTime: time.Now(),
	}
	require.NoError(t, f.db.Create(&program).Error)
	return program
}

func (f *fixture) runner(engine battle.Engine) *Runner {
	return NewRunner(f.db, f.store, engine, extract.NewZipExtractor(), nil)
}

func (f *fixture) participants(t *testing.T, result *models.MatchResult) map[string]models.ResultParticipant {
	t.Helper()

	var rows []models.ResultParticipant
	require.NoError(t, f.db.Where("match_id = ?", result.ID).Find(&rows).Error)

	byTeam := map[string]models.ResultParticipant{}
	names := map[string]string{f.teamA.ID.String(): "team a", f.teamB.ID.String(): "team b"}
	for _, row := range rows {
		byTeam[names[row.TeamID.String()]] = row
	}
	return byTeam
}

func TestRunScheduled(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	genA := f.uploadProgram(t, &f.teamA, types.RoleGenerator)
	solA := f.uploadProgram(t, &f.teamA, types.RoleSolver)
	f.uploadProgram(t, &f.teamB, types.RoleGenerator)
	f.uploadProgram(t, &f.teamB, types.RoleSolver)

	engine := &fakeEngine{
		reportJSON: `{"scores": {"team a": 0.6, "team b": 0.4}, "excluded_teams": {}, "battles": [{"round": 1}]}`,
	}

	require.NoError(t, f.runner(engine).RunScheduled(ctx, &f.scheduled))
	assert.True(t, engine.installed, "problem dependencies must be installed before the run")

	var result models.MatchResult
	require.NoError(t, f.db.Preload("Logs").First(&result).Error)
	assert.Equal(t, types.MatchStatusComplete, result.Status)

	t.Run("Points", func(t *testing.T) {
		byTeam := f.participants(t, &result)
		require.Len(t, byTeam, 2)
		assert.InDelta(t, 60, byTeam["team a"].Points, 1e-9)
		assert.InDelta(t, 40, byTeam["team b"].Points, 1e-9)
		require.NotNil(t, byTeam["team a"].GeneratorID)
		assert.Equal(t, genA.ID, *byTeam["team a"].GeneratorID)
		require.NotNil(t, byTeam["team a"].SolverID)
		assert.Equal(t, solA.ID, *byTeam["team a"].SolverID)
	})

	t.Run("Logs", func(t *testing.T) {
		require.NotNil(t, result.Logs)
		content, err := f.store.Open(ctx, result.Logs)
		require.NoError(t, err)
		defer content.Close()
		data, err := io.ReadAll(content)
		require.NoError(t, err)
		assert.JSONEq(t, engine.reportJSON, string(data), "engine output is the match log")
	})

	t.Run("ScheduleConsumed", func(t *testing.T) {
		var remaining int64
		require.NoError(t, f.db.Model(&models.ScheduledMatch{}).Count(&remaining).Error)
		assert.Zero(t, remaining)
	})

	t.Run("ConfigRewritten", func(t *testing.T) {
		var raw map[string]any
		require.NoError(t, toml.Unmarshal(engine.config, &raw))

		teams, ok := raw["teams"].(map[string]any)
		require.True(t, ok, "teams table missing from workspace config")
		assert.Contains(t, teams, "team a")
		assert.Contains(t, teams, "team b")

		project, ok := raw["project"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, project["name_images"])
		assert.Equal(t, true, project["cleanup_images"])
	})
}

func TestRunScheduledMissingProgram(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.uploadProgram(t, &f.teamA, types.RoleGenerator)
	f.uploadProgram(t, &f.teamA, types.RoleSolver)
	// team b only has a generator and must be excluded
	f.uploadProgram(t, &f.teamB, types.RoleGenerator)

	engine := &fakeEngine{reportJSON: `{"scores": {"team a": 1}}`}

	require.NoError(t, f.runner(engine).RunScheduled(ctx, &f.scheduled))

	var result models.MatchResult
	require.NoError(t, f.db.Preload("Logs").First(&result).Error)
	assert.Equal(t, types.MatchStatusComplete, result.Status)

	byTeam := f.participants(t, &result)
	require.Len(t, byTeam, 2, "excluded teams still appear as participants")
	assert.InDelta(t, 100, byTeam["team a"].Points, 1e-9)
	assert.Zero(t, byTeam["team b"].Points)
	assert.Nil(t, byTeam["team b"].GeneratorID, "excluded participants keep null program refs")
	assert.Nil(t, byTeam["team b"].SolverID)

	var raw map[string]any
	require.NoError(t, toml.Unmarshal(engine.config, &raw))
	teams, ok := raw["teams"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, teams, "team b", "excluded teams must not reach the engine")

	t.Run("ExclusionInLogs", func(t *testing.T) {
		require.NotNil(t, result.Logs)
		content, err := f.store.Open(ctx, result.Logs)
		require.NoError(t, err)
		defer content.Close()
		data, err := io.ReadAll(content)
		require.NoError(t, err)

		var doc struct {
			ExcludedTeams map[string]battle.EngineError `json:"excluded_teams"`
		}
		require.NoError(t, json.Unmarshal(data, &doc))
		excluded, ok := doc.ExcludedTeams["team b"]
		require.True(t, ok, "stored log must record the excluded team")
		assert.Equal(t, "RuntimeError", excluded.Type)
		assert.Equal(t, "missing program", excluded.Message)
	})
}

func TestRunScheduledEngineFailure(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.uploadProgram(t, &f.teamA, types.RoleGenerator)
	f.uploadProgram(t, &f.teamA, types.RoleSolver)

	engine := &fakeEngine{runErr: errors.New("docker daemon unreachable")}

	err := f.runner(engine).RunScheduled(ctx, &f.scheduled)
	require.Error(t, err)

	var result models.MatchResult
	require.NoError(t, f.db.First(&result).Error)
	assert.Equal(t, types.MatchStatusFailed, result.Status)
	assert.Nil(t, result.LogsID, "a failed match has no logs")

	var remaining int64
	require.NoError(t, f.db.Model(&models.ScheduledMatch{}).Count(&remaining).Error)
	assert.Zero(t, remaining, "a crashing engine must not wedge the sweep")
}

func TestSweepRefusesOverlap(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	second := models.ScheduledMatch{
		Name:      "too close",
		ProblemID: f.problem.ID,
		Time:      time.Now().Add(-5 * time.Minute),
	}
	require.NoError(t, f.db.Create(&second).Error)

	engine := &fakeEngine{reportJSON: `{"scores": {}}`}
	sweeper := NewSweeper(f.db, f.runner(engine), time.Hour)

	require.NoError(t, sweeper.Sweep(ctx))

	var results int64
	require.NoError(t, f.db.Model(&models.MatchResult{}).Count(&results).Error)
	assert.Zero(t, results, "overlapping matches must not execute")

	var remaining int64
	require.NoError(t, f.db.Model(&models.ScheduledMatch{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining, "refused matches stay scheduled for the operator")
}

func TestReconcileFailsStaleResults(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	stale := models.MatchResult{
		Status:    types.MatchStatusRunning,
		Time:      time.Now().Add(-2 * time.Hour),
		ProblemID: f.problem.ID,
	}
	require.NoError(t, f.db.Create(&stale).Error)

	engine := &fakeEngine{reportJSON: `{"scores": {}}`}
	sweeper := NewSweeper(f.db, f.runner(engine), time.Hour)

	require.NoError(t, sweeper.Reconcile(ctx))

	var reloaded models.MatchResult
	require.NoError(t, f.db.First(&reloaded, stale.ID).Error)
	assert.Equal(t, types.MatchStatusFailed, reloaded.Status)
}

func TestTransactionRollbackLeavesNoBlob(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	file := blob.NewFile("orphan.json")
	err := f.store.Transaction(ctx, f.db, func(tx *gorm.DB, stage *blob.Stage) error {
		if err := stage.Create(&file, bytes.NewReader([]byte("{}"))); err != nil {
			return err
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	_, statErr := os.Stat(f.store.Path(&file))
	assert.ErrorIs(t, statErr, os.ErrNotExist, "rolled back blobs must not land in the store")

	var rows int64
	require.NoError(t, f.db.Model(&models.File{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows, "only the fixture's problem blobs remain")
}
