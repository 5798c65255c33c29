package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/types"
)

// ScheduledMatch is a pending request to run a match against a problem at
// or after the declared time, worth `points`.
type ScheduledMatch struct {
	Time      time.Time
	ProblemID uuid.UUID
	Name      string
	Points    float64 `gorm:"default:100"`
	Model

	Problem *Problem
}

func (ScheduledMatch) TableName() string {
	return "scheduled_matches"
}

func (s ScheduledMatch) GetID() uuid.UUID {
	return s.ID
}

// DueScheduledMatches returns the matches whose time falls inside the sweep
// window [now - interval - overlap, now]. The overlap tolerates clock drift
// and missed wakes.
func DueScheduledMatches(
	ctx context.Context,
	db *gorm.DB,
	now time.Time,
	interval time.Duration,
	overlap time.Duration,
) ([]ScheduledMatch, error) {
	first := now.Add(-interval - overlap)

	var due []ScheduledMatch
	err := db.WithContext(ctx).
		Preload("Problem").
		Preload("Problem.Tournament").
		Where("time >= ? AND time <= ?", first, now).
		Order("time").
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	return due, nil
}

// ResultParticipant records one team's part in a match result. Program
// refs are null when the team was excluded for missing one of them.
type ResultParticipant struct {
	MatchID uuid.UUID `gorm:"primaryKey"`
	TeamID  uuid.UUID `gorm:"primaryKey"`

	Team *Team

	GeneratorID *uuid.UUID
	Generator   *Program `gorm:"foreignKey:GeneratorID"`
	SolverID    *uuid.UUID
	Solver      *Program `gorm:"foreignKey:SolverID"`

	Points float64
}

func (ResultParticipant) TableName() string {
	return "result_participants"
}

// MatchResult is the persistent record of one match execution. Created in
// `running` when the match is dispatched and finalized exactly once to
// `complete` or `failed`.
type MatchResult struct {
	Status types.MatchStatus `gorm:"type:text"`
	Time   time.Time
	Model

	ProblemID uuid.UUID
	Problem   *Problem

	Participants []ResultParticipant `gorm:"foreignKey:MatchID"`

	LogsID *uuid.UUID
	Logs   *File `gorm:"foreignKey:LogsID"`
}

func (MatchResult) TableName() string {
	return "match_results"
}

func (m MatchResult) GetID() uuid.UUID {
	return m.ID
}

// Visible to admins and to members of any participating team.
// MatchResultVisibleScope expresses the same rule in SQL.
func (m *MatchResult) Visible(viewer *User) bool {
	if viewer.IsAdmin {
		return true
	}
	for _, participant := range m.Participants {
		if viewer.MemberOf(participant.TeamID) {
			return true
		}
	}

	return false
}

func MatchResultVisibleScope(viewer *User) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAdmin {
			return db
		}
		return db.Where(
			"EXISTS (SELECT 1 FROM result_participants rp JOIN team_members tm ON tm.team_id = rp.team_id WHERE rp.match_id = match_results.id AND tm.user_id = ?)",
			viewer.ID,
		)
	}
}

// StaleRunningResults returns results stuck in `running` that were started
// before the cutoff. Used by the scheduler's startup reconciliation.
func StaleRunningResults(
	ctx context.Context,
	db *gorm.DB,
	cutoff time.Time,
) ([]MatchResult, error) {
	var stale []MatchResult
	err := db.WithContext(ctx).
		Where("status = ? AND time < ?", types.MatchStatusRunning, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}

	return stale, nil
}
