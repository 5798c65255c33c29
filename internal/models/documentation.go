package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Documentation is a team's uploaded write-up for a problem.
type Documentation struct {
	TeamID    uuid.UUID `gorm:"uniqueIndex:uq_documentations_team_problem"`
	ProblemID uuid.UUID `gorm:"uniqueIndex:uq_documentations_team_problem"`
	Model

	Team    *Team
	Problem *Problem

	FileID uuid.UUID
	File   File `gorm:"foreignKey:FileID"`
}

func (Documentation) TableName() string {
	return "documentations"
}

func (d Documentation) GetID() uuid.UUID {
	return d.ID
}

// Visible to admins and members of the owning team.
func (d *Documentation) Visible(viewer *User) bool {
	return viewer.IsAdmin || viewer.MemberOf(d.TeamID)
}

func DocumentationVisibleScope(viewer *User) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAdmin {
			return db
		}
		return db.Where(
			"team_id IN (SELECT team_id FROM team_members WHERE user_id = ?)",
			viewer.ID,
		)
	}
}

// Editable while the problem has no end time or it lies in the future.
func (d *Documentation) Editable(viewer *User, problem *Problem, now time.Time) bool {
	if viewer.IsAdmin {
		return true
	}
	if !d.Visible(viewer) {
		return false
	}

	return !problem.End.Valid || !problem.End.V.Before(now)
}

func DocumentationEditableScope(viewer *User, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAdmin {
			return db
		}
		db = DocumentationVisibleScope(viewer)(db)
		return db.Where(
			"problem_id IN (SELECT id FROM problems WHERE \"end\" IS NULL OR \"end\" >= ?)",
			now,
		)
	}
}
