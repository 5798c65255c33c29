package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/types"
)

// Program is a team's generator or solver artifact for one problem. The
// match packager always picks the latest program per team and role.
type Program struct {
	Name   string
	TeamID uuid.UUID
	Role   types.ProgramRole `gorm:"type:text"`
	Model

	Team *Team

	FileID    uuid.UUID
	File      File `gorm:"foreignKey:FileID"`
	ProblemID uuid.UUID
	Problem   *Problem

	CreationTime time.Time
	UserEditable bool `gorm:"default:true"`
}

func (Program) TableName() string {
	return "programs"
}

func (p Program) GetID() uuid.UUID {
	return p.ID
}

// LatestProgram returns the newest program a team uploaded for a problem
// and role, or (nil, nil) when there is none. Ties on creation_time break
// on id so repeated sweeps pick the same program.
func LatestProgram(
	ctx context.Context,
	db *gorm.DB,
	teamID uuid.UUID,
	problemID uuid.UUID,
	role types.ProgramRole,
) (*Program, error) {
	var program Program
	err := db.WithContext(ctx).
		Preload("File").
		Where("team_id = ? AND problem_id = ? AND role = ?", teamID, problemID, role).
		Order("creation_time DESC, id DESC").
		First(&program).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &program, nil
}

// Visible: admins always, otherwise only programs of the viewer's selected
// team. ProgramVisibleScope mirrors the rule for queries.
func (p *Program) Visible(viewer *User) bool {
	if viewer.IsAdmin {
		return true
	}

	return viewer.SelectedTeamID != nil && *viewer.SelectedTeamID == p.TeamID
}

func ProgramVisibleScope(viewer *User) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAdmin {
			return db
		}
		if viewer.SelectedTeamID == nil {
			return db.Where("1 = 0")
		}
		return db.Where("team_id = ?", *viewer.SelectedTeamID)
	}
}

// Editable adds the upload-window check on top of visibility.
func (p *Program) Editable(viewer *User, problem *Problem, now time.Time) bool {
	if viewer.IsAdmin {
		return true
	}

	return p.Visible(viewer) && p.UserEditable && problem.Open(now)
}
