package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Problem is a task definition teams write programs against. `File` is a
// zip archive that contains at least an algobattle.toml and the problem
// definition; `Config` is the match config used when running it.
type Problem struct {
	Name         string    `gorm:"uniqueIndex:uq_problems_name_tournament"`
	TournamentID uuid.UUID `gorm:"uniqueIndex:uq_problems_name_tournament"`
	Model

	Tournament *Tournament

	FileID        uuid.UUID
	File          File `gorm:"foreignKey:FileID"`
	ConfigID      uuid.UUID
	Config        File `gorm:"foreignKey:ConfigID"`
	DescriptionID *uuid.UUID
	Description   *File `gorm:"foreignKey:DescriptionID"`
	ImageID       *uuid.UUID
	Image         *File `gorm:"foreignKey:ImageID"`

	Start datatypes.Null[time.Time]
	End   datatypes.Null[time.Time]

	ShortDescription string
	ProblemSchema    string
	SolutionSchema   string
	Colour           string `gorm:"default:'#FFFFFF'"`
}

func (Problem) TableName() string {
	return "problems"
}

func (p Problem) GetID() uuid.UUID {
	return p.ID
}

// Visible: admins always, everyone else only once the start time has
// passed (or none is set). ProblemVisibleScope is the same rule as a query
// filter; keep the two in sync.
func (p *Problem) Visible(viewer *User) bool {
	if viewer.IsAdmin || !p.Start.Valid {
		return true
	}

	return !p.Start.V.After(time.Now())
}

func ProblemVisibleScope(viewer *User) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAdmin {
			return db
		}
		return db.Where("start IS NULL OR start <= ?", time.Now())
	}
}

// Open reports whether the problem currently accepts program uploads.
func (p *Problem) Open(now time.Time) bool {
	if p.Start.Valid && now.Before(p.Start.V) {
		return false
	}
	if p.End.Valid && now.After(p.End.V) {
		return false
	}

	return true
}
