package models

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tournament groups teams and the problems they compete on. A match always
// pits the teams of its problem's tournament against each other.
type Tournament struct {
	Name string `gorm:"uniqueIndex"`
	Model

	Teams []Team
}

func (Tournament) TableName() string {
	return "tournaments"
}

func (t Tournament) GetID() uuid.UUID {
	return t.ID
}

type Team struct {
	Name         string `gorm:"uniqueIndex:uq_teams_name_tournament"`
	TournamentID uuid.UUID `gorm:"uniqueIndex:uq_teams_name_tournament"`
	Model

	Tournament *Tournament
	Members    []User `gorm:"many2many:team_members"`
}

func (Team) TableName() string {
	return "teams"
}

func (t Team) GetID() uuid.UUID {
	return t.ID
}

// TournamentTeams loads every team of a tournament.
func TournamentTeams(ctx context.Context, db *gorm.DB, tournamentID uuid.UUID) ([]Team, error) {
	var teams []Team
	err := db.WithContext(ctx).Where("tournament_id = ?", tournamentID).Order("name").Find(&teams).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return teams, nil
}
