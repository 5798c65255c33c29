package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	Email   string `gorm:"uniqueIndex"`
	Name    string
	IsAdmin bool
	// Rotates to invalidate all outstanding session tokens.
	TokenID uuid.UUID `gorm:"default:gen_random_uuid()" json:"-"`
	Model

	Teams                []Team `gorm:"many2many:team_members"`
	SelectedTeamID       *uuid.UUID
	SelectedTeam         *Team
	SelectedTournamentID *uuid.UUID
	SelectedTournament   *Tournament
}

func (User) TableName() string {
	return "users"
}

func (u User) GetID() uuid.UUID {
	return u.ID
}

// UserByEmail looks a user up by their unique email address. Returns
// (nil, nil) when no such user exists.
func UserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error) {
	var user User
	err := db.WithContext(ctx).Preload("Teams").Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

// RotateToken assigns a fresh token id, invalidating every session token
// issued against the old one.
func (u *User) RotateToken(ctx context.Context, db *gorm.DB) error {
	u.TokenID = uuid.New()
	err := db.WithContext(ctx).Model(u).Update("token_id", u.TokenID).Error
	if err != nil {
		return fmt.Errorf("failed to rotate token id: %w", err)
	}

	return nil
}

func (u *User) MemberOf(teamID uuid.UUID) bool {
	for _, team := range u.Teams {
		if team.ID == teamID {
			return true
		}
	}

	return false
}

func (u *User) TeamIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(u.Teams))
	for i, team := range u.Teams {
		ids[i] = team.ID
	}

	return ids
}

// Visible reports whether `u` may be seen by `viewer`: admins see everyone,
// everyone sees users they share a team with. VisibleScope is the
// equivalent query filter; the two must express the same rule.
func (u *User) Visible(viewer *User) bool {
	if viewer.IsAdmin {
		return true
	}
	for _, team := range u.Teams {
		if viewer.MemberOf(team.ID) {
			return true
		}
	}

	return false
}

func UserVisibleScope(viewer *User) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewer.IsAdmin {
			return db
		}
		return db.Where(
			"EXISTS (SELECT 1 FROM team_members mine JOIN team_members theirs ON mine.team_id = theirs.team_id WHERE mine.user_id = ? AND theirs.user_id = users.id)",
			viewer.ID,
		)
	}
}
