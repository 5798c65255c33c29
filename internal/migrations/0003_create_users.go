package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0003, Down0003)
}

func Up0003(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT false,
	token_id UUID NOT NULL DEFAULT gen_random_uuid(),
	selected_team_id UUID REFERENCES teams (id),
	selected_tournament_id UUID REFERENCES tournaments (id),
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	CONSTRAINT uq_users_email UNIQUE (email)
);
`},
		statement{query: `
CREATE TABLE team_members (
	team_id UUID NOT NULL REFERENCES teams (id),
	user_id UUID NOT NULL REFERENCES users (id),
	PRIMARY KEY (team_id, user_id)
);
`},
	)
}

func Down0003(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE team_members;`},
		statement{query: `DROP TABLE users;`},
	)
}
