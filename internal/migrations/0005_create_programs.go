package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE programs (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	team_id UUID NOT NULL REFERENCES teams (id),
	role TEXT NOT NULL,
	file_id UUID NOT NULL REFERENCES files (id),
	problem_id UUID NOT NULL REFERENCES problems (id),
	creation_time TIMESTAMP WITH TIME ZONE NOT NULL,
	user_editable BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);
`},
		statement{query: `
CREATE INDEX ix_programs_latest ON programs (team_id, problem_id, role, creation_time DESC, id DESC);
`},
	)
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE programs;`)
	if err != nil {
		return err
	}

	return nil
}
