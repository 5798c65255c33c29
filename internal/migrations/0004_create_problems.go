package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE problems (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	tournament_id UUID NOT NULL REFERENCES tournaments (id),
	file_id UUID NOT NULL REFERENCES files (id),
	config_id UUID NOT NULL REFERENCES files (id),
	description_id UUID REFERENCES files (id),
	image_id UUID REFERENCES files (id),
	start TIMESTAMP WITH TIME ZONE,
	"end" TIMESTAMP WITH TIME ZONE,
	short_description TEXT NOT NULL DEFAULT '',
	problem_schema TEXT NOT NULL DEFAULT '',
	solution_schema TEXT NOT NULL DEFAULT '',
	colour TEXT NOT NULL DEFAULT '#FFFFFF',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	CONSTRAINT uq_problems_name_tournament UNIQUE (name, tournament_id)
);
`)
	if err != nil {
		return err
	}

	return nil
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE problems;`)
	if err != nil {
		return err
	}

	return nil
}
