package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0007, Down0007)
}

func Up0007(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE scheduled_matches (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	time TIMESTAMP WITH TIME ZONE NOT NULL,
	problem_id UUID NOT NULL REFERENCES problems (id),
	name TEXT NOT NULL DEFAULT '',
	points DOUBLE PRECISION NOT NULL DEFAULT 100,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);
`},
		statement{query: `
CREATE INDEX ix_scheduled_matches_time ON scheduled_matches (time);
`},
		statement{query: `
CREATE TABLE match_results (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	status TEXT NOT NULL,
	time TIMESTAMP WITH TIME ZONE NOT NULL,
	problem_id UUID NOT NULL REFERENCES problems (id),
	logs_id UUID REFERENCES files (id),
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);
`},
		statement{query: `
CREATE TABLE result_participants (
	match_id UUID NOT NULL REFERENCES match_results (id),
	team_id UUID NOT NULL REFERENCES teams (id),
	generator_id UUID REFERENCES programs (id),
	solver_id UUID REFERENCES programs (id),
	points DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (match_id, team_id)
);
`},
	)
}

func Down0007(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE result_participants;`},
		statement{query: `DROP TABLE match_results;`},
		statement{query: `DROP TABLE scheduled_matches;`},
	)
}
