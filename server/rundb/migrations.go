package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			uuid TEXT NOT NULL,
			stream TEXT NOT NULL,
			started_at INT NOT NULL,
			finished_at INT,
			frame_rate REAL NOT NULL,
			frames INT NOT NULL DEFAULT 0,
			speeding_frames INT NOT NULL DEFAULT 0,
			max_speed REAL NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			error TEXT,
			config BLOB,
			summary BLOB
		);

		CREATE TABLE segment(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			start_frame INT NOT NULL,
			end_frame INT NOT NULL,
			clip TEXT
		);

		CREATE UNIQUE INDEX idx_run_uuid ON run(uuid);
		CREATE INDEX idx_segment_run_id ON segment(run_id);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE INDEX idx_run_started_at ON run(started_at);
	`))

	return migs
}
