package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Check-ins table - one row per finished session. Frames are never stored.
		`CREATE TABLE IF NOT EXISTS checkins (
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			matched INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			distance REAL NOT NULL DEFAULT 0,
			latitude REAL,
			longitude REAL,
			location_reason TEXT NOT NULL DEFAULT '',
			submitted INTEGER NOT NULL DEFAULT 0,
			submit_error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL
		)`,

		// Settings table - stores application state as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_checkins_ended_at ON checkins(ended_at)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_identity ON checkins(identity)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
