package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per processor lifetime
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			full_width INTEGER NOT NULL,
			full_height INTEGER NOT NULL,
			processing_scale INTEGER NOT NULL CHECK(processing_scale > 0),
			settings TEXT NOT NULL DEFAULT '{}',
			frame_count INTEGER NOT NULL DEFAULT 0
		)`,

		// Hand points table - the per-frame hand output of a session
		`CREATE TABLE IF NOT EXISTS hand_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			tracking_id INTEGER NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('candidate', 'active')),
			status TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			full_size_x INTEGER NOT NULL,
			full_size_y INTEGER NOT NULL,
			world_x REAL NOT NULL,
			world_y REAL NOT NULL,
			world_z REAL NOT NULL
		)`,

		// Settings table - stores stream settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_hand_points_session_frame ON hand_points(session_id, frame_index)`,
		`CREATE INDEX IF NOT EXISTS idx_hand_points_tracking_id ON hand_points(session_id, tracking_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
