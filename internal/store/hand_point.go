package store

import (
	"database/sql"
)

// HandPoint is one recorded hand of one frame.
type HandPoint struct {
	ID         int64
	SessionID  string
	FrameIndex int
	TrackingID int
	Type       string
	Status     string
	X          int
	Y          int
	FullSizeX  int
	FullSizeY  int
	WorldX     float64
	WorldY     float64
	WorldZ     float64
}

// HandPointRepository records the hand output of sessions.
type HandPointRepository struct {
	db *sql.DB
}

// HandPoints returns the hand point repository for this store.
func (s *Store) HandPoints() *HandPointRepository {
	return &HandPointRepository{db: s.db}
}

// Record inserts the hands of one frame in a single transaction.
func (r *HandPointRepository) Record(sessionID string, frameIndex int, points []HandPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO hand_points (session_id, frame_index, tracking_id, type, status, x, y,
		 full_size_x, full_size_y, world_x, world_y, world_z)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(sessionID, frameIndex, p.TrackingID, p.Type, p.Status, p.X, p.Y,
			p.FullSizeX, p.FullSizeY, p.WorldX, p.WorldY, p.WorldZ); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetBySession retrieves the recorded points of a session in frame order.
func (r *HandPointRepository) GetBySession(sessionID string) ([]HandPoint, error) {
	return r.query(
		`SELECT id, session_id, frame_index, tracking_id, type, status, x, y,
		 full_size_x, full_size_y, world_x, world_y, world_z
		 FROM hand_points WHERE session_id = ?
		 ORDER BY frame_index, id`,
		sessionID,
	)
}

// GetTrack retrieves the recorded path of one tracking id.
func (r *HandPointRepository) GetTrack(sessionID string, trackingID int) ([]HandPoint, error) {
	return r.query(
		`SELECT id, session_id, frame_index, tracking_id, type, status, x, y,
		 full_size_x, full_size_y, world_x, world_y, world_z
		 FROM hand_points WHERE session_id = ? AND tracking_id = ?
		 ORDER BY frame_index`,
		sessionID, trackingID,
	)
}

func (r *HandPointRepository) query(q string, args ...any) ([]HandPoint, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []HandPoint
	for rows.Next() {
		var p HandPoint
		if err := rows.Scan(&p.ID, &p.SessionID, &p.FrameIndex, &p.TrackingID, &p.Type, &p.Status,
			&p.X, &p.Y, &p.FullSizeX, &p.FullSizeY, &p.WorldX, &p.WorldY, &p.WorldZ); err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}

// DeleteBySession removes all recorded points of a session.
func (r *HandPointRepository) DeleteBySession(sessionID string) error {
	_, err := r.db.Exec(`DELETE FROM hand_points WHERE session_id = ?`, sessionID)
	return err
}
