package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session describes one tracking run. A new session starts whenever the
// point processor is created or reset, so tracking ids are unique within a
// session only.
type Session struct {
	ID              string
	StartedAt       time.Time
	EndedAt         *time.Time
	FullWidth       int
	FullHeight      int
	ProcessingScale int
	Settings        json.RawMessage
	FrameCount      int
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session. An empty ID is replaced by a new UUID.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	sess.StartedAt = time.Now()

	settings := sess.Settings
	if settings == nil {
		settings = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, full_width, full_height, processing_scale, settings, frame_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt, sess.FullWidth, sess.FullHeight, sess.ProcessingScale, string(settings), sess.FrameCount,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, full_width, full_height, processing_scale, settings, frame_count
		 FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, full_width, full_height, processing_scale, settings, frame_count
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// End marks a session as finished after frameCount frames.
func (r *SessionRepository) End(id string, frameCount int) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frame_count = ? WHERE id = ?`,
		time.Now(), frameCount, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a session and its recorded hand points.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime
	var settings string

	err := row.Scan(&sess.ID, &sess.StartedAt, &ended, &sess.FullWidth, &sess.FullHeight,
		&sess.ProcessingScale, &settings, &sess.FrameCount)
	if err != nil {
		return nil, err
	}

	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	sess.Settings = json.RawMessage(settings)
	return sess, nil
}
