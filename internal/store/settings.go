package store

import (
	"database/sql"
	"errors"
	"strconv"
)

// SettingsRepository stores stream settings as key-value pairs.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get retrieves the value of a key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set inserts or replaces the value of a key.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetBool returns the boolean value of a key, or def when it is not set.
func (r *SettingsRepository) GetBool(key string, def bool) (bool, error) {
	value, err := r.Get(key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, err
	}
	return b, nil
}

// SetBool stores a boolean value.
func (r *SettingsRepository) SetBool(key string, value bool) error {
	return r.Set(key, strconv.FormatBool(value))
}

// Delete removes a key. Deleting a missing key is not an error.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}
