// Package preset stores named color states in SQLite so frequently used
// lighting setups can be recalled by name.
package preset

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a preset id does not exist.
var ErrNotFound = errors.New("preset not found")

// Preset is one saved color state. Colors holds one 8-char hex string per
// group, already expanded to the explicit RGBW form.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Colors    []string  `json:"colors"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides preset persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save creates a preset, or replaces the colors of an existing preset with
// the same name.
func (s *Store) Save(name string, colors []string) (*Preset, error) {
	payload, err := json.Marshal(colors)
	if err != nil {
		return nil, fmt.Errorf("marshal colors: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`
		INSERT INTO presets (id, name, colors, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET colors = excluded.colors, updated_at = excluded.updated_at
	`, uuid.NewString(), name, string(payload), now, now)
	if err != nil {
		return nil, fmt.Errorf("save preset %q: %w", name, err)
	}

	return s.getBy("name", name)
}

// Get retrieves a preset by id.
func (s *Store) Get(id string) (*Preset, error) {
	return s.getBy("id", id)
}

// List returns all presets ordered by name.
func (s *Store) List() ([]*Preset, error) {
	rows, err := s.db.Query(`
		SELECT id, name, colors, created_at, updated_at
		FROM presets
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var presets []*Preset
	for rows.Next() {
		p, err := scanPreset(rows.Scan)
		if err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// Delete removes a preset by id.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM presets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) getBy(column, value string) (*Preset, error) {
	row := s.db.QueryRow(`
		SELECT id, name, colors, created_at, updated_at
		FROM presets
		WHERE `+column+` = ?
	`, value)

	p, err := scanPreset(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanPreset(scan func(...any) error) (*Preset, error) {
	var p Preset
	var colors string
	var createdAt, updatedAt int64
	if err := scan(&p.ID, &p.Name, &colors, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(colors), &p.Colors); err != nil {
		return nil, fmt.Errorf("corrupt colors payload for preset %q: %w", p.Name, err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
