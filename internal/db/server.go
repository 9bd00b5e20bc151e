package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lowerthirds/lowerthirds/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// ServerDB persists channel state and the show/hide/kill history.
type ServerDB struct {
	db *sql.DB
}

// NewServerDB opens or creates the server database. An empty path opens a
// private in-memory database.
func NewServerDB(path string) (*ServerDB, error) {
	dsn := path + "?_fk=on"
	if path == "" {
		dsn = "file::memory:?_fk=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == "" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	sdb := &ServerDB{db: db}
	if err := sdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (s *ServerDB) Close() error {
	return s.db.Close()
}

func (s *ServerDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS channel_state (
			slug TEXT PRIMARY KEY,
			lower_third_visible INTEGER NOT NULL DEFAULT 0,
			current_lower_third TEXT -- JSON object
		);

		CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			action TEXT NOT NULL,
			lower_third TEXT, -- JSON object
			timestamp DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_channel ON history(channel, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveChannelStatus stores the status of a channel, replacing any previous one.
func (s *ServerDB) SaveChannelStatus(slug string, status *models.ChannelStatus) error {
	var current sql.NullString
	if status.CurrentLowerThird != nil {
		raw, err := json.Marshal(status.CurrentLowerThird)
		if err != nil {
			return err
		}
		current = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO channel_state (slug, lower_third_visible, current_lower_third)
		VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			lower_third_visible = excluded.lower_third_visible,
			current_lower_third = excluded.current_lower_third
	`, slug, status.LowerThirdVisible, current)
	return err
}

// GetChannelStatuses returns every stored channel status keyed by slug.
func (s *ServerDB) GetChannelStatuses() (map[string]*models.ChannelStatus, error) {
	rows, err := s.db.Query(`SELECT slug, lower_third_visible, current_lower_third FROM channel_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]*models.ChannelStatus)
	for rows.Next() {
		var slug string
		var current sql.NullString
		status := &models.ChannelStatus{}
		if err := rows.Scan(&slug, &status.LowerThirdVisible, &current); err != nil {
			return nil, err
		}
		if current.Valid {
			status.CurrentLowerThird = &models.LowerThird{}
			if err := json.Unmarshal([]byte(current.String), status.CurrentLowerThird); err != nil {
				return nil, fmt.Errorf("channel %s: %w", slug, err)
			}
		}
		statuses[slug] = status
	}
	return statuses, rows.Err()
}

// DeleteChannelStatus forgets the status of a channel.
func (s *ServerDB) DeleteChannelStatus(slug string) error {
	_, err := s.db.Exec(`DELETE FROM channel_state WHERE slug = ?`, slug)
	return err
}

// AppendHistory records an action on a channel. Entry ids sort by time.
func (s *ServerDB) AppendHistory(channel string, action models.HistoryAction, lt *models.LowerThird) (*models.HistoryEntry, error) {
	id := ulid.Make()
	entry := &models.HistoryEntry{
		ID:         id.String(),
		Channel:    channel,
		Action:     action,
		LowerThird: lt.Clone(),
		Timestamp:  ulid.Time(id.Time()).UTC(),
	}

	var raw sql.NullString
	if lt != nil {
		data, err := json.Marshal(lt)
		if err != nil {
			return nil, err
		}
		raw = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO history (id, channel, action, lower_third, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Channel, string(entry.Action), raw, entry.Timestamp)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetHistory returns up to limit entries for a channel in chronological
// order. If before is set, only entries older than that entry id are returned.
func (s *ServerDB) GetHistory(channel string, limit int, before string) ([]models.HistoryEntry, error) {
	var rows *sql.Rows
	var err error

	if before != "" {
		rows, err = s.db.Query(`
			SELECT id, channel, action, lower_third, timestamp
			FROM history WHERE channel = ? AND id < ?
			ORDER BY id DESC LIMIT ?
		`, channel, before, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, channel, action, lower_third, timestamp
			FROM history WHERE channel = ?
			ORDER BY id DESC LIMIT ?
		`, channel, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var action string
		var raw sql.NullString
		var ts time.Time
		if err := rows.Scan(&e.ID, &e.Channel, &action, &raw, &ts); err != nil {
			return nil, err
		}
		e.Action = models.HistoryAction(action)
		e.Timestamp = ts.UTC()
		if raw.Valid {
			e.LowerThird = &models.LowerThird{}
			if err := json.Unmarshal([]byte(raw.String), e.LowerThird); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	// Reverse to get chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, rows.Err()
}
