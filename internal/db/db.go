package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/searchapi"
)

// MetaLastTechs stores the most recent tech filter.
const MetaLastTechs = "last_techs"

type DB struct {
	sql *sql.DB
	now func() time.Time
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	return &DB{sql: conn, now: time.Now}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

// SetNow replaces the clock. Used in tests only.
func (d *DB) SetNow(fn func() time.Time) {
	d.now = fn
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS searches (
			id           TEXT PRIMARY KEY,
			ts           INTEGER NOT NULL,
			latitude     REAL NOT NULL,
			longitude    REAL NOT NULL,
			techs        TEXT NOT NULL DEFAULT '',
			result_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create searches: %w", err)
	}
	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_searches_ts ON searches(ts DESC)`); err != nil {
		return fmt.Errorf("index searches: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS developers (
			id              TEXT PRIMARY KEY,
			github_username TEXT NOT NULL DEFAULT '',
			name            TEXT NOT NULL DEFAULT '',
			bio             TEXT NOT NULL DEFAULT '',
			techs           TEXT NOT NULL DEFAULT '[]',
			avatar_url      TEXT NOT NULL DEFAULT '',
			longitude       REAL,
			latitude        REAL,
			source          TEXT NOT NULL DEFAULT 'search',
			first_seen      INTEGER NOT NULL,
			last_seen       INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create developers: %w", err)
	}
	return nil
}

func (d *DB) InsertSearch(s *Search) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Ts.IsZero() {
		s.Ts = d.now()
	}
	_, err := d.sql.Exec(
		`INSERT INTO searches (id, ts, latitude, longitude, techs, result_count) VALUES (?,?,?,?,?,?)`,
		s.ID, s.Ts.UnixMilli(), s.Latitude, s.Longitude, s.Techs, s.ResultCount,
	)
	return err
}

// RecentSearches returns up to limit searches, newest first.
func (d *DB) RecentSearches(limit int) ([]Search, error) {
	rows, err := d.sql.Query(
		`SELECT id, ts, latitude, longitude, techs, result_count
		 FROM searches ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Search
	for rows.Next() {
		var s Search
		var ts int64
		if err := rows.Scan(&s.ID, &ts, &s.Latitude, &s.Longitude, &s.Techs, &s.ResultCount); err != nil {
			return nil, err
		}
		s.Ts = time.UnixMilli(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveDeveloper upserts dev. first_seen and source are kept from the first
// sighting; everything else is overwritten.
func (d *DB) SaveDeveloper(dev developer.Developer, source Source) error {
	techs, err := json.Marshal(dev.Techs)
	if err != nil {
		return fmt.Errorf("encode techs: %w", err)
	}
	var lon, lat sql.NullFloat64
	if c, ok := dev.Coordinates(); ok {
		lon = sql.NullFloat64{Float64: c.Longitude, Valid: true}
		lat = sql.NullFloat64{Float64: c.Latitude, Valid: true}
	}
	now := d.now().UnixMilli()
	_, err = d.sql.Exec(`
		INSERT INTO developers (
			id, github_username, name, bio, techs, avatar_url,
			longitude, latitude, source, first_seen, last_seen
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			github_username = excluded.github_username,
			name            = excluded.name,
			bio             = excluded.bio,
			techs           = excluded.techs,
			avatar_url      = excluded.avatar_url,
			longitude       = excluded.longitude,
			latitude        = excluded.latitude,
			last_seen       = excluded.last_seen`,
		dev.ID, dev.GithubUsername, dev.Name, dev.Bio, string(techs), dev.AvatarURL,
		lon, lat, string(source), now, now,
	)
	return err
}

const developerColumns = `id, github_username, name, bio, techs, avatar_url,
	longitude, latitude, source, first_seen, last_seen`

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeveloper(row rowScanner) (*SeenDeveloper, error) {
	var s SeenDeveloper
	var techs, source string
	var lon, lat sql.NullFloat64
	var first, last int64
	err := row.Scan(
		&s.ID, &s.GithubUsername, &s.Name, &s.Bio, &techs, &s.AvatarURL,
		&lon, &lat, &source, &first, &last,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(techs), &s.Techs); err != nil {
		return nil, fmt.Errorf("decode techs: %w", err)
	}
	if lon.Valid && lat.Valid {
		s.Location = geo.NewPoint(geo.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64})
	}
	s.Source = Source(source)
	s.FirstSeen = time.UnixMilli(first)
	s.LastSeen = time.UnixMilli(last)
	return &s, nil
}

// GetDeveloper returns nil, nil when id is unknown.
func (d *DB) GetDeveloper(id string) (*SeenDeveloper, error) {
	row := d.sql.QueryRow(`SELECT `+developerColumns+` FROM developers WHERE id = ?`, id)
	s, err := scanDeveloper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// LoadDevelopers returns up to limit developers, most recently seen first.
func (d *DB) LoadDevelopers(limit int) ([]*SeenDeveloper, error) {
	rows, err := d.sql.Query(`SELECT `+developerColumns+` FROM developers ORDER BY last_seen DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*SeenDeveloper
	for rows.Next() {
		s, err := scanDeveloper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordSearch stores a completed search and its results, and remembers the
// filter for the next start.
func (d *DB) RecordSearch(q searchapi.Query, results []developer.Developer) error {
	if err := d.InsertSearch(&Search{
		Latitude:    q.Latitude,
		Longitude:   q.Longitude,
		Techs:       q.Techs,
		ResultCount: len(results),
	}); err != nil {
		return fmt.Errorf("insert search: %w", err)
	}
	for _, dev := range results {
		if dev.ID == "" {
			continue
		}
		if err := d.SaveDeveloper(dev, SourceSearch); err != nil {
			return fmt.Errorf("save developer %s: %w", dev.ID, err)
		}
	}
	return d.SetMeta(MetaLastTechs, q.Techs)
}

// RecordLive stores a developer pushed over the live channel.
func (d *DB) RecordLive(dev developer.Developer) error {
	if dev.ID == "" {
		return nil
	}
	return d.SaveDeveloper(dev, SourceLive)
}

func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?,?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// PruneBefore deletes searches issued and developers last seen before t.
func (d *DB) PruneBefore(t time.Time) (searches, developers int64, err error) {
	res, err := d.sql.Exec(`DELETE FROM searches WHERE ts < ?`, t.UnixMilli())
	if err != nil {
		return 0, 0, fmt.Errorf("prune searches: %w", err)
	}
	searches, _ = res.RowsAffected()
	res, err = d.sql.Exec(`DELETE FROM developers WHERE last_seen < ?`, t.UnixMilli())
	if err != nil {
		return searches, 0, fmt.Errorf("prune developers: %w", err)
	}
	developers, _ = res.RowsAffected()
	return searches, developers, nil
}
