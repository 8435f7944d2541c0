// Package store persists the little durable state the session has: the
// last-selected device host, the last-used media-server location, and a
// cache of device UPnP locations keyed by host.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Preference keys.
const (
	KeyLastDeviceHost     = "last_device_host"
	KeyLastServerLocation = "last_server_location"
)

const schema = `
CREATE TABLE IF NOT EXISTS prefs (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS device_locations (
	host     TEXT PRIMARY KEY,
	location TEXT NOT NULL,
	seen_at  TIMESTAMP NOT NULL
);
`

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. "~/" prefixes are
// expanded against the user's home directory.
func Open(path string) (*Store, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding store path: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Pref returns the value for a preference key, or "" when unset.
func (s *Store) Pref(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading pref %s: %w", key, err)
	}
	return value, nil
}

// SetPref stores a preference value, replacing any previous one.
func (s *Store) SetPref(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing pref %s: %w", key, err)
	}
	return nil
}

// LastDeviceHost returns the persisted device host, or "".
func (s *Store) LastDeviceHost() (string, error) {
	return s.Pref(KeyLastDeviceHost)
}

// SetLastDeviceHost persists the selected device host.
func (s *Store) SetLastDeviceHost(host string) error {
	return s.SetPref(KeyLastDeviceHost, host)
}

// LastServerLocation returns the persisted media-server location, or "".
func (s *Store) LastServerLocation() (string, error) {
	return s.Pref(KeyLastServerLocation)
}

// SetLastServerLocation persists the last-used media-server location.
func (s *Store) SetLastServerLocation(location string) error {
	return s.SetPref(KeyLastServerLocation, location)
}

// DeviceLocation returns the cached UPnP description URL for a device
// host, if one has been recorded.
func (s *Store) DeviceLocation(host string) (string, bool, error) {
	var location string
	err := s.db.QueryRow(`SELECT location FROM device_locations WHERE host = ?`, host).Scan(&location)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading device location for %s: %w", host, err)
	}
	return location, true, nil
}

// KnownDevice is one remembered host/location pair.
type KnownDevice struct {
	Host     string
	Location string
}

// DeviceLocations lists every remembered host/location pair, most
// recently seen first.
func (s *Store) DeviceLocations() ([]KnownDevice, error) {
	rows, err := s.db.Query(`SELECT host, location FROM device_locations ORDER BY seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing device locations: %w", err)
	}
	defer rows.Close()

	var devices []KnownDevice
	for rows.Next() {
		var d KnownDevice
		if err := rows.Scan(&d.Host, &d.Location); err != nil {
			return nil, fmt.Errorf("scanning device location: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing device locations: %w", err)
	}
	return devices, nil
}

// SetDeviceLocation records the UPnP description URL seen for a device
// host during discovery.
func (s *Store) SetDeviceLocation(host, location string) error {
	_, err := s.db.Exec(
		`INSERT INTO device_locations (host, location, seen_at) VALUES (?, ?, ?)
		 ON CONFLICT(host) DO UPDATE SET location = excluded.location, seen_at = excluded.seen_at`,
		host, location, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing device location for %s: %w", host, err)
	}
	return nil
}
