package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	settingEnabled = "enabled"
	settingSSID    = "ssid"
)

const schema = `
    CREATE TABLE IF NOT EXISTS settings (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS credentials (
        ssid TEXT PRIMARY KEY,
        password TEXT NOT NULL
    );
`

// SQLiteStore keeps settings and credentials in a sqlite database.
type SQLiteStore struct {
	db  *sqlx.DB
	log logr.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(log logr.Logger, path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		log.Error(err, "Failed to connect to database", "dbType", "sqlite3", "dbName", path)
		return nil, err
	}
	s := &SQLiteStore{
		db:  db,
		log: log.WithName("SQLiteStore"),
	}
	if _, err := s.db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	s.log.V(1).Info("Opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) setting(key string) (string, bool, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) setSetting(key, value string) error {
	_, err := s.db.NamedExec(`INSERT INTO settings (key, value) VALUES (:key, :value)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		map[string]interface{}{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Enabled() (bool, error) {
	v, _, err := s.setting(settingEnabled)
	return v == "1", err
}

func (s *SQLiteStore) SetEnabled(enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return s.setSetting(settingEnabled, v)
}

func (s *SQLiteStore) DefaultSSID() (string, error) {
	v, _, err := s.setting(settingSSID)
	return v, err
}

func (s *SQLiteStore) SetDefaultSSID(ssid string) error {
	return s.setSetting(settingSSID, ssid)
}

func (s *SQLiteStore) ClearDefaultSSID() error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = $1`, settingSSID); err != nil {
		return fmt.Errorf("failed to clear default ssid: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Password(ssid string) (string, bool, error) {
	var password string
	err := s.db.Get(&password, `SELECT password FROM credentials WHERE ssid = $1`, ssid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read password: %w", err)
	}
	return password, true, nil
}

func (s *SQLiteStore) SetPassword(ssid, password string) error {
	_, err := s.db.NamedExec(`INSERT INTO credentials (ssid, password) VALUES (:ssid, :password)
        ON CONFLICT(ssid) DO UPDATE SET password = excluded.password`,
		map[string]interface{}{"ssid": ssid, "password": password})
	if err != nil {
		return fmt.Errorf("failed to write password: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearPassword(ssid string) error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE ssid = $1`, ssid); err != nil {
		return fmt.Errorf("failed to clear password: %w", err)
	}
	return nil
}

// SSIDs lists the networks with a stored password.
func (s *SQLiteStore) SSIDs() ([]string, error) {
	var ssids []string
	if err := s.db.Select(&ssids, `SELECT ssid FROM credentials ORDER BY ssid`); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return ssids, nil
}
