package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS alerts (
		unique_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		position INTEGER NOT NULL,
		owner_name TEXT NOT NULL DEFAULT '',
		asset_id TEXT NOT NULL,
		display_symbol TEXT NOT NULL,
		display_name TEXT NOT NULL,
		target_price TEXT NOT NULL,
		last_observed_price TEXT NOT NULL,
		state TEXT NOT NULL,
		trigger_direction TEXT NOT NULL DEFAULT '',
		triggered_price TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		triggered_at TEXT,
		delivery_channel INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS alerts_owner_position ON alerts (owner, position);

	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT PRIMARY KEY,
		metric_value REAL NOT NULL
	);`

// DB is the bot's sqlite database holding the alert snapshot and the
// persisted counters.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path. A file that is not a usable
// database is moved aside and replaced by an empty one so the bot always
// starts.
func Open(path string) (*DB, error) {
	db, err := open(path)
	if err == nil {
		return db, nil
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	log.Errorf("Database %s is unusable (%v), moving it to %s and starting empty", path, err, aside)
	if err := os.Rename(path, aside); err != nil {
		return nil, errors.Wrap(err, "could not move corrupt database aside")
	}
	return open(path)
}

func open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// One connection serializes writers inside the process; WAL lets outside
	// readers see the last committed snapshot while a save is in progress.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}

	log.Debugf("Database %s initialized successfully.", path)
	return &DB{conn: conn, path: path}, nil
}

func (d *DB) Close() error {
	if d != nil && d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
