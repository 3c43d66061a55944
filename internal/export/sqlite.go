package export

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/timeseam/timeseam/internal/merge"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	time   REAL NOT NULL,
	event  TEXT,
	comp   TEXT,
	uid    TEXT,
	state  TEXT,
	msg    TEXT,
	entity TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE TABLE IF NOT EXISTS session (
	key   TEXT PRIMARY KEY,
	value TEXT
);`

// WriteSQLite writes the timeline into an SQLite database at path:
// one row per record in events, merge metadata in session.
func WriteSQLite(path string, tl merge.Timeline) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	// the timeline is derived data; a rewrite replaces the previous one
	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO events(time, event, comp, uid, state, msg, entity) VALUES(?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, rec := range tl.Records {
		if _, err := stmt.Exec(rec.Time, rec.Event, rec.Comp, rec.UID, rec.State, rec.Msg, rec.Entity); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()

	meta := [][2]string{
		{"generated", time.Now().UTC().Format(time.RFC3339)},
		{"accuracy", strconv.FormatFloat(tl.Accuracy, 'f', -1, 64)},
		{"t_min", strconv.FormatFloat(tl.TMin, 'f', -1, 64)},
		{"unsynced", strings.Join(tl.Unsynced, ",")},
		{"unclosed", strings.Join(tl.Unclosed, ",")},
	}
	for _, kv := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO session(key, value) VALUES(?, ?)", kv[0], kv[1]); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
