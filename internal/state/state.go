package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    port       TEXT NOT NULL DEFAULT '',
    line       TEXT NOT NULL,
    ok         INTEGER NOT NULL DEFAULT 1,
    at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS transfers (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    port       TEXT NOT NULL DEFAULT '',
    direction  TEXT NOT NULL,
    src        TEXT NOT NULL,
    dst        TEXT NOT NULL,
    bytes      INTEGER NOT NULL DEFAULT 0,
    ok         INTEGER NOT NULL DEFAULT 1,
    at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS history_port ON history(port, id);
`

// Store wraps a SQLite database holding shell history and a transfer log.
type Store struct {
	db *sql.DB
}

// DefaultPath returns $XDG_STATE_HOME/upyide/state.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "upyide", "state.db"), nil
}

// Open creates or opens the state database at DefaultPath.
func Open() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return OpenPath(path)
}

// OpenPath creates or opens the state database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL mode so a second shell on another board can share the file
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordCommand appends one executed shell line.
func (s *Store) RecordCommand(sessionID, port, line string, ok bool) error {
	_, err := s.db.Exec(`
		INSERT INTO history (session_id, port, line, ok, at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, port, line, boolInt(ok), time.Now().UTC())
	return err
}

// HistoryEntry is one recorded shell line.
type HistoryEntry struct {
	SessionID string
	Port      string
	Line      string
	OK        bool
	At        time.Time
}

// RecentCommands returns up to limit lines, oldest first. An empty port
// matches every port.
func (s *Store) RecentCommands(port string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT session_id, port, line, ok, at
		FROM history
		WHERE ? = '' OR port = ?
		ORDER BY id DESC
		LIMIT ?
	`, port, port, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var ok int
		if err := rows.Scan(&h.SessionID, &h.Port, &h.Line, &ok, &h.At); err != nil {
			return nil, err
		}
		h.OK = ok == 1
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(result)
	return result, nil
}

// Transfer is one logged file transfer.
type Transfer struct {
	Port      string
	Direction string
	Src       string
	Dst       string
	Bytes     int64
	OK        bool
	At        time.Time
}

// RecordTransfer appends a transfer to the log.
func (s *Store) RecordTransfer(t Transfer) error {
	_, err := s.db.Exec(`
		INSERT INTO transfers (port, direction, src, dst, bytes, ok, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.Port, t.Direction, t.Src, t.Dst, t.Bytes, boolInt(t.OK), time.Now().UTC())
	return err
}

// RecentTransfers returns up to limit transfers, most recent first.
func (s *Store) RecentTransfers(limit int) ([]Transfer, error) {
	rows, err := s.db.Query(`
		SELECT port, direction, src, dst, bytes, ok, at
		FROM transfers
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Transfer
	for rows.Next() {
		var t Transfer
		var ok int
		if err := rows.Scan(&t.Port, &t.Direction, &t.Src, &t.Dst, &t.Bytes, &ok, &t.At); err != nil {
			return nil, err
		}
		t.OK = ok == 1
		result = append(result, t)
	}
	return result, rows.Err()
}
