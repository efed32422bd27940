package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/protocol"
)

// CaptureDatabase stores raw realm traffic.
type CaptureDatabase struct {
	db *Database
}

// Session is one realm connection's worth of captured traffic.
type Session struct {
	ID        int64      `json:"id"`
	Address   string     `json:"address"`
	Player    string     `json:"player"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Messages  int        `json:"messages"`
}

// CapturedMessage is one stored message. Seq orders messages within a
// session across both directions.
type CapturedMessage struct {
	SessionID int64           `json:"session_id"`
	Seq       int64           `json:"seq"`
	Direction string          `json:"direction"`
	Opcode    protocol.Opcode `json:"opcode"`
	Payload   []byte          `json:"payload"`
	At        time.Time       `json:"at"`
}

// NewCaptureDatabase opens the store at dbPath and migrates it.
func NewCaptureDatabase(dbPath string) (*CaptureDatabase, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	cdb := &CaptureDatabase{db: database}
	if err := cdb.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate capture database: %w", err)
	}
	return cdb, nil
}

// captureSchema is the capture store's migration list; append, never edit.
var captureSchema = []string{
	`CREATE TABLE sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		player TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE TABLE messages (
		session_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		direction TEXT NOT NULL,
		opcode INTEGER NOT NULL,
		payload BLOB NOT NULL,
		at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX idx_sessions_started_at ON sessions(started_at);
	CREATE INDEX idx_messages_opcode ON messages(opcode);`,
}

func (cdb *CaptureDatabase) migrate() error {
	_, err := cdb.db.Migrate(captureSchema)
	return err
}

// Close closes the underlying database.
func (cdb *CaptureDatabase) Close() error {
	return cdb.db.Close()
}

// StartSession opens a new capture session and returns its ID.
func (cdb *CaptureDatabase) StartSession(address, player string, at time.Time) (int64, error) {
	res, err := cdb.db.Exec(
		"INSERT INTO sessions (address, player, started_at) VALUES (?, ?, ?)",
		address, player, at.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to start capture session: %w", err)
	}
	return res.LastInsertId()
}

// EndSession stamps the session's end time.
func (cdb *CaptureDatabase) EndSession(id int64, at time.Time) error {
	res, err := cdb.db.Exec("UPDATE sessions SET ended_at = ? WHERE id = ?", at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end capture session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("capture session %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Record stores messages in one transaction.
func (cdb *CaptureDatabase) Record(msgs ...CapturedMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return cdb.db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			"INSERT INTO messages (session_id, seq, direction, opcode, payload, at) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range msgs {
			payload := m.Payload
			if payload == nil {
				payload = []byte{}
			}
			if _, err := stmt.Exec(m.SessionID, m.Seq, m.Direction, int64(m.Opcode), payload, m.At.UnixNano()); err != nil {
				return fmt.Errorf("failed to record message %d/%d: %w", m.SessionID, m.Seq, err)
			}
		}
		return nil
	})
}

// Sessions lists capture sessions, newest first.
func (cdb *CaptureDatabase) Sessions() ([]Session, error) {
	rows, err := cdb.db.Query(`
		SELECT s.id, s.address, s.player, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Address, &s.Player, &started, &ended, &s.Messages); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Messages returns a session's messages in capture order.
func (cdb *CaptureDatabase) Messages(sessionID int64) ([]CapturedMessage, error) {
	rows, err := cdb.db.Query(`
		SELECT seq, direction, opcode, payload, at FROM messages
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var msgs []CapturedMessage
	for rows.Next() {
		var (
			m  CapturedMessage
			op int64
			at int64
		)
		if err := rows.Scan(&m.Seq, &m.Direction, &op, &m.Payload, &at); err != nil {
			return nil, err
		}
		m.SessionID = sessionID
		m.Opcode = protocol.Opcode(op)
		m.At = time.Unix(0, at)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Purge deletes sessions started before olderThan, together with their
// messages, and returns how many sessions went.
func (cdb *CaptureDatabase) Purge(olderThan time.Time) (int64, error) {
	var purged int64
	err := cdb.db.Transaction(func(tx *sql.Tx) error {
		cutoff := olderThan.UnixNano()
		if _, err := tx.Exec(
			"DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE started_at < ?)", cutoff); err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM sessions WHERE started_at < ?", cutoff)
		if err != nil {
			return err
		}
		purged, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge captures: %w", err)
	}
	if purged > 0 {
		log.Info().Int64("sessions", purged).Time("older_than", olderThan).Msg("purged old captures")
	}
	return purged, nil
}
