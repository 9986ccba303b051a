// Package mysqlsnapshot is a durable persistence.SnapshotStore backed by
// MySQL, keeping only the latest snapshot per persistence id.
package mysqlsnapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/babyman/fraktor/internal/persistence"
)

const createTableDDL = `CREATE TABLE IF NOT EXISTS actor_snapshots (
	persistence_id VARCHAR(255) NOT NULL PRIMARY KEY,
	sequence_nr    BIGINT UNSIGNED NOT NULL,
	payload        LONGBLOB NOT NULL,
	timestamp_ms   BIGINT NOT NULL
)`

type Store struct {
	db *sql.DB
}

// Open connects to MySQL using dsn (a go-sql-driver/mysql DSN) and
// ensures the snapshot table exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlsnapshot: open: %w", err)
	}
	if _, err := db.Exec(createTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlsnapshot: create table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ persistence.SnapshotStore = (*Store)(nil)

func (s *Store) SaveSnapshot(req persistence.SaveSnapshot, respond func(any)) {
	payload, err := json.Marshal(req.Snapshot)
	if err != nil {
		respond(persistence.SaveSnapshotFailure{Cause: err, InstanceID: req.InstanceID})
		return
	}

	_, err = s.db.Exec(`INSERT INTO actor_snapshots (persistence_id, sequence_nr, payload, timestamp_ms)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE sequence_nr = VALUES(sequence_nr), payload = VALUES(payload), timestamp_ms = VALUES(timestamp_ms)`,
		req.Metadata.PersistenceID, req.Metadata.SequenceNr, payload, req.Metadata.Timestamp.Milliseconds())
	if err != nil {
		respond(persistence.SaveSnapshotFailure{Cause: err, InstanceID: req.InstanceID})
		return
	}
	respond(persistence.SaveSnapshotSuccess{Metadata: req.Metadata, InstanceID: req.InstanceID})
}

func (s *Store) LoadSnapshot(req persistence.LoadSnapshot, respond func(any)) {
	row := s.db.QueryRow(`SELECT sequence_nr, payload, timestamp_ms FROM actor_snapshots WHERE persistence_id = ?`, req.PersistenceID)

	var seq uint64
	var payloadBytes []byte
	var timestampMs int64
	if err := row.Scan(&seq, &payloadBytes, &timestampMs); err != nil {
		if err == sql.ErrNoRows {
			respond(persistence.LoadSnapshotResult{InstanceID: req.InstanceID})
			return
		}
		respond(persistence.LoadSnapshotFailure{Cause: err, InstanceID: req.InstanceID})
		return
	}

	var payload any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		respond(persistence.LoadSnapshotFailure{Cause: err, InstanceID: req.InstanceID})
		return
	}

	meta := persistence.SnapshotMetadata{
		PersistenceID: req.PersistenceID,
		SequenceNr:    seq,
		Timestamp:     time.Duration(timestampMs) * time.Millisecond,
	}
	respond(persistence.LoadSnapshotResult{Metadata: &meta, Snapshot: payload, InstanceID: req.InstanceID})
}
