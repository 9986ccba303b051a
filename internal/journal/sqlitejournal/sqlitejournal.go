// Package sqlitejournal is a durable persistence.Journal backed by
// SQLite, with schema migrations applied through golang-migrate.
package sqlitejournal

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/babyman/fraktor/internal/persistence"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal writes PersistentRepr rows into a single SQLite table, ordered
// by (persistence_id, sequence_nr).
type Journal struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// any pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitejournal: open %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("sqlitejournal: migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlitejournal: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("sqlitejournal: migration init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sqlitejournal: migration up: %w", err)
	}
	return nil
}

func (j *Journal) Close() error { return j.db.Close() }

var _ persistence.Journal = (*Journal)(nil)

func (j *Journal) WriteMessages(req persistence.WriteMessages, respond func(any)) {
	tx, err := j.db.Begin()
	if err != nil {
		respond(persistence.WriteMessagesFailed{WriteCount: 0, InstanceID: req.InstanceID})
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO journal_entries
		(persistence_id, sequence_nr, payload, manifest, writer_uuid, timestamp_ms, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		respond(persistence.WriteMessagesFailed{WriteCount: 0, InstanceID: req.InstanceID})
		return
	}
	defer stmt.Close()

	written := 0
	for _, repr := range req.Messages {
		payload, merr := json.Marshal(repr.Payload)
		if merr != nil {
			respond(persistence.WriteMessageFailure{Repr: repr, Cause: merr, InstanceID: req.InstanceID})
			continue
		}
		var writerUUID string
		if repr.WriterUUID != nil {
			writerUUID = *repr.WriterUUID
		}
		if _, err := stmt.Exec(repr.PersistenceID, repr.SequenceNr, payload, manifestOrNil(repr.Manifest), writerUUID, repr.Timestamp.Milliseconds(), repr.Deleted); err != nil {
			respond(persistence.WriteMessageFailure{Repr: repr, Cause: err, InstanceID: req.InstanceID})
			continue
		}
		written++
		respond(persistence.WriteMessageSuccess{Repr: repr, InstanceID: req.InstanceID})
	}

	if written == len(req.Messages) {
		if err := tx.Commit(); err != nil {
			respond(persistence.WriteMessagesFailed{WriteCount: 0, InstanceID: req.InstanceID})
			return
		}
		respond(persistence.WriteMessagesSuccessful{InstanceID: req.InstanceID})
		return
	}
	tx.Rollback()
	respond(persistence.WriteMessagesFailed{WriteCount: written, InstanceID: req.InstanceID})
}

func (j *Journal) ReplayMessages(req persistence.ReplayMessages, respond func(any)) {
	query := `SELECT sequence_nr, payload, manifest, writer_uuid, timestamp_ms, deleted
		FROM journal_entries WHERE persistence_id = ? AND sequence_nr >= ?`
	args := []any{req.PersistenceID, req.FromSequenceNr}
	if req.ToSequenceNr > 0 {
		query += " AND sequence_nr <= ?"
		args = append(args, req.ToSequenceNr)
	}
	query += " ORDER BY sequence_nr ASC"
	if req.Max > 0 {
		query += " LIMIT ?"
		args = append(args, req.Max)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		respond(persistence.ReplayMessagesFailure{Cause: err, InstanceID: req.InstanceID})
		return
	}
	defer rows.Close()

	var highest uint64
	for rows.Next() {
		var seq uint64
		var payloadBytes []byte
		var manifest sql.NullString
		var writerUUID string
		var timestampMs int64
		var deleted bool
		if err := rows.Scan(&seq, &payloadBytes, &manifest, &writerUUID, &timestampMs, &deleted); err != nil {
			respond(persistence.ReplayMessagesFailure{Cause: err, InstanceID: req.InstanceID})
			return
		}
		var payload any
		_ = json.Unmarshal(payloadBytes, &payload)
		repr := persistence.PersistentRepr{
			PersistenceID: req.PersistenceID,
			SequenceNr:    seq,
			Payload:       payload,
			Deleted:       deleted,
		}
		if manifest.Valid {
			m := manifest.String
			repr.Manifest = &m
		}
		if writerUUID != "" {
			repr.WriterUUID = &writerUUID
		}
		respond(persistence.ReplayedMessage{Repr: repr, InstanceID: req.InstanceID})
		if seq > highest {
			highest = seq
		}
	}
	respond(persistence.RecoverySuccess{HighestSequenceNr: highest, InstanceID: req.InstanceID})
}

func (j *Journal) HighestSequenceNr(persistenceID string, instanceID uint64, respond func(any)) {
	row := j.db.QueryRow(`SELECT COALESCE(MAX(sequence_nr), 0) FROM journal_entries WHERE persistence_id = ?`, persistenceID)
	var highest uint64
	if err := row.Scan(&highest); err != nil {
		respond(persistence.HighestSequenceNrFailure{Cause: err, InstanceID: instanceID})
		return
	}
	respond(persistence.HighestSequenceNr{SequenceNr: highest, InstanceID: instanceID})
}

func manifestOrNil(m *string) any {
	if m == nil {
		return nil
	}
	return *m
}
