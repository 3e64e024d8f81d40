// Package logstore keeps change logs in SQLite so a document's history
// survives the process that produced it.
//
// A Store is a changelog.Sink bound to one named stream. Each record is
// inserted with the next sequence number of its stream before the mutation
// that produced it takes effect; a failed insert therefore aborts the
// mutation and the stored log never runs ahead of or behind the document.
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS change_log (
    stream     TEXT    NOT NULL,
    seq        INTEGER NOT NULL,
    command    TEXT    NOT NULL,
    payload    TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (stream, seq)
);
`

// EnsureSchema creates the change_log table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "creating change_log schema")
}

// Entry is a stored record with its position in the stream.
type Entry struct {
	Seq       int64
	Record    changelog.Record
	CreatedAt time.Time
}

// Store appends change records of one stream to a SQLite table.
//
// A Store is not safe for concurrent use; documents are single-writer.
type Store struct {
	db     *sql.DB
	stream string
	seq    int64

	// now is replaced in tests.
	now func() time.Time
}

// New returns a store for stream, creating the schema if needed. Appends
// continue after the last record already stored for stream.
func New(ctx context.Context, db *sql.DB, stream string) (*Store, error) {
	if db == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "logstore: db is nil")
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{db: db, stream: stream, now: time.Now}
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM change_log WHERE stream = ?`, stream).Scan(&s.seq)
	if err != nil {
		return nil, errors.Wrapf(err, "reading last sequence of stream %q", stream)
	}
	return s, nil
}

// Stream returns the stream name.
func (s *Store) Stream() string { return s.stream }

// LastSeq returns the sequence number of the last stored record, 0 if none.
func (s *Store) LastSeq() int64 { return s.seq }

// Record stores rec as the next record of the stream. The Sink interface
// carries no context; use RecordContext to bound the insert.
func (s *Store) Record(rec changelog.Record) error {
	return s.RecordContext(context.Background(), rec)
}

// RecordContext is Record with an explicit context.
func (s *Store) RecordContext(ctx context.Context, rec changelog.Record) error {
	if !rec.Command.IsValid() {
		return errors.Wrapf(errors.ErrUnknownCommand, "%q", rec.Command)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encoding %s record", rec.Command)
	}
	next := s.seq + 1
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO change_log(stream, seq, command, payload, created_at) VALUES(?, ?, ?, ?, ?)`,
		s.stream, next, string(rec.Command), string(payload), s.now().UnixNano())
	if err != nil {
		return errors.Wrapf(err, "storing record %d of stream %q", next, s.stream)
	}
	s.seq = next
	return nil
}

// Append stores records in one transaction. Either all of them are stored or
// none are.
func (s *Store) Append(ctx context.Context, records []changelog.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning append")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO change_log(stream, seq, command, payload, created_at) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing append")
	}
	defer stmt.Close()

	seq := s.seq
	for i, rec := range records {
		if !rec.Command.IsValid() {
			return errors.Wrapf(errors.ErrUnknownCommand, "record %d: %q", i, rec.Command)
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrapf(err, "encoding record %d", i)
		}
		seq++
		if _, err := stmt.ExecContext(ctx, s.stream, seq, string(rec.Command), string(payload), s.now().UnixNano()); err != nil {
			return errors.Wrapf(err, "storing record %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing append")
	}
	s.seq = seq
	return nil
}

// Load returns every record of the stream in order.
func (s *Store) Load(ctx context.Context) ([]changelog.Record, error) {
	entries, err := s.Since(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]changelog.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record
	}
	return out, nil
}

// Since returns the entries with a sequence number greater than seq, in
// order.
func (s *Store) Since(ctx context.Context, seq int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload, created_at FROM change_log WHERE stream = ? AND seq > ? ORDER BY seq`,
		s.stream, seq)
	if err != nil {
		return nil, errors.Wrapf(err, "reading stream %q", s.stream)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			payload string
			created int64
		)
		if err := rows.Scan(&e.Seq, &payload, &created); err != nil {
			return nil, errors.Wrap(err, "scanning change_log row")
		}
		if err := json.Unmarshal([]byte(payload), &e.Record); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "record %d of stream %q: %v", e.Seq, s.stream, err)
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating change_log")
	}
	return out, nil
}

// Len counts the stored records of the stream.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_log WHERE stream = ?`, s.stream).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "counting stream %q", s.stream)
	}
	return n, nil
}

// Streams lists every stream name in the database, sorted.
func Streams(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT stream FROM change_log ORDER BY stream`)
	if err != nil {
		return nil, errors.Wrap(err, "listing streams")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scanning stream name")
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating streams")
	}
	return out, nil
}

// Ensure Store satisfies the changelog.Sink interface.
var _ changelog.Sink = (*Store)(nil)
