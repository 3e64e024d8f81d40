package logstore

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/sqlite"
	"github.com/FocuswithJustin/standoff/core/standoff"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.MemoryDSN)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newStore(t *testing.T, db *sql.DB, stream string) *Store {
	t.Helper()
	s, err := New(context.Background(), db, stream)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", stream, err)
	}
	return s
}

func TestNewRejectsNilDB(t *testing.T) {
	if _, err := New(context.Background(), nil, "x"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("New(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestRecordAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, openDB(t), "main")

	records := []changelog.Record{
		{Command: changelog.AnnotationAdd, Set: "w", ID: 0, Start: 0, End: 3, Type: "Token", Features: map[string]any{"kind": "word"}},
		{Command: changelog.AnnFeatureSet, Set: "w", ID: 0, Feature: "lemma", Value: "the"},
		{Command: changelog.AnnotationRemove, Set: "w", ID: 0},
	}
	for _, rec := range records {
		if err := s.Record(rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if s.LastSeq() != 3 {
		t.Errorf("LastSeq() = %d, want 3", s.LastSeq())
	}
	n, err := s.Len(ctx)
	if err != nil || n != 3 {
		t.Errorf("Len() = %d, %v, want 3", n, err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("Load() =\n%v\nwant\n%v", got, records)
	}
}

func TestRecordOutlivesNewContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(ctx, openDB(t), "main")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	const big = int64(1<<60 + 1)
	rec := changelog.Record{Command: changelog.DocFeatureSet, Feature: "n", Value: big}
	if err := s.Record(rec); err != nil {
		t.Fatalf("Record after canceling the New context failed: %v", err)
	}
	canceled, stop := context.WithCancel(context.Background())
	stop()
	if err := s.RecordContext(canceled, rec); err == nil {
		t.Error("RecordContext with a canceled context succeeded")
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != big {
		t.Errorf("Load() = %+v, want one record with value %d", got, big)
	}
}

func TestRecordRejectsUnknownCommand(t *testing.T) {
	s := newStore(t, openDB(t), "main")
	if err := s.Record(changelog.Record{Command: "annotation:move"}); !errors.Is(err, errors.ErrUnknownCommand) {
		t.Errorf("Record error = %v, want ErrUnknownCommand", err)
	}
	if s.LastSeq() != 0 {
		t.Errorf("LastSeq() = %d after rejected record", s.LastSeq())
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	a := newStore(t, db, "a")
	b := newStore(t, db, "b")

	if err := a.Record(changelog.Record{Command: changelog.DocFeatureSet, Feature: "k", Value: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Record(changelog.Record{Command: changelog.DocFeaturesClear}); err != nil {
		t.Fatal(err)
	}
	if err := a.Record(changelog.Record{Command: changelog.DocFeatureRemove, Feature: "k"}); err != nil {
		t.Fatal(err)
	}
	if a.LastSeq() != 2 || b.LastSeq() != 1 {
		t.Errorf("LastSeq() = %d, %d, want 2, 1", a.LastSeq(), b.LastSeq())
	}

	streams, err := Streams(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(streams, []string{"a", "b"}) {
		t.Errorf("Streams() = %v, want [a b]", streams)
	}

	// A reopened store continues after the stored records.
	again := newStore(t, db, "a")
	if again.LastSeq() != 2 {
		t.Errorf("reopened LastSeq() = %d, want 2", again.LastSeq())
	}
	if again.Stream() != "a" {
		t.Errorf("Stream() = %q, want a", again.Stream())
	}
}

func TestSince(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, openDB(t), "main")
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 4; i++ {
		if err := s.Record(changelog.Record{Command: changelog.AnnotationsClear, Set: "s"}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Since(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Seq != 3 || entries[1].Seq != 4 {
		t.Fatalf("Since(2) = %v, want seq 3 and 4", entries)
	}
	if !entries[0].CreatedAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", entries[0].CreatedAt, base.Add(3*time.Second))
	}
	if entries[1].Record.Set != "s" {
		t.Errorf("Record.Set = %q, want s", entries[1].Record.Set)
	}
}

func TestAppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, openDB(t), "main")

	bad := []changelog.Record{
		{Command: changelog.AnnotationsClear, Set: "s"},
		{Command: "bogus"},
	}
	if err := s.Append(ctx, bad); !errors.Is(err, errors.ErrUnknownCommand) {
		t.Errorf("Append error = %v, want ErrUnknownCommand", err)
	}
	if n, _ := s.Len(ctx); n != 0 || s.LastSeq() != 0 {
		t.Errorf("failed Append stored %d records, LastSeq %d", n, s.LastSeq())
	}

	good := []changelog.Record{
		{Command: changelog.AnnotationsClear, Set: "s"},
		{Command: changelog.AnnotationsClear, Set: "t"},
	}
	if err := s.Append(ctx, good); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, nil); err != nil {
		t.Errorf("Append(nil) failed: %v", err)
	}
	if s.LastSeq() != 2 {
		t.Errorf("LastSeq() = %d, want 2", s.LastSeq())
	}
}

func TestDocumentHistoryReplays(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	store := newStore(t, db, "doc")

	text := "Stand-off markup keeps text and annotations apart."
	src := standoff.New(text, standoff.WithChangeLog(store))
	words := src.Set("words")
	for _, w := range [][2]int{{0, 9}, {10, 16}, {17, 22}} {
		if _, err := words.Add(w[0], w[1], "Token", map[string]any{"n": w[1] - w[0]}); err != nil {
			t.Fatal(err)
		}
	}
	first, _ := words.Get(0)
	if err := first.Features().Set("hyphenated", true); err != nil {
		t.Fatal(err)
	}
	if err := words.Remove(1); err != nil {
		t.Fatal(err)
	}

	records, err := newStore(t, db, "doc").Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	dst := standoff.New(text)
	if err := standoff.Apply(records, dst); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	got, want := dst.Set("words").Annotations(), words.Annotations()
	if len(got) != len(want) {
		t.Fatalf("replayed %d annotations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID() != want[i].ID() || got[i].Span() != want[i].Span() || !got[i].Features().Equal(want[i].Features()) {
			t.Errorf("annotation %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFailedInsertAbortsMutation(t *testing.T) {
	db := openDB(t)
	store := newStore(t, db, "doc")
	doc := standoff.New("abc", standoff.WithChangeLog(store))
	db.Close()

	if _, err := doc.Set("").Add(0, 1, "T", nil); err == nil {
		t.Fatal("Add succeeded with a closed store")
	}
	if doc.Set("").Size() != 0 {
		t.Error("annotation stored although the log insert failed")
	}
}
