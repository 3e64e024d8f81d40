package changelog

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/FocuswithJustin/standoff/core/errors"
)

func TestCommandIsValid(t *testing.T) {
	tests := []struct {
		cmd   Command
		valid bool
	}{
		{DocFeatureSet, true},
		{DocFeatureRemove, true},
		{DocFeaturesClear, true},
		{AnnotationsClear, true},
		{AnnotationAdd, true},
		{AnnotationRemove, true},
		{AnnFeatureSet, true},
		{AnnFeatureRemove, true},
		{AnnFeaturesClear, true},
		{Command("annotation:move"), false},
		{Command(""), false},
	}
	for _, tt := range tests {
		if got := tt.cmd.IsValid(); got != tt.valid {
			t.Errorf("Command(%q).IsValid() = %v, want %v", tt.cmd, got, tt.valid)
		}
	}
}

func TestLogPreservesOrder(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		if err := l.Record(Record{Command: AnnotationAdd, ID: i}); err != nil {
			t.Fatal(err)
		}
	}
	if l.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", l.Len())
	}
	i := 0
	for rec := range l.All() {
		if rec.ID != i {
			t.Errorf("record %d has ID %d", i, rec.ID)
		}
		i++
	}
	if l.At(3).ID != 3 {
		t.Errorf("At(3).ID = %d, want 3", l.At(3).ID)
	}

	recs := l.Records()
	recs[0].ID = 99
	if l.At(0).ID != 0 {
		t.Error("Records() should return a copy")
	}
}

func TestMulti(t *testing.T) {
	a, b := NewLog(), NewLog()
	failing := SinkFunc(func(rec Record) error {
		return fmt.Errorf("full")
	})

	if err := Multi(a, b).Record(Record{Command: DocFeaturesClear}); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("lens = %d, %d, want 1, 1", a.Len(), b.Len())
	}

	if err := Multi(a, failing, b).Record(Record{Command: DocFeaturesClear}); err == nil {
		t.Fatal("Multi should report the failing sink")
	}
	if a.Len() != 2 || b.Len() != 1 {
		t.Errorf("lens = %d, %d, want 2, 1", a.Len(), b.Len())
	}
}

func TestEncodeDecode(t *testing.T) {
	records := []Record{
		{Command: AnnotationAdd, Set: "", ID: 0, Start: 0, End: 4, Type: "Token", Features: map[string]any{"kind": "word"}},
		{Command: AnnFeatureSet, Set: "", ID: 0, Feature: "len", Value: 4},
		{Command: AnnotationRemove, Set: "", ID: 0},
		{Command: DocFeatureSet, Feature: "lang", Value: "en"},
		{Command: DocFeatureSet, Feature: "big", Value: int64(1<<60 + 1)},
		{Command: AnnotationAdd, ID: 1, End: 1, Type: "T", Features: map[string]any{"f": 0.25, "l": []any{1, 2.5}}},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != len(records) {
		t.Errorf("encoded %d lines, want %d", n, len(records))
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("Decode returned %d records, want %d", len(got), len(records))
	}
	if got[0].Type != "Token" || got[0].End != 4 {
		t.Errorf("record 0 = %+v", got[0])
	}
	// Integers come back as int64, other numbers as float64.
	if got[1].Value != int64(4) {
		t.Errorf("record 1 value = %#v, want int64(4)", got[1].Value)
	}
	if got[4].Value != int64(1<<60+1) {
		t.Errorf("record 4 value = %#v, want int64(1<<60+1)", got[4].Value)
	}
	if want := map[string]any{"f": 0.25, "l": []any{int64(1), 2.5}}; !reflect.DeepEqual(got[5].Features, want) {
		t.Errorf("record 5 features = %#v, want %#v", got[5].Features, want)
	}
	if !reflect.DeepEqual(got[0].Features, map[string]any{"kind": "word"}) {
		t.Errorf("record 0 features = %v", got[0].Features)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"malformed", "{not json}\n", errors.ErrInvalidInput},
		{"unknown command", `{"command":"annotation:move"}` + "\n", errors.ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	got, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode(empty) error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Decode(empty) returned %d records", len(got))
	}
}
