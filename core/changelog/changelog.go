// Package changelog records structural mutations of a document as an
// ordered, append-only sequence of flat records.
//
// Records are produced by the standoff package before each mutation takes
// effect and can be replayed onto another document that starts from the same
// baseline. The order of records is the order of the mutations; replay relies
// on nothing else.
package changelog

import (
	"iter"
)

// Command discriminates change records.
type Command string

// Record vocabulary.
const (
	DocFeatureSet    Command = "doc-feature:set"
	DocFeatureRemove Command = "doc-feature:remove"
	DocFeaturesClear Command = "features:clear"
	AnnotationsClear Command = "annotations:clear"
	AnnotationAdd    Command = "annotation:add"
	AnnotationRemove Command = "annotation:remove"
	AnnFeatureSet    Command = "ann-feature:set"
	AnnFeatureRemove Command = "ann-feature:remove"
	AnnFeaturesClear Command = "ann-features:clear"
)

var knownCommands = map[Command]bool{
	DocFeatureSet:    true,
	DocFeatureRemove: true,
	DocFeaturesClear: true,
	AnnotationsClear: true,
	AnnotationAdd:    true,
	AnnotationRemove: true,
	AnnFeatureSet:    true,
	AnnFeatureRemove: true,
	AnnFeaturesClear: true,
}

// IsValid returns true if the command belongs to the vocabulary.
func (c Command) IsValid() bool {
	return knownCommands[c]
}

// Record is one change. Only the fields relevant to Command are set.
type Record struct {
	Command  Command        `json:"command"`
	Set      string         `json:"set,omitempty"`
	ID       int            `json:"id,omitempty"`
	Start    int            `json:"start,omitempty"`
	End      int            `json:"end,omitempty"`
	Type     string         `json:"type,omitempty"`
	Feature  string         `json:"feature,omitempty"`
	Value    any            `json:"value,omitempty"`
	Features map[string]any `json:"features,omitempty"`
}

// Sink receives change records. An error from Record aborts the mutation
// that produced the record.
type Sink interface {
	Record(rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record) error

// Record calls f(rec).
func (f SinkFunc) Record(rec Record) error {
	return f(rec)
}

// Log is an in-memory append-only change log.
type Log struct {
	records []Record
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Record appends rec. It never fails.
func (l *Log) Record(rec Record) error {
	l.records = append(l.records, rec)
	return nil
}

// Len returns the number of records.
func (l *Log) Len() int {
	return len(l.records)
}

// At returns the i-th record.
func (l *Log) At(i int) Record {
	return l.records[i]
}

// Records returns a copy of the records in order.
func (l *Log) Records() []Record {
	return append([]Record(nil), l.records...)
}

// All iterates over the records in order.
func (l *Log) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range l.records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Multi returns a sink that forwards each record to every sink in order. It
// stops at the first failing sink; sinks before it have already recorded.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(rec Record) error {
		for _, s := range sinks {
			if err := s.Record(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
