// Package standoff implements a stand-off annotation store.
//
// A Document holds immutable text, a top-level feature map and any number of
// named AnnotationSets. Annotations are typed spans over the text, measured
// in Unicode code points, and carry their own feature map. Spans may overlap
// and nest freely. Every structural change can be reported to a
// changelog.Sink and replayed onto another document with Apply.
package standoff

import (
	"encoding/hex"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/features"
	"github.com/FocuswithJustin/standoff/core/offsets"
)

// DefaultSetName names the set used when no name is given.
const DefaultSetName = ""

// Document composes immutable text, a feature map and named annotation sets.
//
// A Document is not safe for concurrent mutation. Read-only access from
// several goroutines is safe while no goroutine mutates it.
type Document struct {
	id       uuid.UUID
	text     string
	length   int
	features *features.Map
	sets     map[string]*AnnotationSet
	log      changelog.Sink

	mapperOnce sync.Once
	mapper     *offsets.Mapper

	bytesOnce sync.Once
	byteAt    []int // byte offset of each code point, nil for ASCII text
}

// Option configures a Document.
type Option func(*Document)

// WithID sets the document id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(d *Document) { d.id = id }
}

// WithChangeLog attaches a change log from the start.
func WithChangeLog(sink changelog.Sink) Option {
	return func(d *Document) { d.log = sink }
}

// New creates a document over text.
func New(text string, opts ...Option) *Document {
	d := &Document{
		id:     uuid.New(),
		text:   text,
		length: utf8.RuneCountInString(text),
		sets:   make(map[string]*AnnotationSet),
	}
	d.features = features.NewWithLogger(docFeatureLogger{doc: d})
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the document id.
func (d *Document) ID() uuid.UUID { return d.id }

// Text returns the document text.
func (d *Document) Text() string { return d.text }

// Len returns the text length in code points.
func (d *Document) Len() int { return d.length }

// Features returns the top-level feature map. Edits are logged as
// doc-feature records.
func (d *Document) Features() *features.Map { return d.features }

// SetChangeLog attaches sink as the change log; nil detaches it. Sets that
// already exist report to the new sink from now on.
func (d *Document) SetChangeLog(sink changelog.Sink) { d.log = sink }

// ChangeLog returns the attached change log, or nil.
func (d *Document) ChangeLog() changelog.Sink { return d.log }

// record forwards to whatever log is attached at call time.
func (d *Document) record(rec changelog.Record) error {
	if d.log == nil {
		return nil
	}
	return d.log.Record(rec)
}

// Set returns the annotation set with the given name, creating it on first
// use. Later calls return the same instance.
func (d *Document) Set(name string) *AnnotationSet {
	if s, ok := d.sets[name]; ok {
		return s
	}
	s := d.newSet(name)
	d.sets[name] = s
	return s
}

// Annotations returns the default set.
func (d *Document) Annotations() *AnnotationSet {
	return d.Set(DefaultSetName)
}

// NewSet creates a set and fails with ErrDuplicateName if name is taken.
func (d *Document) NewSet(name string) (*AnnotationSet, error) {
	if _, ok := d.sets[name]; ok {
		return nil, errors.NewDuplicateName("annotation set", name)
	}
	return d.Set(name), nil
}

func (d *Document) newSet(name string) *AnnotationSet {
	return NewAnnotationSet(name, d.length, changelog.SinkFunc(d.record))
}

// HasSet reports whether a set with the given name exists.
func (d *Document) HasSet(name string) bool {
	_, ok := d.sets[name]
	return ok
}

// SetNames returns the names of existing sets, sorted.
func (d *Document) SetNames() []string {
	names := make([]string, 0, len(d.sets))
	for name := range d.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveSet drops a set from the document. It is not a logged change: the
// annotations it held stay in the log, and replay recreates the set on
// first use. Use Clear on the set first when the removal must replay.
func (d *Document) RemoveSet(name string) error {
	s, ok := d.sets[name]
	if !ok {
		return errors.Wrapf(errors.ErrInvalidInput, "no annotation set %q", name)
	}
	s.sink = nil
	delete(d.sets, name)
	return nil
}

// Fingerprint returns the hex BLAKE3 digest of the text.
func (d *Document) Fingerprint() string {
	sum := blake3.Sum256([]byte(d.text))
	return hex.EncodeToString(sum[:])
}

// Mapper returns the code point / UTF-16 offset mapper for the text. It is
// built on first use.
func (d *Document) Mapper() *offsets.Mapper {
	d.mapperOnce.Do(func() { d.mapper = offsets.New(d.text) })
	return d.mapper
}

// SpanText returns the text covered by sp. Offsets are clamped to the text.
func (d *Document) SpanText(sp Spanner) string {
	s := sp.Span()
	start, end := max(s.Start, 0), min(s.End, d.length)
	if start >= end {
		return ""
	}
	return d.text[d.byteOffset(start):d.byteOffset(end)]
}

func (d *Document) byteOffset(cp int) int {
	d.bytesOnce.Do(func() {
		if d.length == len(d.text) {
			return
		}
		d.byteAt = make([]int, 0, d.length+1)
		for i := range d.text {
			d.byteAt = append(d.byteAt, i)
		}
		d.byteAt = append(d.byteAt, len(d.text))
	})
	if d.byteAt == nil {
		return cp
	}
	return d.byteAt[cp]
}

// docFeatureLogger turns top-level feature events into change records.
type docFeatureLogger struct {
	doc *Document
}

func (l docFeatureLogger) LogFeature(ev features.Event) error {
	var rec changelog.Record
	switch ev.Op {
	case features.OpSet:
		rec = changelog.Record{Command: changelog.DocFeatureSet, Feature: ev.Name, Value: features.DeepCopy(ev.Value)}
	case features.OpRemove:
		rec = changelog.Record{Command: changelog.DocFeatureRemove, Feature: ev.Name}
	case features.OpClear:
		rec = changelog.Record{Command: changelog.DocFeaturesClear}
	}
	return l.doc.record(rec)
}
