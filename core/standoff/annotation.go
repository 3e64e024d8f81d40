package standoff

import (
	"cmp"
	"fmt"

	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/features"
)

// Annotation is a typed span with an attribute map. Id, type and offsets
// never change after creation; only the features may be edited.
type Annotation struct {
	id       int
	typ      string
	start    int
	end      int
	features *features.Map

	// set is the owning set while the annotation is stored in it.
	set *AnnotationSet
}

// ID returns the id, unique within the owning set.
func (a *Annotation) ID() int { return a.id }

// Type returns the annotation type name.
func (a *Annotation) Type() string { return a.typ }

// Start returns the start offset in code points.
func (a *Annotation) Start() int { return a.start }

// End returns the end offset in code points.
func (a *Annotation) End() int { return a.end }

// Len returns End() - Start().
func (a *Annotation) Len() int { return a.end - a.start }

// Span returns the annotation's offsets.
func (a *Annotation) Span() Span { return Span{Start: a.start, End: a.end} }

// Features returns the attribute map. Edits are logged to the owning
// document's change log while the annotation belongs to a set.
func (a *Annotation) Features() *features.Map { return a.features }

// IsOverlapping reports whether a and o share an offset (see Span.Overlaps).
func (a *Annotation) IsOverlapping(o Spanner) bool { return a.Span().Overlaps(o) }

// IsWithin reports whether a lies inside o.
func (a *Annotation) IsWithin(o Spanner) bool { return a.Span().Within(o) }

// IsCovering reports whether a contains o.
func (a *Annotation) IsCovering(o Spanner) bool { return a.Span().Covers(o) }

// IsCoextensive reports whether a and o have the same offsets.
func (a *Annotation) IsCoextensive(o Spanner) bool { return a.Span().Coextensive(o) }

// IsBefore reports whether a ends at or before the start of o.
func (a *Annotation) IsBefore(o Spanner) bool { return a.Span().Before(o) }

// IsAfter reports whether a starts at or after the end of o.
func (a *Annotation) IsAfter(o Spanner) bool { return a.Span().After(o) }

func (a *Annotation) String() string {
	return fmt.Sprintf("Annotation(%d,%d,%s,id=%d,features=%s)", a.start, a.end, a.typ, a.id, a.features)
}

// Compare orders annotations canonically by (start, end, id).
func Compare(a, b *Annotation) int {
	if c := cmp.Compare(a.start, b.start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.end, b.end); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// featureLogger turns feature events of an annotation into change records.
type featureLogger struct {
	ann *Annotation
}

func (l featureLogger) LogFeature(ev features.Event) error {
	set := l.ann.set
	if set == nil {
		return nil
	}
	rec := changelog.Record{Set: set.name, ID: l.ann.id}
	switch ev.Op {
	case features.OpSet:
		rec.Command = changelog.AnnFeatureSet
		rec.Feature = ev.Name
		rec.Value = features.DeepCopy(ev.Value)
	case features.OpRemove:
		rec.Command = changelog.AnnFeatureRemove
		rec.Feature = ev.Name
	case features.OpClear:
		rec.Command = changelog.AnnFeaturesClear
	}
	return set.record(rec)
}
