package standoff

import "fmt"

// Span is a half-open range [Start, End) of code point offsets. A span with
// Start == End is a point.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Spanner is anything that occupies a span: a Span itself or an Annotation.
type Spanner interface {
	Span() Span
}

// Range returns the span [start, end).
func Range(start, end int) Span {
	return Span{Start: start, End: end}
}

// Span returns s, so a Span satisfies Spanner.
func (s Span) Span() Span {
	return s
}

// Len returns the number of code points covered.
func (s Span) Len() int {
	return s.End - s.Start
}

// IsPoint reports whether the span is zero-width.
func (s Span) IsPoint() bool {
	return s.Start == s.End
}

// Overlaps reports whether the spans share at least one offset. When either
// side is a point p, it overlaps [start, end] iff start <= p <= end, both
// boundaries included.
func (s Span) Overlaps(o Spanner) bool {
	other := o.Span()
	switch {
	case s.IsPoint():
		return other.Start <= s.Start && s.Start <= other.End
	case other.IsPoint():
		return s.Start <= other.Start && other.Start <= s.End
	}
	return s.Start < other.End && other.Start < s.End
}

// Within reports whether s lies inside o.
func (s Span) Within(o Spanner) bool {
	other := o.Span()
	return other.Start <= s.Start && s.End <= other.End
}

// Covers reports whether s contains o.
func (s Span) Covers(o Spanner) bool {
	other := o.Span()
	return s.Start <= other.Start && other.End <= s.End
}

// Coextensive reports whether both spans have the same offsets.
func (s Span) Coextensive(o Spanner) bool {
	return s == o.Span()
}

// Before reports whether s ends at or before the start of o.
func (s Span) Before(o Spanner) bool {
	return s.End <= o.Span().Start
}

// After reports whether s starts at or after the end of o.
func (s Span) After(o Spanner) bool {
	return s.Start >= o.Span().End
}

// ContainsOffset reports whether offset falls inside s. A point contains only
// its own offset.
func (s Span) ContainsOffset(offset int) bool {
	if s.IsPoint() {
		return offset == s.Start
	}
	return s.Start <= offset && offset < s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}
