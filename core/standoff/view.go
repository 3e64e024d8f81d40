package standoff

import (
	"iter"
	"math"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// View is a read-only, lazily evaluated projection of an AnnotationSet.
//
// A view holds no annotations of its own: every pass walks the set's ordered
// trees, so it reflects later mutations of the set. Query methods return a
// new view that narrows the receiver, which makes queries chainable:
//
//	set.WithType("Token").Within(sentence).Overlapping(standoff.Range(3, 6))
//
// Results are always in canonical (start, end, id) order. The set must not be
// mutated while a pass is in progress.
type View struct {
	set   *AnnotationSet
	types []string // nil means every type
	conds []condition
}

// condition narrows a view. window bounds the start offsets that can match,
// given the longest annotation currently stored; keep decides membership.
type condition struct {
	window func(maxLen int) (lo, hi int)
	keep   func(a *Annotation) bool
}

// QueryOption tunes a positional query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	includeSelf bool
}

// IncludeSelf keeps the annotation a query was made relative to in its own
// result. By default it is excluded.
func IncludeSelf() QueryOption {
	return func(o *queryOptions) { o.includeSelf = true }
}

func (v *View) narrow(c condition) *View {
	conds := make([]condition, len(v.conds), len(v.conds)+1)
	copy(conds, v.conds)
	return &View{set: v.set, types: v.types, conds: append(conds, c)}
}

// selfFilter returns a predicate that rejects sp when it is an annotation
// and IncludeSelf was not given.
func selfFilter(sp Spanner, opts []QueryOption) func(*Annotation) bool {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	self, ok := sp.(*Annotation)
	if !ok || o.includeSelf {
		return func(*Annotation) bool { return true }
	}
	return func(a *Annotation) bool { return a != self }
}

// Set returns the underlying set.
func (v *View) Set() *AnnotationSet { return v.set }

// WithType restricts the view to the given types. Applied to a view that is
// already restricted, the result holds the intersection.
func (v *View) WithType(names ...string) *View {
	types := names
	if v.types != nil {
		types = nil
		for _, n := range names {
			for _, t := range v.types {
				if n == t {
					types = append(types, n)
					break
				}
			}
		}
		if types == nil {
			types = []string{}
		}
	} else if types == nil {
		types = []string{}
	}
	return &View{set: v.set, types: types, conds: v.conds}
}

// Overlapping narrows to annotations sharing at least one offset with sp.
// Zero-width annotations and zero-width query spans follow the point rule of
// Span.Overlaps.
func (v *View) Overlapping(sp Spanner, opts ...QueryOption) *View {
	q := sp.Span()
	notSelf := selfFilter(sp, opts)
	return v.narrow(condition{
		window: func(maxLen int) (int, int) { return q.Start - maxLen, q.End },
		keep:   func(a *Annotation) bool { return a.Span().Overlaps(q) && notSelf(a) },
	})
}

// Within narrows to annotations lying inside sp.
func (v *View) Within(sp Spanner, opts ...QueryOption) *View {
	q := sp.Span()
	notSelf := selfFilter(sp, opts)
	return v.narrow(condition{
		window: func(int) (int, int) { return q.Start, q.End },
		keep:   func(a *Annotation) bool { return a.end <= q.End && notSelf(a) },
	})
}

// Covering narrows to annotations containing sp.
func (v *View) Covering(sp Spanner, opts ...QueryOption) *View {
	q := sp.Span()
	notSelf := selfFilter(sp, opts)
	return v.narrow(condition{
		window: func(maxLen int) (int, int) { return q.End - maxLen, q.Start },
		keep:   func(a *Annotation) bool { return a.end >= q.End && notSelf(a) },
	})
}

// Coextensive narrows to annotations with exactly the offsets of sp.
func (v *View) Coextensive(sp Spanner, opts ...QueryOption) *View {
	q := sp.Span()
	notSelf := selfFilter(sp, opts)
	return v.narrow(condition{
		window: func(int) (int, int) { return q.Start, q.Start },
		keep:   func(a *Annotation) bool { return a.end == q.End && notSelf(a) },
	})
}

// At narrows to annotations containing offset: start <= offset < end, or a
// zero-width annotation sitting exactly at offset.
func (v *View) At(offset int) *View {
	return v.narrow(condition{
		window: func(maxLen int) (int, int) { return offset - maxLen, offset },
		keep:   func(a *Annotation) bool { return a.Span().ContainsOffset(offset) },
	})
}

// StartingAt narrows to annotations starting at offset.
func (v *View) StartingAt(offset int) *View {
	return v.narrow(condition{
		window: func(int) (int, int) { return offset, offset },
		keep:   func(*Annotation) bool { return true },
	})
}

// Before narrows to annotations ending at or before the start of sp.
func (v *View) Before(sp Spanner, opts ...QueryOption) *View {
	q := sp.Span()
	notSelf := selfFilter(sp, opts)
	return v.narrow(condition{
		window: func(int) (int, int) { return math.MinInt, q.Start },
		keep:   func(a *Annotation) bool { return a.end <= q.Start && notSelf(a) },
	})
}

// After narrows to annotations starting at or after the end of sp.
func (v *View) After(sp Spanner, opts ...QueryOption) *View {
	q := sp.Span()
	notSelf := selfFilter(sp, opts)
	return v.narrow(condition{
		window: func(int) (int, int) { return q.End, math.MaxInt },
		keep:   notSelf,
	})
}

// window intersects the start bounds of every condition.
func (v *View) window() (lo, hi int) {
	lo, hi = math.MinInt, math.MaxInt
	maxLen := v.set.lengths.max()
	for _, c := range v.conds {
		l, h := c.window(maxLen)
		lo, hi = max(lo, l), min(hi, h)
	}
	return lo, hi
}

func (v *View) keep(a *Annotation) bool {
	for _, c := range v.conds {
		if !c.keep(a) {
			return false
		}
	}
	return true
}

// trees returns the ordered trees a pass walks.
func (v *View) trees() []*redblacktree.Tree {
	if v.types == nil {
		return []*redblacktree.Tree{v.set.byStart}
	}
	var out []*redblacktree.Tree
	seen := make(map[string]bool, len(v.types))
	for _, name := range v.types {
		if seen[name] {
			continue
		}
		seen[name] = true
		if tree, ok := v.set.byType[name]; ok {
			out = append(out, tree)
		}
	}
	return out
}

// All iterates over the view in canonical order. Each call starts a new pass.
func (v *View) All() iter.Seq[*Annotation] {
	return func(yield func(*Annotation) bool) {
		lo, hi := v.window()
		if lo > hi {
			return
		}
		trees := v.trees()
		cursors := make([]*redblacktree.Node, 0, len(trees))
		for _, tree := range trees {
			if node := firstFrom(tree, lo); node != nil {
				cursors = append(cursors, node)
			}
		}
		for {
			// Pick the smallest key among the cursors; with one tree this is
			// a plain in-order walk.
			best := -1
			for i, node := range cursors {
				if node == nil || node.Key.(spanKey).start > hi {
					continue
				}
				if best < 0 || byStartComparator(node.Key, cursors[best].Key) < 0 {
					best = i
				}
			}
			if best < 0 {
				return
			}
			key := cursors[best].Key.(spanKey)
			cursors[best] = successor(cursors[best])
			ann := v.set.byID[key.id]
			if v.keep(ann) && !yield(ann) {
				return
			}
		}
	}
}

// Annotations returns the view's annotations in canonical order.
func (v *View) Annotations() []*Annotation {
	var out []*Annotation
	for a := range v.All() {
		out = append(out, a)
	}
	return out
}

// IDs returns the ids of the view's annotations in canonical order.
func (v *View) IDs() []int {
	var out []int
	for a := range v.All() {
		out = append(out, a.id)
	}
	return out
}

// Len counts the view's annotations.
func (v *View) Len() int {
	n := 0
	for range v.All() {
		n++
	}
	return n
}

// IsEmpty reports whether the view has no annotations.
func (v *View) IsEmpty() bool {
	for range v.All() {
		return false
	}
	return true
}

// First returns the first annotation in canonical order, or nil.
func (v *View) First() *Annotation {
	for a := range v.All() {
		return a
	}
	return nil
}

// Last returns the last annotation in canonical order, or nil.
func (v *View) Last() *Annotation {
	var last *Annotation
	for a := range v.All() {
		last = a
	}
	return last
}

// Firsts returns the annotations with the smallest start offset.
func (v *View) Firsts() []*Annotation {
	var out []*Annotation
	for a := range v.All() {
		if len(out) > 0 && a.start != out[0].start {
			break
		}
		out = append(out, a)
	}
	return out
}

// Lasts returns the annotations with the largest end offset, in canonical
// order.
func (v *View) Lasts() []*Annotation {
	var out []*Annotation
	maxEnd := math.MinInt
	for a := range v.All() {
		switch {
		case a.end > maxEnd:
			maxEnd = a.end
			out = append(out[:0], a)
		case a.end == maxEnd:
			out = append(out, a)
		}
	}
	return out
}
