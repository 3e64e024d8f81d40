package standoff

import (
	"iter"
	"slices"
	"sort"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/features"
)

// AnnotationSet is a named, indexed collection of annotations over one text.
//
// Annotations are stored once, keyed by id. Ordered trees keyed by offsets
// and a per-type index are updated on every add and remove, so iteration is
// always in canonical (start, end, id) order and positional queries only
// visit the offset window that can contain matches.
//
// An AnnotationSet is not safe for concurrent mutation. Concurrent queries
// are safe while no goroutine mutates the set.
type AnnotationSet struct {
	name   string
	length int
	sink   changelog.Sink
	nextID int

	byID    map[int]*Annotation
	byStart *redblacktree.Tree
	byEnd   *redblacktree.Tree
	byType  map[string]*redblacktree.Tree
	lengths *lengthCounts
}

// NewAnnotationSet returns an empty set for a text of length code points.
// Structural changes are reported to sink before they are applied; sink may
// be nil.
func NewAnnotationSet(name string, length int, sink changelog.Sink) *AnnotationSet {
	return &AnnotationSet{
		name:    name,
		length:  length,
		sink:    sink,
		byID:    make(map[int]*Annotation),
		byStart: newStartTree(),
		byEnd:   newEndTree(),
		byType:  make(map[string]*redblacktree.Tree),
		lengths: newLengthCounts(),
	}
}

// Name returns the set name.
func (s *AnnotationSet) Name() string { return s.name }

// Size returns the number of annotations.
func (s *AnnotationSet) Size() int { return len(s.byID) }

// Len is an alias for Size.
func (s *AnnotationSet) Len() int { return len(s.byID) }

// IsEmpty reports whether the set holds no annotations.
func (s *AnnotationSet) IsEmpty() bool { return len(s.byID) == 0 }

// NextID returns the id the next Add will assign.
func (s *AnnotationSet) NextID() int { return s.nextID }

// SetNextID moves the id counter forward to id. Loaders use it to restore a
// counter that ran past the highest stored id. Moving it backwards fails
// with ErrInvalidInput.
func (s *AnnotationSet) SetNextID(id int) error {
	if id < s.nextID {
		return errors.Wrapf(errors.ErrInvalidInput, "next id %d is below %d", id, s.nextID)
	}
	s.nextID = id
	return nil
}

// TextLen returns the length, in code points, that offsets are checked against.
func (s *AnnotationSet) TextLen() int { return s.length }

// Add stores a new annotation and returns it. Offsets must satisfy
// 0 <= start <= end <= text length; feats may be nil.
func (s *AnnotationSet) Add(start, end int, typ string, feats map[string]any) (*Annotation, error) {
	return s.add(s.nextID, start, end, typ, feats)
}

// AddWithID stores an annotation under an explicit id, advancing the id
// counter past it. Loaders and replay use it to reproduce ids exactly, so
// ids must arrive in increasing order: an id below NextID has been handed
// out before and fails with ErrDuplicateID, even if it was removed since.
func (s *AnnotationSet) AddWithID(id, start, end int, typ string, feats map[string]any) (*Annotation, error) {
	if id < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "negative annotation id %d", id)
	}
	if id < s.nextID {
		return nil, errors.NewDuplicateID(s.name, id)
	}
	return s.add(id, start, end, typ, feats)
}

func (s *AnnotationSet) add(id, start, end int, typ string, feats map[string]any) (*Annotation, error) {
	if start < 0 || end < start || end > s.length {
		return nil, errors.NewOffset(start, end, s.length)
	}
	fm, err := features.FromMap(feats)
	if err != nil {
		return nil, errors.Wrapf(err, "add %s", typ)
	}
	err = s.record(changelog.Record{
		Command:  changelog.AnnotationAdd,
		Set:      s.name,
		ID:       id,
		Start:    start,
		End:      end,
		Type:     typ,
		Features: fm.ToPlainMap(true, true),
	})
	if err != nil {
		return nil, err
	}

	ann := &Annotation{id: id, typ: typ, start: start, end: end, features: fm}
	s.insert(ann)
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return ann, nil
}

func (s *AnnotationSet) insert(ann *Annotation) {
	ann.set = s
	ann.features.SetLogger(featureLogger{ann: ann})

	key := keyOf(ann)
	s.byID[ann.id] = ann
	s.byStart.Put(key, nil)
	s.byEnd.Put(key, nil)
	typed, ok := s.byType[ann.typ]
	if !ok {
		typed = newStartTree()
		s.byType[ann.typ] = typed
	}
	typed.Put(key, nil)
	s.lengths.add(ann.Len())
}

func (s *AnnotationSet) delete(ann *Annotation) {
	key := keyOf(ann)
	delete(s.byID, ann.id)
	s.byStart.Remove(key)
	s.byEnd.Remove(key)
	if typed, ok := s.byType[ann.typ]; ok {
		typed.Remove(key)
		if typed.Empty() {
			delete(s.byType, ann.typ)
		}
	}
	s.lengths.remove(ann.Len())

	ann.set = nil
	ann.features.SetLogger(nil)
}

// Remove deletes the annotation with the given id. Its id is never reused.
func (s *AnnotationSet) Remove(id int) error {
	ann, ok := s.byID[id]
	if !ok {
		return errors.NewUnknownID(s.name, id)
	}
	err := s.record(changelog.Record{Command: changelog.AnnotationRemove, Set: s.name, ID: id})
	if err != nil {
		return err
	}
	s.delete(ann)
	return nil
}

// RemoveAnnotation deletes ann. It fails with ErrUnknownID unless ann itself
// is stored in s.
func (s *AnnotationSet) RemoveAnnotation(ann *Annotation) error {
	if stored, ok := s.byID[ann.id]; !ok || stored != ann {
		return errors.NewUnknownID(s.name, ann.id)
	}
	return s.Remove(ann.id)
}

// Get returns the annotation with the given id.
func (s *AnnotationSet) Get(id int) (*Annotation, error) {
	ann, ok := s.byID[id]
	if !ok {
		return nil, errors.NewUnknownID(s.name, id)
	}
	return ann, nil
}

// Contains reports whether an annotation with the given id is stored.
func (s *AnnotationSet) Contains(id int) bool {
	_, ok := s.byID[id]
	return ok
}

// Clear removes every annotation. The id counter is kept.
func (s *AnnotationSet) Clear() error {
	if err := s.record(changelog.Record{Command: changelog.AnnotationsClear, Set: s.name}); err != nil {
		return err
	}
	for _, ann := range s.byID {
		ann.set = nil
		ann.features.SetLogger(nil)
	}
	s.byID = make(map[int]*Annotation)
	s.byStart = newStartTree()
	s.byEnd = newEndTree()
	s.byType = make(map[string]*redblacktree.Tree)
	s.lengths = newLengthCounts()
	return nil
}

// Types returns the type names present, sorted.
func (s *AnnotationSet) Types() []string {
	names := make([]string, 0, len(s.byType))
	for name := range s.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Copy returns a detached set with the same annotations and ids. The copy
// has no sink and its id counter continues from s. A deep copy also clones
// nested feature values.
func (s *AnnotationSet) Copy(deep bool) *AnnotationSet {
	out := NewAnnotationSet(s.name, s.length, nil)
	for node := s.byStart.Left(); node != nil; node = successor(node) {
		src := s.byID[node.Key.(spanKey).id]
		out.insert(&Annotation{
			id:       src.id,
			typ:      src.typ,
			start:    src.start,
			end:      src.end,
			features: src.features.Copy(deep),
		})
	}
	out.nextID = s.nextID
	return out
}

func (s *AnnotationSet) record(rec changelog.Record) error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Record(rec)
}

// View returns a view over the whole set.
func (s *AnnotationSet) View() *View {
	return &View{set: s}
}

// All iterates over the annotations in canonical order. Each call starts a
// new pass. The set must not be mutated during iteration.
func (s *AnnotationSet) All() iter.Seq[*Annotation] {
	return s.View().All()
}

// Annotations returns the annotations in canonical order.
func (s *AnnotationSet) Annotations() []*Annotation {
	return s.View().Annotations()
}

// IDs returns the ids in canonical order.
func (s *AnnotationSet) IDs() []int {
	return s.View().IDs()
}

// WithType restricts to annotations whose type is one of names.
func (s *AnnotationSet) WithType(names ...string) *View {
	return s.View().WithType(names...)
}

// Overlapping returns annotations sharing at least one offset with sp.
func (s *AnnotationSet) Overlapping(sp Spanner, opts ...QueryOption) *View {
	return s.View().Overlapping(sp, opts...)
}

// Within returns annotations lying inside sp.
func (s *AnnotationSet) Within(sp Spanner, opts ...QueryOption) *View {
	return s.View().Within(sp, opts...)
}

// Covering returns annotations containing sp.
func (s *AnnotationSet) Covering(sp Spanner, opts ...QueryOption) *View {
	return s.View().Covering(sp, opts...)
}

// Coextensive returns annotations with exactly the offsets of sp.
func (s *AnnotationSet) Coextensive(sp Spanner, opts ...QueryOption) *View {
	return s.View().Coextensive(sp, opts...)
}

// At returns annotations that contain offset.
func (s *AnnotationSet) At(offset int) *View {
	return s.View().At(offset)
}

// StartingAt returns annotations that start at offset.
func (s *AnnotationSet) StartingAt(offset int) *View {
	return s.View().StartingAt(offset)
}

// Before returns annotations that end at or before the start of sp.
func (s *AnnotationSet) Before(sp Spanner, opts ...QueryOption) *View {
	return s.View().Before(sp, opts...)
}

// After returns annotations that start at or after the end of sp.
func (s *AnnotationSet) After(sp Spanner, opts ...QueryOption) *View {
	return s.View().After(sp, opts...)
}

// Firsts returns the annotations with the smallest start offset.
func (s *AnnotationSet) Firsts() []*Annotation {
	return s.View().Firsts()
}

// Lasts returns the annotations with the largest end offset, in canonical
// order.
func (s *AnnotationSet) Lasts() []*Annotation {
	node := s.byEnd.Right()
	if node == nil {
		return nil
	}
	maxEnd := node.Key.(spanKey).end
	var out []*Annotation
	for ; node != nil && node.Key.(spanKey).end == maxEnd; node = predecessor(node) {
		out = append(out, s.byID[node.Key.(spanKey).id])
	}
	slices.SortFunc(out, Compare)
	return out
}

// MaxEnd returns the largest end offset, or -1 for an empty set.
func (s *AnnotationSet) MaxEnd() int {
	node := s.byEnd.Right()
	if node == nil {
		return -1
	}
	return node.Key.(spanKey).end
}
