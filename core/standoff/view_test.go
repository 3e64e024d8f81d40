package standoff

import (
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"
)

// randomSet fills a set with n random annotations over a text of length,
// removing roughly one in five along the way.
func randomSet(t *testing.T, rng *rand.Rand, length, n int) *AnnotationSet {
	t.Helper()
	types := []string{"A", "B", "C"}
	s := NewAnnotationSet("", length, nil)
	for i := 0; i < n; i++ {
		start := rng.IntN(length + 1)
		end := min(start+rng.IntN(8), length)
		if rng.IntN(6) == 0 {
			end = start
		}
		if _, err := s.Add(start, end, types[rng.IntN(len(types))], nil); err != nil {
			t.Fatal(err)
		}
		if rng.IntN(5) == 0 && s.Size() > 0 {
			all := s.IDs()
			if err := s.Remove(all[rng.IntN(len(all))]); err != nil {
				t.Fatal(err)
			}
		}
	}
	return s
}

// scan filters every annotation by keep and sorts the result canonically.
func scan(s *AnnotationSet, types []string, keep func(*Annotation) bool) []int {
	var out []*Annotation
	for _, a := range s.byID {
		if types != nil && !slices.Contains(types, a.Type()) {
			continue
		}
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, Compare)
	return ids(out)
}

func TestQueriesMatchScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	const length = 60

	for round := 0; round < 20; round++ {
		s := randomSet(t, rng, length, 80)
		for q := 0; q < 30; q++ {
			start := rng.IntN(length + 1)
			end := min(start+rng.IntN(12), length)
			sp := Range(start, end)
			off := rng.IntN(length + 1)

			tests := []struct {
				name string
				view *View
				keep func(*Annotation) bool
			}{
				{"overlapping", s.Overlapping(sp), func(a *Annotation) bool { return a.Span().Overlaps(sp) }},
				{"within", s.Within(sp), func(a *Annotation) bool { return a.Span().Within(sp) }},
				{"covering", s.Covering(sp), func(a *Annotation) bool { return a.Span().Covers(sp) }},
				{"coextensive", s.Coextensive(sp), func(a *Annotation) bool { return a.Span() == sp }},
				{"before", s.Before(sp), func(a *Annotation) bool { return a.End() <= sp.Start }},
				{"after", s.After(sp), func(a *Annotation) bool { return a.Start() >= sp.End }},
				{"at", s.At(off), func(a *Annotation) bool { return a.Span().ContainsOffset(off) }},
				{"starting at", s.StartingAt(off), func(a *Annotation) bool { return a.Start() == off }},
			}
			for _, tt := range tests {
				got, want := tt.view.IDs(), scan(s, nil, tt.keep)
				if !slices.Equal(got, want) {
					t.Fatalf("round %d: %s(%v / %d) = %v, want %v", round, tt.name, sp, off, got, want)
				}
			}

			typed := s.WithType("A", "C").Overlapping(sp).After(Range(0, off))
			want := scan(s, []string{"A", "C"}, func(a *Annotation) bool {
				return a.Span().Overlaps(sp) && a.Start() >= off
			})
			if got := typed.IDs(); !slices.Equal(got, want) {
				t.Fatalf("round %d: chained query = %v, want %v", round, got, want)
			}
		}
	}
}

func TestQueryContainment(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	s := randomSet(t, rng, 40, 60)
	all := s.IDs()
	for start := 0; start <= 40; start += 3 {
		for end := start; end <= 40; end += 4 {
			sp := Range(start, end)
			within, overlapping := s.Within(sp).IDs(), s.Overlapping(sp).IDs()
			if !subset(within, overlapping) {
				t.Errorf("Within(%v) = %v not a subset of Overlapping = %v", sp, within, overlapping)
			}
			if !subset(overlapping, all) {
				t.Errorf("Overlapping(%v) = %v not a subset of the set", sp, overlapping)
			}
		}
	}
}

func subset(a, b []int) bool {
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	return true
}

func TestOffsetBoundsHold(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		s := NewAnnotationSet("", 15, nil)
		start, end := rng.IntN(20)-2, rng.IntN(20)-2
		_, err := s.Add(start, end, "T", nil)
		valid := 0 <= start && start <= end && end <= 15
		if (err == nil) != valid {
			t.Errorf("Add(%d, %d) error = %v, valid = %v", start, end, err, valid)
		}
		for a := range s.All() {
			if a.Start() < 0 || a.Start() > a.End() || a.End() > 15 {
				t.Errorf("stored annotation %v violates bounds", a)
			}
		}
	}
}

func TestIDsStrictlyIncrease(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	s := NewAnnotationSet("", 10, nil)
	last := -1
	for i := 0; i < 100; i++ {
		ann := mustAdd(t, s, rng.IntN(5), 5+rng.IntN(6), "T")
		if ann.ID() <= last {
			t.Fatalf("id %d after %d", ann.ID(), last)
		}
		last = ann.ID()
		if rng.IntN(2) == 0 {
			if err := s.Remove(ann.ID()); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestViewReflectsMutations(t *testing.T) {
	s := NewAnnotationSet("", 20, nil)
	mustAdd(t, s, 0, 5, "Token")
	v := s.WithType("Token").Overlapping(Range(2, 10))
	if v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", v.Len())
	}
	// Longer annotations widen the scan window of existing views.
	long := mustAdd(t, s, 0, 20, "Token")
	mustAdd(t, s, 3, 4, "Sentence")
	if v.Len() != 2 {
		t.Errorf("Len() after add = %d, want 2", v.Len())
	}
	if err := s.Remove(long.ID()); err != nil {
		t.Fatal(err)
	}
	if got := v.IDs(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("IDs() after remove = %v, want [0]", got)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if !v.IsEmpty() {
		t.Error("view not empty after Clear")
	}
	if v.Set() != s {
		t.Error("Set() does not return the owning set")
	}
}

func TestViewFirstLast(t *testing.T) {
	s := NewAnnotationSet("", 20, nil)
	v := s.Within(Range(0, 10))
	if v.First() != nil || v.Last() != nil {
		t.Error("First/Last of an empty view should be nil")
	}
	mustAdd(t, s, 4, 6, "T")
	mustAdd(t, s, 1, 2, "T")
	mustAdd(t, s, 8, 12, "T")
	if v.First().ID() != 1 || v.Last().ID() != 0 {
		t.Errorf("First/Last = %d/%d, want 1/0", v.First().ID(), v.Last().ID())
	}
	if got := ids(v.Annotations()); !reflect.DeepEqual(got, []int{1, 0}) {
		t.Errorf("Annotations() = %v, want [1 0]", got)
	}
}

func TestChainedRelativeQueries(t *testing.T) {
	s := NewAnnotationSet("", 30, nil)
	sentence := mustAdd(t, s, 0, 15, "Sentence")
	words := [][2]int{{0, 3}, {4, 9}, {10, 14}, {16, 20}}
	for _, w := range words {
		mustAdd(t, s, w[0], w[1], "Token")
	}
	second, _ := s.Get(2)

	tests := []struct {
		name string
		view *View
		want []int
	}{
		{"tokens in sentence", s.WithType("Token").Within(sentence), []int{1, 2, 3}},
		{"before second", s.WithType("Token").Within(sentence).Before(second), []int{1}},
		{"after second", s.WithType("Token").After(second), []int{3, 4}},
		{"after second in sentence", s.WithType("Token").After(second).Within(sentence), []int{3}},
		{"covering second", s.Covering(second), []int{0}},
		{"at 5", s.At(5), []int{0, 2}},
		{"starting at 0", s.StartingAt(0), []int{1, 0}},
	}
	for _, tt := range tests {
		if got := tt.view.IDs(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func BenchmarkOverlapping(b *testing.B) {
	s := NewAnnotationSet("", 1_000_000, nil)
	for i := 0; i < 100_000; i++ {
		start := i * 10
		if _, err := s.Add(start, start+5, "Token", nil); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := (i * 7919) % 999_000
		if n := s.Overlapping(Range(o, o+50)).Len(); n == 0 {
			b.Fatalf("no overlap at %d", o)
		}
	}
}
