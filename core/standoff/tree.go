package standoff

import (
	"cmp"
	"math"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// spanKey orders annotations inside the offset trees. Offsets are immutable,
// so a key never goes stale while its annotation is stored.
type spanKey struct {
	start, end, id int
}

func keyOf(a *Annotation) spanKey {
	return spanKey{start: a.start, end: a.end, id: a.id}
}

// byStartComparator orders keys canonically by (start, end, id).
func byStartComparator(a, b interface{}) int {
	x, y := a.(spanKey), b.(spanKey)
	if c := cmp.Compare(x.start, y.start); c != 0 {
		return c
	}
	if c := cmp.Compare(x.end, y.end); c != 0 {
		return c
	}
	return cmp.Compare(x.id, y.id)
}

// byEndComparator orders keys by (end, start, id).
func byEndComparator(a, b interface{}) int {
	x, y := a.(spanKey), b.(spanKey)
	if c := cmp.Compare(x.end, y.end); c != 0 {
		return c
	}
	if c := cmp.Compare(x.start, y.start); c != 0 {
		return c
	}
	return cmp.Compare(x.id, y.id)
}

func newStartTree() *redblacktree.Tree {
	return redblacktree.NewWith(byStartComparator)
}

func newEndTree() *redblacktree.Tree {
	return redblacktree.NewWith(byEndComparator)
}

// lengthCounts is a multiset of span lengths; its maximum bounds how far
// before a query window an overlapping annotation can start.
type lengthCounts struct {
	tree *redblacktree.Tree
}

func newLengthCounts() *lengthCounts {
	return &lengthCounts{tree: redblacktree.NewWith(utils.IntComparator)}
}

func (l *lengthCounts) add(n int) {
	if v, ok := l.tree.Get(n); ok {
		l.tree.Put(n, v.(int)+1)
		return
	}
	l.tree.Put(n, 1)
}

func (l *lengthCounts) remove(n int) {
	v, ok := l.tree.Get(n)
	if !ok {
		return
	}
	if c := v.(int); c > 1 {
		l.tree.Put(n, c-1)
		return
	}
	l.tree.Remove(n)
}

func (l *lengthCounts) max() int {
	node := l.tree.Right()
	if node == nil {
		return 0
	}
	return node.Key.(int)
}

// firstFrom returns the first node whose start is >= lo.
func firstFrom(tree *redblacktree.Tree, lo int) *redblacktree.Node {
	if lo == math.MinInt {
		return tree.Left()
	}
	node, _ := tree.Ceiling(spanKey{start: lo, end: math.MinInt, id: math.MinInt})
	return node
}

// successor returns the in-order successor of n, or nil.
func successor(n *redblacktree.Node) *redblacktree.Node {
	if n.Right != nil {
		n = n.Right
		for n.Left != nil {
			n = n.Left
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Right {
		n, p = p, p.Parent
	}
	return p
}

// predecessor returns the in-order predecessor of n, or nil.
func predecessor(n *redblacktree.Node) *redblacktree.Node {
	if n.Left != nil {
		n = n.Left
		for n.Right != nil {
			n = n.Right
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Left {
		n, p = p, p.Parent
	}
	return p
}
