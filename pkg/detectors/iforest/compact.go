package iforest

import (
	"fmt"

	"github.com/hed1ad/anomalyscore/pkg/fields"
	"github.com/hed1ad/anomalyscore/pkg/resource"
)

// node is a compacted tree node. Its predicates and children are the
// half-open ranges [PredStart, PredEnd) of forest.Predicates and
// [ChildStart, ChildEnd) of forest.Children.
type node struct {
	Weight     float64
	PredStart  int32
	PredEnd    int32
	ChildStart int32
	ChildEnd   int32
}

// forest is the arena holding every compacted tree. Roots holds, per tree,
// the index of a synthetic wrapper node whose single child is the true root.
type forest struct {
	Nodes      []node
	Predicates []predicate
	Children   []int32
	Roots      []int32

	matchers []*termMatcher
}

// compactForest converts the source trees into a single arena.
func compactForest(trees []resource.Tree) (*forest, error) {
	f := &forest{}
	for i, tree := range trees {
		if tree.Root == nil {
			return nil, fmt.Errorf("%w: tree %d has no root", ErrForestUnavailable, i)
		}
		root, err := f.compact(&resource.Node{
			Predicates: resource.Predicates{Always: true},
			Children:   []*resource.Node{tree.Root},
		})
		if err != nil {
			return nil, fmt.Errorf("compacting tree %d: %w", i, err)
		}
		f.Roots = append(f.Roots, root)
	}
	return f, nil
}

// compact appends n and its subtree in pre-order and returns the index of n.
// Children keep their source order.
func (f *forest) compact(n *resource.Node) (int32, error) {
	idx := int32(len(f.Nodes))
	f.Nodes = append(f.Nodes, node{Weight: n.NodeWeight()})

	predStart := int32(len(f.Predicates))
	if !n.Predicates.Always {
		for _, src := range n.Predicates.List {
			p, err := compactPredicate(src)
			if err != nil {
				return 0, err
			}
			f.Predicates = append(f.Predicates, p)
		}
	}
	predEnd := int32(len(f.Predicates))

	children := make([]int32, len(n.Children))
	for i, child := range n.Children {
		if child == nil {
			return 0, fmt.Errorf("%w: nil child", ErrInvalidPredicate)
		}
		c, err := f.compact(child)
		if err != nil {
			return 0, err
		}
		children[i] = c
	}
	childStart := int32(len(f.Children))
	f.Children = append(f.Children, children...)

	f.Nodes[idx].PredStart = predStart
	f.Nodes[idx].PredEnd = predEnd
	f.Nodes[idx].ChildStart = childStart
	f.Nodes[idx].ChildEnd = int32(len(f.Children))
	return idx, nil
}

func compactPredicate(src resource.Predicate) (predicate, error) {
	op, missing, err := ParseOperator(src.Op)
	if err != nil {
		return predicate{}, err
	}
	value, err := toOperand(src.Value)
	if err != nil {
		return predicate{}, err
	}
	if op == OpIn && value.Kind != kindList {
		return predicate{}, fmt.Errorf("%w: in operator on field %q needs a list", ErrInvalidPredicate, src.Field)
	}
	if op == OpIn && value.hasNone() {
		missing = true
	}
	p := predicate{
		Op:      op,
		Field:   src.Field,
		Value:   value,
		Missing: missing,
	}
	if src.Term != nil {
		p.Term = *src.Term
		p.HasTerm = true
	}
	return p, nil
}

// prepare compiles the term matchers of the forest against the schema.
func (f *forest) prepare(fs *fields.Fields) error {
	f.matchers = make([]*termMatcher, len(f.Predicates))
	for i := range f.Predicates {
		p := &f.Predicates[i]
		if !p.HasTerm {
			continue
		}
		m, err := newTermMatcher(p, fs)
		if err != nil {
			return err
		}
		f.matchers[i] = m
	}
	return nil
}

// validate checks the arena ranges of a decoded forest. Children must come
// after their parent so that every walk terminates.
func (f *forest) validate() error {
	if len(f.Roots) == 0 {
		return ErrForestUnavailable
	}
	nodes := int32(len(f.Nodes))
	for _, r := range f.Roots {
		if r < 0 || r >= nodes {
			return fmt.Errorf("%w: root %d out of range", ErrCorruptState, r)
		}
	}
	for i, n := range f.Nodes {
		if n.PredStart < 0 || n.PredStart > n.PredEnd || n.PredEnd > int32(len(f.Predicates)) {
			return fmt.Errorf("%w: node %d predicates out of range", ErrCorruptState, i)
		}
		if n.ChildStart < 0 || n.ChildStart > n.ChildEnd || n.ChildEnd > int32(len(f.Children)) {
			return fmt.Errorf("%w: node %d children out of range", ErrCorruptState, i)
		}
		for _, c := range f.Children[n.ChildStart:n.ChildEnd] {
			if c <= int32(i) || c >= nodes {
				return fmt.Errorf("%w: node %d has invalid child %d", ErrCorruptState, i, c)
			}
		}
	}
	return nil
}
