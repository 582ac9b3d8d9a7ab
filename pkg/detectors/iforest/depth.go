package iforest

import "github.com/hed1ad/anomalyscore/pkg/fields"

// matches reports whether every predicate of the node holds for input.
// A node without predicates always matches.
func (f *forest) matches(idx int32, input map[string]any, fs *fields.Fields) bool {
	n := &f.Nodes[idx]
	for i := n.PredStart; i < n.PredEnd; i++ {
		if !f.Predicates[i].apply(input, fs, f.matchers[i]) {
			return false
		}
	}
	return true
}

// depth returns the weighted depth of input below idx, starting at acc.
// Only the first matching child is followed.
func (f *forest) depth(idx int32, input map[string]any, fs *fields.Fields, acc float64) float64 {
	if !f.matches(idx, input, fs) {
		return acc
	}
	n := &f.Nodes[idx]
	acc += n.Weight
	for _, child := range f.Children[n.ChildStart:n.ChildEnd] {
		if f.matches(child, input, fs) {
			return f.depth(child, input, fs, acc)
		}
	}
	return acc
}

// treeDepth returns the depth of input in tree t. The synthetic wrapper
// contributes no weight; the walk starts at the true root.
func (f *forest) treeDepth(t int, input map[string]any, fs *fields.Fields) float64 {
	wrapper := &f.Nodes[f.Roots[t]]
	for _, child := range f.Children[wrapper.ChildStart:wrapper.ChildEnd] {
		if f.matches(child, input, fs) {
			return f.depth(child, input, fs, 0)
		}
	}
	return 0
}
