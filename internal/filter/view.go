package filter

import (
	"iter"
	"sort"
)

// Lines is a random-access sequence of raw lines, such as a storage.Storage.
type Lines interface {
	Len() int
	Bytes(i int) []byte
}

// View is the subset of a Lines source that passed an Engine, in source
// order. It is itself a Lines, indexed by visible position.
type View struct {
	src     Lines
	indices []int
}

// Apply evaluates every line of src and returns the visible ones. With no
// active rule the view holds every line.
func (e *Engine) Apply(src Lines) *View {
	n := src.Len()
	v := &View{src: src}
	if !e.Active() {
		v.indices = make([]int, n)
		for i := range v.indices {
			v.indices[i] = i
		}
		return v
	}
	for i := 0; i < n; i++ {
		if e.Matches(src.Bytes(i)) {
			v.indices = append(v.indices, i)
		}
	}
	return v
}

// Len returns the number of visible lines.
func (v *View) Len() int {
	return len(v.indices)
}

// Bytes returns the bytes of the i-th visible line.
func (v *View) Bytes(i int) []byte {
	return v.src.Bytes(v.indices[i])
}

// SourceIndex maps a visible position to the index in the source.
func (v *View) SourceIndex(i int) int {
	return v.indices[i]
}

// Position returns the visible position of source line idx, if it is visible.
func (v *View) Position(idx int) (int, bool) {
	i := sort.SearchInts(v.indices, idx)
	if i < len(v.indices) && v.indices[i] == idx {
		return i, true
	}
	return 0, false
}

// Indices returns the visible source indices. The slice must not be modified.
func (v *View) Indices() []int {
	return v.indices
}

// All yields visible positions with their source index.
func (v *View) All() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for i, idx := range v.indices {
			if !yield(i, idx) {
				return
			}
		}
	}
}
