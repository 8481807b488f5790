package storage

import (
	"slices"
)

type keyedLine struct {
	key  int64
	line LogLine
}

// sortKeys assigns every line the timestamp it is ordered by.
//
// A dated line uses its own timestamp. An undated line inherits the last
// dated key seen earlier in the same source; undated lines before the first
// dated line of a source take that first timestamp. A source with no dated
// line at all inherits the last key of the previous source, or NoTimestamp
// for the first one.
func sortKeys(lines []LogLine) []int64 {
	keys := make([]int64, len(lines))
	prevSourceKey := NoTimestamp

	for start := 0; start < len(lines); {
		src := lines[start].Source
		end := start
		for end < len(lines) && lines[end].Source == src {
			end++
		}

		current := NoTimestamp
		for i := start; i < end; i++ {
			if lines[i].HasTimestamp() {
				current = lines[i].Timestamp
				break
			}
		}
		if current == NoTimestamp {
			current = prevSourceKey
		}

		for i := start; i < end; i++ {
			if lines[i].HasTimestamp() {
				current = lines[i].Timestamp
			}
			keys[i] = current
		}
		if end > start {
			prevSourceKey = keys[end-1]
		}
		start = end
	}
	return keys
}

// chronological returns lines ordered by sort key. The sort is stable, so
// lines with equal keys keep discovery order.
func chronological(lines []LogLine) []LogLine {
	keys := sortKeys(lines)
	if slices.IsSorted(keys) {
		return lines
	}

	keyed := make([]keyedLine, len(lines))
	for i, l := range lines {
		keyed[i] = keyedLine{key: keys[i], line: l}
	}
	slices.SortStableFunc(keyed, func(a, b keyedLine) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})
	for i := range keyed {
		lines[i] = keyed[i].line
	}
	return lines
}
