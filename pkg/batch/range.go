package batch

import "fmt"

// Range is a half-open id interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of ids in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// IDs returns the ids of the range in ascending order.
func (r Range) IDs() []int {
	ids := make([]int, 0, r.Len())
	for id := r.Start; id < r.End; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Split cuts [start, end) into consecutive ranges of at most size ids.
// The last range may be shorter. A size below 1 is treated as 1.
func Split(start, end, size int) []Range {
	if size < 1 {
		size = 1
	}
	if end <= start {
		return nil
	}

	ranges := make([]Range, 0, (end-start+size-1)/size)
	for lo := start; lo < end; lo += size {
		hi := lo + size
		if hi > end {
			hi = end
		}
		ranges = append(ranges, Range{Start: lo, End: hi})
	}
	return ranges
}
