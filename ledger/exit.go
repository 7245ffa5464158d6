package ledger

import "sort"

// ExitPolicy picks which open lots a partial exit consumes first.
type ExitPolicy interface {
	Name() string
	// Order returns the indexes of open in the order they should close.
	Order(open []Trade) []int
}

// FIFO closes the oldest lots first.
type FIFO struct{}

func (FIFO) Name() string { return "fifo" }

func (FIFO) Order(open []Trade) []int {
	idx := indexes(open)
	sort.SliceStable(idx, func(a, b int) bool {
		return older(open[idx[a]], open[idx[b]])
	})
	return idx
}

// LIFO closes the newest lots first.
type LIFO struct{}

func (LIFO) Name() string { return "lifo" }

func (LIFO) Order(open []Trade) []int {
	idx := indexes(open)
	sort.SliceStable(idx, func(a, b int) bool {
		return older(open[idx[b]], open[idx[a]])
	})
	return idx
}

// ExitPolicyByName maps "fifo" and "lifo" to a policy.
func ExitPolicyByName(name string) (ExitPolicy, bool) {
	switch name {
	case "", "fifo":
		return FIFO{}, true
	case "lifo":
		return LIFO{}, true
	}
	return nil, false
}

func older(a, b Trade) bool {
	if !a.EntryDate.Equal(b.EntryDate) {
		return a.EntryDate.Before(b.EntryDate)
	}
	return a.root() < b.root()
}

func indexes(ts []Trade) []int {
	idx := make([]int, len(ts))
	for i := range idx {
		idx[i] = i
	}
	return idx
}
