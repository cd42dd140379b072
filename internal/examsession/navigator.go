package examsession

// Navigator walks the session's questions as one circular sequence:
// every MCQ in order, then every coding question, then back to the first MCQ.
// It is the only writer of the Store's cursor.
type Navigator struct {
	store *Store
}

// NewNavigator creates a Navigator over store.
func NewNavigator(store *Store) *Navigator {
	return &Navigator{store: store}
}

// Next moves the cursor forward and returns it.
func (n *Navigator) Next() Cursor {
	return n.store.moveCursor(1)
}

// Previous moves the cursor backward and returns it.
func (n *Navigator) Previous() Cursor {
	return n.store.moveCursor(-1)
}

// step computes the neighbour of c in direction dir (+1 or -1).
// An empty list is never entered; with both lists empty c is returned as is.
func step(c Cursor, mcqLen, codingLen, dir int) Cursor {
	if mcqLen == 0 && codingLen == 0 {
		return c
	}

	cur, other := ListMCQ, ListCoding
	curLen, otherLen := mcqLen, codingLen
	if c.List == ListCoding {
		cur, other = ListCoding, ListMCQ
		curLen, otherLen = codingLen, mcqLen
	}

	// A cursor parked on an empty list jumps to the head of the other one.
	if curLen == 0 {
		if dir > 0 {
			return Cursor{List: other, Index: 0}
		}
		return Cursor{List: other, Index: otherLen - 1}
	}

	idx := c.Index + dir
	if idx >= 0 && idx < curLen {
		return Cursor{List: cur, Index: idx}
	}

	if dir > 0 {
		if otherLen > 0 {
			return Cursor{List: other, Index: 0}
		}
		return Cursor{List: cur, Index: 0}
	}
	if otherLen > 0 {
		return Cursor{List: other, Index: otherLen - 1}
	}
	return Cursor{List: cur, Index: curLen - 1}
}
