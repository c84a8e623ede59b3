package content

import "errors"

var ErrEmptySource = errors.New("content source has no items")
var ErrEmptyCycle = errors.New("rotation cycle has no buckets")

// Select returns the item the cursor points at and the cursor value to store
// once the item has been delivered. The stored cursor may be stale (the source
// shrank, or it grew unbounded), so it is always reduced modulo len(items).
func Select(items []*Item, currentIndex int64) (*Item, int64, error) {
	n := int64(len(items))
	if n == 0 {
		return nil, 0, ErrEmptySource
	}
	pos := wrap(currentIndex, n)
	return items[pos], (pos + 1) % n, nil
}

// SelectAll returns every item of the source in order. Used by schedules that
// deliver a whole source in one firing; cursors are left untouched.
func SelectAll(items []*Item) ([]*Item, error) {
	if len(items) == 0 {
		return nil, ErrEmptySource
	}
	out := make([]*Item, len(items))
	copy(out, items)
	return out, nil
}

// Position reduces a cycle pointer to a bucket index in [0, n).
func Position(cycleIndex, n int) (int, error) {
	if n <= 0 {
		return 0, ErrEmptyCycle
	}
	return int(wrap(int64(cycleIndex), int64(n))), nil
}

// AdvanceCycle moves a rotation pointer over n named buckets, independent of
// how many items each bucket holds.
func AdvanceCycle(cycleIndex, n int) (int, error) {
	pos, err := Position(cycleIndex, n)
	if err != nil {
		return 0, err
	}
	return (pos + 1) % n, nil
}

func wrap(i, n int64) int64 {
	return ((i % n) + n) % n
}
