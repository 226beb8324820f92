package healing

// ringBuffer is a fixed-capacity circular buffer. When full, new items
// overwrite the oldest ones, so the capacity invariant holds structurally
// rather than by trimming. It is not synchronized; see the package note on
// run confinement.
type ringBuffer[T any] struct {
	items    []T
	head     int
	count    int
	capacity int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &ringBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// push adds an item, overwriting the oldest when the buffer is full.
func (rb *ringBuffer[T]) push(item T) {
	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	if rb.count < rb.capacity {
		rb.count++
	}
}

// last returns the most recent n items in chronological order (oldest of
// the selected window first). If n exceeds the count, all items are returned.
func (rb *ringBuffer[T]) last(n int) []T {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}
	result := make([]T, n)
	start := (rb.head - n + rb.capacity) % rb.capacity
	for i := 0; i < n; i++ {
		result[i] = rb.items[(start+i)%rb.capacity]
	}
	return result
}

// all returns every item in chronological order.
func (rb *ringBuffer[T]) all() []T {
	return rb.last(rb.count)
}

func (rb *ringBuffer[T]) len() int {
	return rb.count
}

func (rb *ringBuffer[T]) cap() int {
	return rb.capacity
}
