package counter

import (
	"container/list"
	"context"
	"sync"
)

// MemoryTally keeps frame keys and the total in process memory.
// With a maximum size the oldest frame keys are evicted first.
type MemoryTally struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	total   int64
	maxSize int
}

// Option configures a MemoryTally
type Option func(*MemoryTally)

// WithMaxFrames bounds the number of remembered frame keys. Zero or less means unbounded.
func WithMaxFrames(n int) Option {
	return func(t *MemoryTally) {
		t.maxSize = n
	}
}

// NewMemoryTally creates an empty in-memory tally
func NewMemoryTally(opts ...Option) *MemoryTally {
	t := &MemoryTally{
		seen:  make(map[string]*list.Element),
		order: list.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *MemoryTally) Observe(ctx context.Context, frame []byte, count CountFunc) (int64, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}
	key := FrameKey(frame)

	if !t.record(key) {
		return t.Total(ctx)
	}

	n, err := count(ctx)
	if err != nil {
		t.forget(key)
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.total += int64(n)
	return t.total, nil
}

func (t *MemoryTally) Total(_ context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, nil
}

func (t *MemoryTally) Reset(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]*list.Element)
	t.order.Init()
	t.total = 0
	return nil
}

// Frames returns the number of remembered frame keys
func (t *MemoryTally) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// record stores key and reports whether it was new
func (t *MemoryTally) record(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.seen[key]; exists {
		return false
	}
	if t.maxSize > 0 && len(t.seen) >= t.maxSize {
		if oldest := t.order.Front(); oldest != nil {
			delete(t.seen, oldest.Value.(string))
			t.order.Remove(oldest)
		}
	}
	t.seen[key] = t.order.PushBack(key)
	return true
}

func (t *MemoryTally) forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, exists := t.seen[key]; exists {
		t.order.Remove(el)
		delete(t.seen, key)
	}
}
