package preferences

import "sync"

// Observable holds a value and notifies subscribers synchronously, in
// subscription order, whenever Set changes it.
type Observable[T comparable] struct {
	mu     sync.Mutex
	value  T
	nextID int
	subs   []subscription[T]
}

type subscription[T comparable] struct {
	id int
	fn func(T)
}

func NewObservable[T comparable](initial T) *Observable[T] {
	return &Observable[T]{value: initial}
}

func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set stores v and reports whether it differed from the previous value.
// Subscribers run after the lock is released, so they may call Get or Set.
func (o *Observable[T]) Set(v T) bool {
	o.mu.Lock()
	if o.value == v {
		o.mu.Unlock()
		return false
	}
	o.value = v
	subs := make([]subscription[T], len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
	return true
}

// Subscribe registers fn and returns a function that removes it.
func (o *Observable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.subs = append(o.subs, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *Observable[T]) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
