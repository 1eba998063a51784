package host

import "sync"

// Subscribers 按 id 保存的订阅者，取消订阅即删除
type Subscribers[T any] struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(T)
}

func (s *Subscribers[T]) Add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

// Notify 在调用方 goroutine 中依次通知，不持有锁
func (s *Subscribers[T]) Notify(v T) {
	s.mu.RLock()
	fns := make([]func(T), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}
