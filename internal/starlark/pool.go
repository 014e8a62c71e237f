package starlark

import "go.starlark.net/starlark"

// ThreadPool hands out Starlark threads to concurrent renders and keeps up
// to its capacity of idle ones for reuse. A nil pool allocates every time.
type ThreadPool struct {
	idle chan *starlark.Thread
}

// NewThreadPool creates a pool keeping at most size idle threads.
func NewThreadPool(size int) *ThreadPool {
	return &ThreadPool{idle: make(chan *starlark.Thread, max(size, 1))}
}

// Get returns an idle thread renamed to name, or a new one.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	if p != nil {
		select {
		case t := <-p.idle:
			t.Name = name
			return t
		default:
		}
	}
	return &starlark.Thread{Name: name, Print: func(*starlark.Thread, string) {}}
}

// Put gives a thread back. It is dropped when the pool is full.
func (p *ThreadPool) Put(t *starlark.Thread) {
	if p == nil {
		return
	}
	t.Uncancel()
	select {
	case p.idle <- t:
	default:
	}
}

// Idle reports how many threads are waiting for reuse.
func (p *ThreadPool) Idle() int {
	if p == nil {
		return 0
	}
	return len(p.idle)
}
