package gateway

import "sync"

// shutdownSignal fires at most once and stays fired.
type shutdownSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newShutdownSignal() *shutdownSignal {
	return &shutdownSignal{ch: make(chan struct{})}
}

// Fire reports whether this call was the one that fired the signal.
func (s *shutdownSignal) Fire() bool {
	fired := false
	s.once.Do(func() {
		close(s.ch)
		fired = true
	})
	return fired
}

func (s *shutdownSignal) Done() <-chan struct{} {
	return s.ch
}

func (s *shutdownSignal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
