package transport

import (
	"sync"
	"time"
)

// PipeEnd is one end of an in-memory transport pair. Bytes written to
// one end are readable from the other. Used by tests and the simulated
// HAT.
type PipeEnd struct {
	peer *PipeEnd

	mu      sync.Mutex
	buf     lineBuffer
	onReset func(asserted bool)

	data      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPipe returns two connected transport ends.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{data: make(chan struct{}, 1), closed: make(chan struct{})}
	b := &PipeEnd{data: make(chan struct{}, 1), closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// OnReset registers a callback invoked when the peer end drives the
// reset line. The simulated HAT uses it to restart its scripted state.
func (p *PipeEnd) OnReset(fn func(asserted bool)) {
	p.mu.Lock()
	p.onReset = fn
	p.mu.Unlock()
}

// Write delivers bytes to the peer end.
func (p *PipeEnd) Write(data []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	case <-p.peer.closed:
		return ErrClosed
	default:
	}
	peer := p.peer
	peer.mu.Lock()
	peer.buf.Feed(data)
	peer.mu.Unlock()
	select {
	case peer.data <- struct{}{}:
	default:
	}
	return nil
}

// ReadLine returns the next complete line, or (nil, nil) after timeout.
func (p *PipeEnd) ReadLine(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		line, ok := p.buf.Next()
		p.mu.Unlock()
		if ok {
			return line, nil
		}

		select {
		case <-p.closed:
			return nil, ErrClosed
		case <-timer.C:
			return nil, nil
		case <-p.data:
		}
	}
}

// AssertReset invokes the peer's reset callback.
func (p *PipeEnd) AssertReset(asserted bool) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	peer := p.peer
	peer.mu.Lock()
	fn := peer.onReset
	peer.mu.Unlock()
	if fn != nil {
		fn(asserted)
	}
	return nil
}

// Close closes this end. The peer keeps its buffered lines but new
// writes from either side fail.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}
