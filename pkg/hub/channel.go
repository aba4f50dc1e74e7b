package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CDarius/buildhat-go/pkg/wire"
)

// ReplyKind is the reply arity a command expects.
type ReplyKind uint8

const (
	// ReplyNone - the command is fire-and-forget.
	ReplyNone ReplyKind = iota

	// ReplySingle - exactly one matching reply line completes the
	// command.
	ReplySingle

	// ReplyUntil - reply lines accumulate until the Until predicate
	// accepts the final one.
	ReplyUntil
)

// ReplySpec describes how a command's reply is recognized.
type ReplySpec struct {
	// Kind is the reply arity.
	Kind ReplyKind

	// Match filters which reply tokens belong to this command. Nil
	// accepts any reply-class token. Non-matching tokens are treated
	// as noise, not errors.
	Match func(wire.Token) bool

	// Until recognizes the final token of a ReplyUntil command.
	Until func(wire.Token) bool
}

// submitResult carries a completed command's outcome.
type submitResult struct {
	tokens []wire.Token
	err    error
}

// pendingCommand is the single in-flight command slot.
type pendingCommand struct {
	port   int // -1 when not port scoped
	spec   ReplySpec
	tokens []wire.Token
	done   chan submitResult
}

// commandChannel serializes command submission. At most one command is
// pending on the transport at a time; waiters are served strictly in
// arrival order by ticket number.
type commandChannel struct {
	mu        sync.Mutex
	cond      *sync.Cond
	serving   uint64
	next      uint64
	cancelled map[uint64]struct{}
	pending   *pendingCommand
	closed    bool
	noise     uint64
}

func newCommandChannel() *commandChannel {
	c := &commandChannel{cancelled: make(map[uint64]struct{})}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// run writes one command and waits for its reply per spec. The write
// function is the transport boundary; port is the target port for
// detach failure, or -1. FIFO order among concurrent callers follows
// call order of run.
func (c *commandChannel) run(
	ctx context.Context,
	write func([]byte) error,
	cmd wire.Command,
	spec ReplySpec,
	port int,
	timeout time.Duration,
) ([]wire.Token, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	if spec.Kind == ReplyNone {
		err := write(cmd.Bytes())
		c.release()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return nil, nil
	}

	p := &pendingCommand{
		port: port,
		spec: spec,
		done: make(chan submitResult, 1),
	}
	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()

	if err := write(cmd.Bytes()); err != nil {
		c.clearPending(p)
		c.release()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		c.release()
		if res.err != nil {
			return nil, res.err
		}
		return res.tokens, nil
	case <-timer.C:
		// Clearing the slot makes any late reply anonymous noise.
		c.clearPending(p)
		c.release()
		return nil, fmt.Errorf("%w: %s", ErrTimeout, cmd.String())
	case <-ctx.Done():
		c.clearPending(p)
		c.release()
		return nil, ctx.Err()
	}
}

// acquire takes a ticket and blocks until it is served.
func (c *commandChannel) acquire(ctx context.Context) error {
	// Wake this waiter if its context ends.
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	ticket := c.next
	c.next++

	for {
		if c.closed {
			c.abandonTicketLocked(ticket)
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			c.abandonTicketLocked(ticket)
			return err
		}
		if c.serving == ticket && c.pending == nil {
			return nil
		}
		c.cond.Wait()
	}
}

// abandonTicketLocked removes a ticket that will never run.
func (c *commandChannel) abandonTicketLocked(ticket uint64) {
	if c.serving == ticket {
		c.advanceLocked()
		return
	}
	c.cancelled[ticket] = struct{}{}
}

// release passes the channel to the next ticket.
func (c *commandChannel) release() {
	c.mu.Lock()
	c.advanceLocked()
	c.mu.Unlock()
}

func (c *commandChannel) advanceLocked() {
	c.serving++
	for {
		if _, gone := c.cancelled[c.serving]; !gone {
			break
		}
		delete(c.cancelled, c.serving)
		c.serving++
	}
	c.cond.Broadcast()
}

// clearPending removes the slot if it still belongs to p.
func (c *commandChannel) clearPending(p *pendingCommand) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
}

// deliver routes a reply-class token to the pending command. It
// reports whether the token was consumed; unconsumed tokens are
// counted as noise.
func (c *commandChannel) deliver(tok wire.Token) bool {
	c.mu.Lock()
	p := c.pending
	if p == nil {
		c.noise++
		c.mu.Unlock()
		return false
	}

	// An error line fails the pending command regardless of its Match
	// filter.
	if tok.Kind == wire.KindErrorReply {
		c.pending = nil
		c.mu.Unlock()
		p.done <- submitResult{err: fmt.Errorf("%w: %s", ErrCommandFailed, tok.Text)}
		return true
	}

	if p.spec.Match != nil && !p.spec.Match(tok) {
		c.noise++
		c.mu.Unlock()
		return false
	}

	p.tokens = append(p.tokens, tok)
	final := p.spec.Kind == ReplySingle ||
		(p.spec.Kind == ReplyUntil && p.spec.Until != nil && p.spec.Until(tok))
	if !final {
		c.mu.Unlock()
		return true
	}

	c.pending = nil
	tokens := p.tokens
	c.mu.Unlock()
	p.done <- submitResult{tokens: tokens}
	return true
}

// failDetached fails the pending command if it targets the given port.
func (c *commandChannel) failDetached(port int) {
	c.mu.Lock()
	p := c.pending
	if p == nil || p.port != port {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()
	p.done <- submitResult{err: fmt.Errorf("%w: port %d", ErrDeviceDetached, port)}
}

// close fails the pending command and all waiters.
func (c *commandChannel) close() {
	c.mu.Lock()
	c.closed = true
	p := c.pending
	c.pending = nil
	c.cond.Broadcast()
	c.mu.Unlock()
	if p != nil {
		p.done <- submitResult{err: ErrClosed}
	}
}

// noiseCount returns the number of lines that satisfied no pending
// command and no other consumer.
func (c *commandChannel) noiseCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noise
}
