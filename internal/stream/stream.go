// Package stream lets several logical HTTP exchanges share one physical
// connection without ever using it concurrently.
//
// A Shared holds at most one stream. Borrow hands it out exclusively; other
// borrowers wait in arrival order. Releasing a borrowed handle passes the
// stream straight to the oldest waiter, so it never sits idle while somebody
// is queued for it.
package stream

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
)

// ErrClosed is returned by Borrow once the Shared has been closed.
var ErrClosed = errors.New("shared stream closed")

// Stream is one physical connection together with the buffered reader that
// frames responses read from it. The reader must survive between exchanges
// because it may hold bytes the server already sent.
type Stream struct {
	Conn   net.Conn
	Reader *bufio.Reader
}

// NewStream wraps conn.
func NewStream(conn net.Conn) *Stream {
	return &Stream{Conn: conn, Reader: bufio.NewReader(conn)}
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.Conn.Close()
}

// Shared brokers exclusive access to a single stream.
type Shared struct {
	mu      sync.Mutex
	idle    *Stream
	held    bool
	closed  bool
	waiters []chan *Stream
}

// New returns a broker owning st. st may be nil, in which case the first
// borrower receives an empty slot and is expected to Attach a connection.
func New(st *Stream) *Shared {
	return &Shared{idle: st}
}

// Borrow returns an exclusive handle on the stream. It returns immediately
// when the stream is idle, otherwise it queues behind earlier borrowers until
// one of them releases or ctx is done.
func (s *Shared) Borrow(ctx context.Context) (*Borrowed, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.held {
		s.held = true
		st := s.idle
		s.idle = nil
		s.mu.Unlock()
		return &Borrowed{shared: s, stream: st}, nil
	}
	ch := make(chan *Stream, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case st, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return &Borrowed{shared: s, stream: st}, nil
	case <-ctx.Done():
		s.mu.Lock()
		queued := s.dequeue(ch)
		s.mu.Unlock()
		if !queued {
			// The stream was handed over while we were giving up.
			if st, ok := <-ch; ok {
				(&Borrowed{shared: s, stream: st}).Release()
			}
		}
		return nil, ctx.Err()
	}
}

// Waiting returns the number of queued borrowers.
func (s *Shared) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// Close closes the idle stream, if any, and fails every queued borrower.
// A stream currently borrowed is closed when its holder releases it.
func (s *Shared) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	st := s.idle
	s.idle = nil
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = nil
	s.mu.Unlock()

	if st != nil {
		return st.Close()
	}
	return nil
}

func (s *Shared) dequeue(ch chan *Stream) bool {
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Shared) release(st *Stream) {
	s.mu.Lock()
	if s.closed {
		s.held = false
		s.mu.Unlock()
		if st != nil {
			st.Close() //nolint:errcheck // broker already closed
		}
		return
	}
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		next <- st
		s.mu.Unlock()
		return
	}
	s.held = false
	s.idle = st
	s.mu.Unlock()
}

// Borrowed is an exclusive handle on a Shared stream. Release it with defer
// so the stream moves on even when the exchange fails.
type Borrowed struct {
	shared  *Shared
	stream  *Stream
	discard bool
	once    sync.Once
}

// Stream returns the borrowed stream, or nil when the slot is empty because
// no connection was attached yet or the previous one was discarded.
func (b *Borrowed) Stream() *Stream {
	return b.stream
}

// Attach installs conn as the stream for this slot, closing any stream it
// replaces.
func (b *Borrowed) Attach(conn net.Conn) *Stream {
	if b.stream != nil {
		b.stream.Close() //nolint:errcheck // replaced connection
	}
	b.stream = NewStream(conn)
	b.discard = false
	return b.stream
}

// Discard marks the stream as no longer usable. It is closed on release and
// the next borrower receives an empty slot.
func (b *Borrowed) Discard() {
	b.discard = true
}

// Release returns the stream to the broker. Calling it more than once has no
// further effect.
func (b *Borrowed) Release() {
	b.once.Do(func() {
		st := b.stream
		if b.discard && st != nil {
			st.Close() //nolint:errcheck // discarded connection
			st = nil
		}
		b.stream = nil
		b.shared.release(st)
	})
}
