//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Epoll is the portable stand-in for the Linux readiness loop. Every
// registered connection is reported as ready; the worker that picks it up
// blocks in the frame read until data or the read deadline arrives, then
// calls Resume to have the connection reported again.
type Epoll struct {
	mu      sync.Mutex
	resume  map[net.Conn]chan struct{}
	readyCh chan net.Conn
	done    chan struct{}
	once    sync.Once
}

// NewEpoll creates the fallback readiness loop.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		resume:  make(map[net.Conn]chan struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers conn and reports it ready once.
func (e *Epoll) Add(conn net.Conn) error {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.resume[conn] = ch
	e.mu.Unlock()

	go e.monitor(conn, ch)
	return nil
}

func (e *Epoll) monitor(conn net.Conn, resume <-chan struct{}) {
	for {
		select {
		case e.readyCh <- conn:
		case <-e.done:
			return
		}
		select {
		case _, ok := <-resume:
			if !ok {
				return
			}
		case <-e.done:
			return
		}
	}
}

// Resume reports conn ready again after a worker finished with it.
func (e *Epoll) Resume(conn net.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.resume[conn]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Remove unregisters conn and stops its monitor.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.resume[conn]; ok {
		delete(e.resume, conn)
		close(ch)
	}
	return nil
}

// Wait blocks until at least one connection is ready and returns every
// connection ready at that moment.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close stops every monitor.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}
