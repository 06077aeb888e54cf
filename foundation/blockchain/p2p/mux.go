// Package p2p provides the listener side of the miner protocol. It accepts
// TCP connections, reads length-prefixed frames and routes each message to
// the handler registered for its tag.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// ErrNoHandler is returned when a message arrives for a tag nothing is
// registered for.
var ErrNoHandler = errors.New("no handler registered")

// HandlerFunc processes one inbound message. Replies are written with reply
// on the connection the message arrived on.
type HandlerFunc func(ctx context.Context, msg wire.Message, reply wire.Responder) error

// Mux routes messages to handlers by tag.
type Mux struct {
	mu       sync.RWMutex
	handlers map[wire.Tag]HandlerFunc
}

// NewMux constructs an empty router.
func NewMux() *Mux {
	return &Mux{
		handlers: make(map[wire.Tag]HandlerFunc),
	}
}

// Handle registers the handler for the tag, replacing any previous one.
func (m *Mux) Handle(tag wire.Tag, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[tag] = fn
}

// Dispatch calls the handler registered for the message tag.
func (m *Mux) Dispatch(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	m.mu.RLock()
	fn, exists := m.handlers[msg.Tag]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("dispatch %s: %w", msg.Tag, ErrNoHandler)
	}

	return fn(ctx, msg, reply)
}

// Tags returns the number of tags with a registered handler.
func (m *Mux) Tags() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.handlers)
}
