package p2p

import (
	"context"
	"errors"
	"sync"

	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// ErrUnreachable is reported when a message is addressed to a host that is
// not attached to the in-memory network.
var ErrUnreachable = errors.New("host unreachable")

// MemNetwork is an in-memory implementation of the wire.Transport interface.
// Messages are dispatched synchronously to the mux attached under the
// destination host. It is used to run several miners inside one process.
type MemNetwork struct {
	mu    sync.RWMutex
	nodes map[string]*Mux
	sent  map[wire.Tag]int
}

// NewMemNetwork constructs an empty in-memory network.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		nodes: make(map[string]*Mux),
		sent:  make(map[wire.Tag]int),
	}
}

// Attach makes the mux reachable under host.
func (n *MemNetwork) Attach(host string, mux *Mux) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nodes[host] = mux
}

// Detach makes host unreachable, like a node that crashed.
func (n *MemNetwork) Detach(host string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.nodes, host)
}

// Sent returns the number of messages with the tag that were delivered
// through Send, Request or Stream.
func (n *MemNetwork) Sent(tag wire.Tag) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.sent[tag]
}

// Send delivers the message and discards any reply. Handler failures stay on
// the receiving side, as they would over TCP.
func (n *MemNetwork) Send(ctx context.Context, addr string, m wire.Message) error {
	mux, msg, err := n.deliver(ctx, addr, m)
	if err != nil {
		return err
	}

	mux.Dispatch(ctx, msg, func(wire.Message) error { return nil })

	return nil
}

// Request delivers the message and returns the first reply.
func (n *MemNetwork) Request(ctx context.Context, addr string, m wire.Message) (wire.Message, error) {
	var replies []wire.Message
	if err := n.Stream(ctx, addr, m, func(r wire.Message) error {
		replies = append(replies, r)
		return nil
	}); err != nil {
		return wire.Message{}, err
	}

	if len(replies) == 0 {
		return wire.Message{}, &wire.TransportError{Op: "read", Addr: addr, Err: errors.New("no reply")}
	}

	return replies[0], nil
}

// Stream delivers the message and hands every reply to fn once the remote
// handler is done.
func (n *MemNetwork) Stream(ctx context.Context, addr string, m wire.Message, fn func(wire.Message) error) error {
	mux, msg, err := n.deliver(ctx, addr, m)
	if err != nil {
		return err
	}

	var replies []wire.Message
	reply := func(r wire.Message) error {
		decoded, err := roundTrip(r)
		if err != nil {
			return err
		}
		replies = append(replies, decoded)
		return nil
	}

	mux.Dispatch(ctx, msg, reply)

	for _, r := range replies {
		if err := fn(r); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// deliver finds the destination and passes the message through the codec so
// it fails exactly the way it would over TCP.
func (n *MemNetwork) deliver(ctx context.Context, addr string, m wire.Message) (*Mux, wire.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, wire.Message{}, err
	}

	msg, err := roundTrip(m)
	if err != nil {
		return nil, wire.Message{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	mux, exists := n.nodes[addr]
	if !exists {
		return nil, wire.Message{}, &wire.TransportError{Op: "dial", Addr: addr, Err: ErrUnreachable}
	}
	n.sent[m.Tag]++

	return mux, msg, nil
}

func roundTrip(m wire.Message) (wire.Message, error) {
	frame, err := wire.Encode(m)
	if err != nil {
		return wire.Message{}, err
	}
	return wire.Decode(frame)
}
