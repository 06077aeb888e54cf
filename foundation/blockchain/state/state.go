// Package state is the core API for a miner and implements the membership,
// gossip and mining rules driven by the wire protocol.
package state

import (
	"context"
	"sync"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/meshchain/foundation/blockchain/peer"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// Set of default values for the miner.
const (
	DefaultPoolCapacity  = 5
	DefaultDifficulty    = 1
	DefaultHealthRetries = 1
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of messages and blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and peer liveness.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// =============================================================================

// Config represents the configuration required to start a miner.
type Config struct {
	Host            string
	Transport       wire.Transport
	PoolCapacity    int
	Difficulty      uint
	HealthRetries   int
	GossipEvictions bool
	EvHandler       EventHandler
}

// State manages the registry, wallets, pending pool and chain of one miner.
// The mutex covers every read-modify-write spanning more than one of them and
// is never held across network I/O.
type State struct {
	mu sync.Mutex

	id              uint32
	host            string
	poolCapacity    int
	healthRetries   int
	gossipEvictions bool
	transport       wire.Transport
	evHandler       EventHandler

	knownPeers *peer.PeerSet
	wallets    *peer.PeerSet
	db         *database.Database
	mempool    *mempool.Mempool

	Worker Worker
}

// New constructs a miner that is the only member of its own network. Call
// Join to become part of an existing network.
func New(cfg Config) *State {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	transport := cfg.Transport
	if transport == nil {
		transport = wire.NewClient()
	}

	poolCapacity := cfg.PoolCapacity
	if poolCapacity <= 0 {
		poolCapacity = DefaultPoolCapacity
	}

	healthRetries := cfg.HealthRetries
	if healthRetries < 0 {
		healthRetries = 0
	}

	knownPeers := peer.NewPeerSet()
	knownPeers.SetSelf(peer.New(0, cfg.Host))

	state := State{
		host:            cfg.Host,
		poolCapacity:    poolCapacity,
		healthRetries:   healthRetries,
		gossipEvictions: cfg.GossipEvictions,
		transport:       transport,
		evHandler:       ev,

		knownPeers: knownPeers,
		wallets:    peer.NewPeerSet(),
		db:         database.New(cfg.Difficulty, ev),
		mempool:    mempool.New(),
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the miner.

	return &state
}

// Shutdown cleanly brings the miner down and tells every known peer this
// miner is leaving.
func (s *State) Shutdown(ctx context.Context) error {
	s.evHandler("state: Shutdown: started")
	defer s.evHandler("state: Shutdown: completed")

	// Stop all mining and liveness activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	for _, pr := range s.RetrieveKnownPeers() {
		if err := s.transport.Send(ctx, pr.Host, s.newMessage(wire.TagDisconnect, "")); err != nil {
			s.evHandler("state: Shutdown: disconnect: %s: WARNING: %s", pr, err)
		}
	}

	return nil
}

// =============================================================================

// newMessage constructs a message sent by this miner.
func (s *State) newMessage(tag wire.Tag, payload string) wire.Message {
	return wire.NewMessage(tag, s.host, s.RetrieveID(), payload)
}

// signalStartMining asks the worker, when registered, to start mining.
func (s *State) signalStartMining() {
	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}
}

// signalCancelMining asks the worker, when registered, to stop mining. The
// mining goroutine won't start again until done is called.
func (s *State) signalCancelMining() (done func()) {
	if s.Worker == nil {
		return func() {}
	}
	return s.Worker.SignalCancelMining()
}
