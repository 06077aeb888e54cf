// Package peer maintains the registry of known nodes, either the miners in
// the mesh or the wallets bound to a miner.
package peer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Peer represents information about a node in the network.
type Peer struct {
	ID   uint32
	Host string
}

// New constructs a new peer value.
func New(id uint32, host string) Peer {
	return Peer{
		ID:   id,
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// String returns the wire text for the peer, "id,host".
func (p Peer) String() string {
	return strconv.FormatUint(uint64(p.ID), 10) + "," + p.Host
}

// ParsePeer converts the "id,host" wire text into a peer.
func ParsePeer(s string) (Peer, error) {
	id, host, found := strings.Cut(strings.TrimSpace(s), ",")
	if !found {
		return Peer{}, fmt.Errorf("peer %q: missing separator", s)
	}

	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return Peer{}, fmt.Errorf("peer %q: invalid id: %w", s, err)
	}

	if host == "" {
		return Peer{}, fmt.Errorf("peer %q: missing host", s)
	}

	return New(uint32(n), host), nil
}

// Parse converts a registry snapshot, "id,host;id,host", into a list of
// peers. An empty snapshot is an empty list.
func Parse(s string) ([]Peer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var peers []Peer
	for _, part := range strings.Split(s, ";") {
		p, err := ParsePeer(part)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}

	return peers, nil
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
// No two entries share an id and no two entries share a host.
type PeerSet struct {
	mu      sync.RWMutex
	set     map[Peer]struct{}
	self    Peer
	hasSelf bool
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// SetSelf pins the entry for the node owning this set. A previous self entry
// is replaced, which is what happens once a joining miner learns its id.
func (ps *PeerSet) SetSelf(self Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.hasSelf {
		delete(ps.set, ps.self)
	}

	ps.evict(self)
	ps.set[self] = struct{}{}
	ps.self = self
	ps.hasSelf = true
}

// Add adds a new node to the set. It returns true only when the pair was
// added. When entries share the id or the host, the one with the higher id
// stays, and for the same id the one with the lower host stays. The pinned
// self entry always stays.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return ps.add(peer)
}

// Union merges every peer in the list into the set.
func (ps *PeerSet) Union(peers []Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, peer := range peers {
		ps.add(peer)
	}
}

// Register allocates the next free id for the host and records the pair in
// one step. A host registering again receives a fresh id.
func (ps *PeerSet) Register(host string) Peer {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	peer := New(ps.nextFreeID(), host)
	ps.add(peer)

	return peer
}

// Remove removes a node from the set. It returns true only when the pair was
// present. The pinned self entry is never removed.
func (ps *PeerSet) Remove(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.hasSelf && peer == ps.self {
		return false
	}

	if _, exists := ps.set[peer]; !exists {
		return false
	}

	delete(ps.set, peer)
	return true
}

// Contains reports whether the pair is in the set.
func (ps *PeerSet) Contains(peer Peer) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[peer]
	return exists
}

// NextFreeID returns one more than the largest id in the set.
func (ps *PeerSet) NextFreeID() uint32 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return ps.nextFreeID()
}

// Len returns the number of entries, self included.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers, sorted by id, leaving out the specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sortPeers(peers)
	return peers
}

// All returns every entry, sorted by id.
func (ps *PeerSet) All() []Peer {
	return ps.Copy("")
}

// String returns the registry snapshot in wire text.
func (ps *PeerSet) String() string {
	peers := ps.All()

	parts := make([]string, len(peers))
	for i, peer := range peers {
		parts[i] = peer.String()
	}

	return strings.Join(parts, ";")
}

// =============================================================================

func (ps *PeerSet) add(peer Peer) bool {
	if _, exists := ps.set[peer]; exists {
		return false
	}

	if ps.hasSelf && (peer.ID == ps.self.ID || peer.Host == ps.self.Host) {
		return false
	}

	for p := range ps.set {
		if conflicts(p, peer) && outranks(p, peer) {
			return false
		}
	}

	ps.evict(peer)
	ps.set[peer] = struct{}{}

	return true
}

// conflicts reports whether two distinct entries share the id or the host.
func conflicts(a, b Peer) bool {
	return a != b && (a.ID == b.ID || a.Host == b.Host)
}

// outranks reports whether a is kept over b when the two conflict. A host
// registering again receives a larger id, so the larger id wins.
func outranks(a, b Peer) bool {
	if a.ID != b.ID {
		return a.ID > b.ID
	}
	return a.Host < b.Host
}

// evict removes every entry sharing the id or host of peer.
func (ps *PeerSet) evict(peer Peer) {
	for p := range ps.set {
		if p.ID == peer.ID || p.Host == peer.Host {
			delete(ps.set, p)
		}
	}
}

func (ps *PeerSet) nextFreeID() uint32 {
	var max uint32
	for p := range ps.set {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

func sortPeers(peers []Peer) {
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].ID != peers[j].ID {
			return peers[i].ID < peers[j].ID
		}
		return peers[i].Host < peers[j].Host
	})
}
