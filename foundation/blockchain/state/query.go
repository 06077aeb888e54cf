package state

import (
	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveID returns the id this miner was assigned in the network.
func (s *State) RetrieveID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

// RetrieveKnownPeers retrieves a copy of the known peer list without this
// miner's own entry.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveRegistry retrieves every entry of the registry, self included.
func (s *State) RetrieveRegistry() []peer.Peer {
	return s.knownPeers.All()
}

// RetrieveWallets retrieves the wallets bound to this miner.
func (s *State) RetrieveWallets() []peer.Peer {
	return s.wallets.All()
}

// RetrieveMempool returns a copy of the pending transactions.
func (s *State) RetrieveMempool() []string {
	return s.mempool.Copy()
}

// RetrieveBlocks returns a copy of the chain.
func (s *State) RetrieveBlocks() []database.Block {
	return s.db.Copy()
}

// RetrieveLatestBlock returns a copy of the chain tip, if any.
func (s *State) RetrieveLatestBlock() (database.Block, bool) {
	return s.db.LatestBlock()
}

// RetrieveDifficulty returns the difficulty blocks are mined and validated at.
func (s *State) RetrieveDifficulty() uint {
	return s.db.Difficulty()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByIndex returns the blocks in the inclusive range. Out of range
// bounds are clamped to the chain.
func (s *State) QueryBlocksByIndex(from uint32, to uint32) []database.Block {
	blocks := s.db.Copy()
	if len(blocks) == 0 || from > to || int(from) >= len(blocks) {
		return nil
	}

	if int(to) >= len(blocks) {
		to = uint32(len(blocks) - 1)
	}

	return blocks[from : to+1]
}

// IsMiningReady reports whether the pool holds enough transactions to seal
// a block.
func (s *State) IsMiningReady() bool {
	return s.mempool.Count() >= s.poolCapacity
}
