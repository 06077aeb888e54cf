package state

import (
	"context"
	"errors"
	"strings"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// ProcessTransaction pools a transaction sent by a wallet or forwarded by a
// peer. A transaction is forwarded only the first time it is pooled.
func (s *State) ProcessTransaction(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	tx := strings.TrimSpace(msg.Payload)
	if tx == "" {
		s.evHandler("state: ProcessTransaction: empty transaction: from[%s]", msg.Sender)
		return nil
	}

	added, count, err := s.UpsertMempool(tx)
	if err != nil {
		s.evHandler("state: ProcessTransaction: tx[%s]: WARNING: %s", tx, err)
		return nil
	}

	if !added {
		s.evHandler("state: ProcessTransaction: known tx[%s]: from[%s]", tx, msg.Sender)
		return nil
	}

	s.evHandler("state: ProcessTransaction: pooled tx[%s]: from[%s]: count[%d]", tx, msg.Sender, count)

	s.NetSendTxToPeers(ctx, tx, msg.Sender)

	if count >= s.poolCapacity {
		s.signalStartMining()
	}

	return nil
}

// UpsertMempool pools the transaction unless it is already sealed in the
// chain or can't be sealed at all. It reports whether the transaction was added and the pool size.
func (s *State) UpsertMempool(tx string) (bool, int, error) {
	if err := database.ValidateTransaction(tx); err != nil {
		return false, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.ContainsTransaction(tx) {
		return false, s.mempool.Count(), errors.New("transaction already sealed")
	}

	added, count := s.mempool.Upsert(tx)
	return added, count, nil
}

// ProcessBlock validates a block sent by a peer and, when it extends or wins
// the tip, forwards it to the other peers.
func (s *State) ProcessBlock(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	block, err := database.ParseBlock(msg.Payload)
	if err != nil {
		return wire.NewPayloadError(msg.Tag, err)
	}

	if err := s.ProcessProposedBlock(block); err != nil {
		return err
	}

	payload, err := block.Marshal()
	if err != nil {
		return err
	}

	s.broadcast(ctx, s.newMessage(wire.TagBlock, payload), msg.Sender)

	if s.IsMiningReady() {
		s.signalStartMining()
	}

	return nil
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, applies it to the chain and the pool.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: %s", block)
	defer s.evHandler("state: ProcessProposedBlock: completed")

	s.mu.Lock()
	dropped, err := s.db.Accept(block)
	if err == nil {
		s.mempool.Delete(block.Transactions()...)
		if dropped != nil {
			s.repool(*dropped, block)
		}
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	// If the runMiningOperation function is being executed it needs to stop
	// immediately since the block it works on is no longer next.
	done := s.signalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	if dropped != nil {
		s.evHandler("state: ProcessProposedBlock: replaced tip: dropped[%s]", *dropped)
	}

	return nil
}

// ProcessRequireBlockchain streams the chain to the requester, one block per
// message in ascending index order.
func (s *State) ProcessRequireBlockchain(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	blocks := s.db.Copy()

	s.evHandler("state: ProcessRequireBlockchain: requester[%s]: blocks[%d]", msg.Sender, len(blocks))

	for _, block := range blocks {
		payload, err := block.Marshal()
		if err != nil {
			return err
		}

		if err := reply(s.newMessage(wire.TagSendBlockchain, payload)); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	var txs []string
	var index uint32
	var prevHash string

	s.mu.Lock()
	{
		txs = s.mempool.PickBest(s.poolCapacity)
		index = s.db.NextIndex()
		prevHash = s.db.TipHash()
	}
	s.mu.Unlock()

	if len(txs) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: txs[%d]", index, len(txs))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, s.db.Difficulty(), index, prevHash, txs, s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: update local state")

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Append(block); err != nil {
		return database.Block{}, err
	}
	s.mempool.Delete(txs...)

	return block, nil
}

// =============================================================================

// repool returns the transactions of a dropped tip that the winning block
// does not seal. The caller must hold the lock.
func (s *State) repool(dropped database.Block, winner database.Block) {
	sealed := make(map[string]struct{})
	for _, tx := range winner.Transactions() {
		sealed[tx] = struct{}{}
	}

	for _, tx := range dropped.Transactions() {
		if _, exists := sealed[tx]; !exists {
			s.mempool.Upsert(tx)
		}
	}
}
