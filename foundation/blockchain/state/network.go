package state

import (
	"context"
	"slices"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/peer"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// NetSendBlockToPeers takes the new mined block and sends it to all known
// peers.
func (s *State) NetSendBlockToPeers(ctx context.Context, block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	payload, err := block.Marshal()
	if err != nil {
		return err
	}

	s.broadcast(ctx, s.newMessage(wire.TagBlock, payload))

	return nil
}

// NetSendTxToPeers shares a new transaction with the known peers, except the
// one it came from.
func (s *State) NetSendTxToPeers(ctx context.Context, tx string, from string) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	s.broadcast(ctx, s.newMessage(wire.TagTransaction, tx), from)
}

// NetRequestPeerBlocks asks the peer for its chain and applies the blocks
// this miner does not have yet.
func (s *State) NetRequestPeerBlocks(ctx context.Context, pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerBlocks: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerBlocks: completed: %s", pr)

	var applied int
	f := func(reply wire.Message) error {
		if err := wire.ExpectTag(reply, wire.TagSendBlockchain); err != nil {
			return err
		}

		block, err := database.ParseBlock(reply.Payload)
		if err != nil {
			return wire.NewPayloadError(reply.Tag, err)
		}

		// Blocks this miner already holds come back as consensus errors.
		if err := s.ProcessProposedBlock(block); err != nil {
			if database.IsConsensusError(err) {
				return nil
			}
			return err
		}

		applied++
		return nil
	}

	if err := s.transport.Stream(ctx, pr.Host, s.newMessage(wire.TagRequireBlockchain, ""), f); err != nil {
		return err
	}

	s.evHandler("state: NetRequestPeerBlocks: applied blocks[%d]", applied)

	return nil
}

// =============================================================================

// broadcast sends the message to every known peer except this miner and the
// excluded hosts. A failed send is logged and the peer is left for the
// liveness sweep to judge.
func (s *State) broadcast(ctx context.Context, msg wire.Message, exclude ...string) {
	for _, pr := range s.RetrieveKnownPeers() {
		if slices.Contains(exclude, pr.Host) {
			continue
		}

		if err := s.transport.Send(ctx, pr.Host, msg); err != nil {
			s.evHandler("state: broadcast: %s: peer[%s]: WARNING: %s", msg.Tag, pr, err)
			continue
		}

		s.evHandler("state: broadcast: %s: sent to peer[%s]", msg.Tag, pr)
	}
}
