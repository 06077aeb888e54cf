package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ardanlabs/meshchain/foundation/blockchain/peer"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// Join makes this miner a member of the network the known peer belongs to.
// The known peer hands out an id first, then a snapshot of its registry.
func (s *State) Join(ctx context.Context, knownPeer string) error {
	s.evHandler("state: Join: started: peer[%s]", knownPeer)
	defer s.evHandler("state: Join: completed: peer[%s]", knownPeer)

	reply, err := s.transport.Request(ctx, knownPeer, s.newMessage(wire.TagRequireID, ""))
	if err != nil {
		return fmt.Errorf("require id: %w", err)
	}

	id, err := wire.ParseGiveID(reply)
	if err != nil {
		return fmt.Errorf("require id: %w", err)
	}

	s.mu.Lock()
	{
		s.id = id
		s.knownPeers.SetSelf(peer.New(id, s.host))
	}
	s.mu.Unlock()

	s.evHandler("state: Join: assigned id[%d]", id)

	reply, err = s.transport.Request(ctx, knownPeer, s.newMessage(wire.TagConnect, strconv.FormatUint(uint64(id), 10)))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := wire.ExpectTag(reply, wire.TagOk); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	peers, err := peer.Parse(reply.Payload)
	if err != nil {
		return fmt.Errorf("connect: %w", wire.NewPayloadError(reply.Tag, err))
	}

	s.knownPeers.Union(peers)

	s.evHandler("state: Join: registry[%s]", s.knownPeers)

	return nil
}

// =============================================================================

// ProcessConnect hands the joiner a snapshot of the registry, records the
// joiner and tells every other peer about it.
func (s *State) ProcessConnect(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	joiner := peer.New(msg.SenderID, msg.Sender)

	s.evHandler("state: ProcessConnect: joiner[%s]", joiner)

	if err := reply(s.newMessage(wire.TagOk, s.knownPeers.String())); err != nil {
		return err
	}

	if s.knownPeers.Add(joiner) {
		s.evHandler("state: ProcessConnect: added peer[%s]", joiner)
	}

	s.broadcast(ctx, s.newMessage(wire.TagBroadcastConnect, joiner.String()), joiner.Host)

	return nil
}

// ProcessBroadcastConnect records a peer announced by another member. The
// announcement is only forwarded the first time the entry is seen, which is
// what stops the flood.
func (s *State) ProcessBroadcastConnect(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	subject, err := peer.ParsePeer(msg.Payload)
	if err != nil {
		return wire.NewPayloadError(msg.Tag, err)
	}

	if !s.knownPeers.Add(subject) {
		s.evHandler("state: ProcessBroadcastConnect: known peer[%s]: from[%s]", subject, msg.Sender)
		return nil
	}

	s.evHandler("state: ProcessBroadcastConnect: added peer[%s]: from[%s]", subject, msg.Sender)

	s.broadcast(ctx, s.newMessage(wire.TagBroadcastConnect, subject.String()), msg.Sender, subject.Host)

	return nil
}

// ProcessDisconnect removes a peer that is leaving the network and tells the
// other members.
func (s *State) ProcessDisconnect(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	leaver := peer.New(msg.SenderID, msg.Sender)

	if !s.knownPeers.Remove(leaver) {
		s.evHandler("state: ProcessDisconnect: unknown peer[%s]", leaver)
		return nil
	}

	s.evHandler("state: ProcessDisconnect: removed peer[%s]", leaver)

	s.broadcast(ctx, s.newMessage(wire.TagBroadcastDisconnect, leaver.String()), leaver.Host)

	return nil
}

// ProcessBroadcastDisconnect removes a peer announced as gone by another
// member, forwarding the announcement only on first-seen removal.
func (s *State) ProcessBroadcastDisconnect(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	subject, err := peer.ParsePeer(msg.Payload)
	if err != nil {
		return wire.NewPayloadError(msg.Tag, err)
	}

	if !s.knownPeers.Remove(subject) {
		s.evHandler("state: ProcessBroadcastDisconnect: unknown peer[%s]: from[%s]", subject, msg.Sender)
		return nil
	}

	s.evHandler("state: ProcessBroadcastDisconnect: removed peer[%s]: from[%s]", subject, msg.Sender)

	s.broadcast(ctx, s.newMessage(wire.TagBroadcastDisconnect, subject.String()), msg.Sender, subject.Host)

	return nil
}

// ProcessRequireID hands a joining miner the next free id.
func (s *State) ProcessRequireID(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	id := s.knownPeers.NextFreeID()

	s.evHandler("state: ProcessRequireID: host[%s]: id[%d]", msg.Sender, id)

	return reply(s.newMessage(wire.TagGiveID, strconv.FormatUint(uint64(id), 10)))
}

// ProcessRequireWalletID binds a wallet to this miner under the next free
// wallet id.
func (s *State) ProcessRequireWalletID(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	wallet := s.wallets.Register(msg.Sender)

	s.evHandler("state: ProcessRequireWalletID: wallet[%s]", wallet)

	return reply(s.newMessage(wire.TagGiveID, strconv.FormatUint(uint64(wallet.ID), 10)))
}

// ProcessCheck answers a liveness check.
func (s *State) ProcessCheck(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	return reply(s.newMessage(wire.TagAck, ""))
}

// ProcessIgnored logs messages that only make sense as replies, and the
// reserved tags nothing handles.
func (s *State) ProcessIgnored(ctx context.Context, msg wire.Message, reply wire.Responder) error {
	s.evHandler("state: ProcessIgnored: unsolicited message[%s]", msg)
	return nil
}

// =============================================================================

// NetCheckPeer checks the peer for liveness, retrying the configured number
// of times.
func (s *State) NetCheckPeer(ctx context.Context, pr peer.Peer) error {
	var err error
	for attempt := 0; attempt <= s.healthRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var reply wire.Message
		reply, err = s.transport.Request(ctx, pr.Host, s.newMessage(wire.TagCheck, ""))
		if err == nil {
			err = wire.ExpectTag(reply, wire.TagAck)
		}

		if err == nil {
			return nil
		}

		s.evHandler("state: NetCheckPeer: peer[%s]: attempt[%d]: WARNING: %s", pr, attempt+1, err)
	}

	return err
}

// EvictPeer removes a peer that failed its liveness check. When eviction
// gossip is enabled the rest of the network is told as well.
func (s *State) EvictPeer(ctx context.Context, pr peer.Peer) bool {
	if !s.knownPeers.Remove(pr) {
		return false
	}

	s.evHandler("state: EvictPeer: removed peer[%s]", pr)

	if s.gossipEvictions {
		s.broadcast(ctx, s.newMessage(wire.TagBroadcastDisconnect, pr.String()), pr.Host)
	}

	return true
}
