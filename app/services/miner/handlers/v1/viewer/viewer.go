// Package viewer maintains the group of handlers for inspecting a miner.
package viewer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/meshchain/business/web/errs"
	"github.com/ardanlabs/meshchain/foundation/blockchain/peer"
	"github.com/ardanlabs/meshchain/foundation/blockchain/state"
	"github.com/ardanlabs/meshchain/foundation/events"
	"github.com/ardanlabs/meshchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of viewer endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id, ch := h.Evts.Acquire()
	defer h.Evts.Release(id)

	h.Log.Infow("websocket open", "traceid", web.GetTraceID(ctx), "subscriber", id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the current status of the miner.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock, _ := h.State.RetrieveLatestBlock()

	st := status{
		ID:                h.State.RetrieveID(),
		Host:              h.State.RetrieveHost(),
		Difficulty:        h.State.RetrieveDifficulty(),
		Blocks:            len(h.State.RetrieveBlocks()),
		LatestBlockHash:   latestBlock.Hash,
		LatestBlockNumber: latestBlock.Index,
		Uncommitted:       h.State.QueryMempoolLength(),
		KnownPeers:        toPeerInfo(h.State.RetrieveKnownPeers()),
		Wallets:           toPeerInfo(h.State.RetrieveWallets()),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Blocks returns the chain, or the blocks in the inclusive from/to range.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.RetrieveBlocks()

	fromStr := web.Param(r, "from")
	toStr := web.Param(r, "to")

	if fromStr != "" || toStr != "" {
		from, err := strconv.ParseUint(fromStr, 10, 32)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}

		to, err := strconv.ParseUint(toStr, 10, 32)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}

		blocks = h.State.QueryBlocksByIndex(uint32(from), uint32(to))
	}

	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	resp := make([]block, len(blocks))
	for i, blk := range blocks {
		resp[i] = block{
			Block:        blk,
			Transactions: blk.Transactions(),
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}

// =============================================================================

func toPeerInfo(peers []peer.Peer) []peerInfo {
	infos := make([]peerInfo, len(peers))
	for i, pr := range peers {
		infos[i] = peerInfo{
			ID:   pr.ID,
			Host: pr.Host,
		}
	}
	return infos
}
