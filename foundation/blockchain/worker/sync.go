package worker

import (
	"context"
	"time"
)

// syncTimeout bounds the time spent pulling blocks from one peer.
const syncTimeout = 30 * time.Second

// Sync pulls the chain of the known peers so a miner that joins late starts
// mining on top of the network's tip.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		err := w.state.NetRequestPeerBlocks(ctx, pr)
		cancel()

		if err != nil {
			w.evHandler("worker: sync: NetRequestPeerBlocks: %s: ERROR: %s", pr, err)
			continue
		}
	}
}
