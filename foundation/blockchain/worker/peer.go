package worker

import (
	"context"
)

// peerOperations handles the liveness of known peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation checks every known peer and evicts the ones that don't
// answer.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop checking peers as soon as a shutdown is signaled.
	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetCheckPeer(ctx, pr); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.evHandler("worker: runPeersOperation: NetCheckPeer: %s: ERROR: %s", pr, err)
			w.state.EvictPeer(ctx, pr)
		}
	}
}
