// Package handlers binds the wire protocol and the viewer API of a miner to
// the state that processes them.
package handlers

import (
	"context"
	"net/http"
	"os"

	v1 "github.com/ardanlabs/meshchain/app/services/miner/handlers/v1"
	"github.com/ardanlabs/meshchain/business/web/mid"
	"github.com/ardanlabs/meshchain/foundation/blockchain/p2p"
	"github.com/ardanlabs/meshchain/foundation/blockchain/state"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
	"github.com/ardanlabs/meshchain/foundation/events"
	"github.com/ardanlabs/meshchain/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown    chan os.Signal
	Log         *zap.SugaredLogger
	State       *state.State
	Evts        *events.Events
	CORSOrigins []string
}

// WireMux binds every protocol tag to the state function processing it.
func WireMux(st *state.State) *p2p.Mux {
	mux := p2p.NewMux()

	// Membership.
	mux.Handle(wire.TagConnect, st.ProcessConnect)
	mux.Handle(wire.TagDisconnect, st.ProcessDisconnect)
	mux.Handle(wire.TagRequireID, st.ProcessRequireID)
	mux.Handle(wire.TagBroadcastConnect, st.ProcessBroadcastConnect)
	mux.Handle(wire.TagBroadcastDisconnect, st.ProcessBroadcastDisconnect)
	mux.Handle(wire.TagCheck, st.ProcessCheck)

	// Mining and replication.
	mux.Handle(wire.TagTransaction, st.ProcessTransaction)
	mux.Handle(wire.TagBlock, st.ProcessBlock)
	mux.Handle(wire.TagRequireWalletID, st.ProcessRequireWalletID)
	mux.Handle(wire.TagRequireBlockchain, st.ProcessRequireBlockchain)

	// Replies arriving on their own and the reserved tags.
	mux.Handle(wire.TagOk, st.ProcessIgnored)
	mux.Handle(wire.TagGiveID, st.ProcessIgnored)
	mux.Handle(wire.TagAck, st.ProcessIgnored)
	mux.Handle(wire.TagSendBlockchain, st.ProcessIgnored)
	mux.Handle(wire.TagMineTransaction, st.ProcessIgnored)
	mux.Handle(wire.TagOkMineTransaction, st.ProcessIgnored)

	return mux
}

// ViewerMux constructs a http.Handler with the viewer routes defined.
func ViewerMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Cors(cfg.CORSOrigins),
		mid.Panics(),
	)

	// Accept CORS 'OPTIONS' preflight requests. The Cors middleware answers
	// them before this handler runs.
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", h)

	// Register the index page for the website.
	app.Handle(http.MethodGet, "", "/", index)

	// Load the v1 routes.
	v1.ViewerRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	})

	return app
}
