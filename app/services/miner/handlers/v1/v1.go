// Package v1 contains the full set of handler functions and routes
// supported by the v1 viewer api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/meshchain/app/services/miner/handlers/v1/viewer"
	"github.com/ardanlabs/meshchain/foundation/blockchain/state"
	"github.com/ardanlabs/meshchain/foundation/events"
	"github.com/ardanlabs/meshchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// ViewerRoutes binds all the version 1 viewer routes.
func ViewerRoutes(app *web.App, cfg Config) {
	vwr := viewer.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", vwr.Events)
	app.Handle(http.MethodGet, version, "/node/status", vwr.Status)
	app.Handle(http.MethodGet, version, "/blocks/list", vwr.Blocks)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", vwr.Blocks)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", vwr.Mempool)
}
