package mid

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ardanlabs/meshchain/foundation/web"
)

// corsMaxAge is how long a browser may cache a preflight answer.
const corsMaxAge = 10 * time.Minute

// Cors lets browser pages served from the allowed origins read the viewer
// API. The viewer is read only, so only GET is ever allowed. An origin of "*"
// allows every page. Requests from other origins are still served, they just
// carry no CORS headers and the browser keeps the response from the page.
func Cors(origins []string) web.Middleware {
	all := slices.Contains(origins, "*")

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")

			switch {
			case origin == "":
			case all:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			default:
				return handler(ctx, w, r)
			}

			if origin != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			}

			// Answer the preflight here, nothing behind it needs to run.
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(corsMaxAge.Seconds())))
				return web.Respond(ctx, w, nil, http.StatusNoContent)
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
