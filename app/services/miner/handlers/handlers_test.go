package handlers_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/meshchain/app/services/miner/handlers"
	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/p2p"
	"github.com/ardanlabs/meshchain/foundation/blockchain/state"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wallet"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
	"github.com/ardanlabs/meshchain/foundation/blockchain/worker"
	"github.com/ardanlabs/meshchain/foundation/events"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// freeHost returns a loopback address nothing is listening on.
func freeHost(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	defer l.Close()

	return l.Addr().String()
}

// waitFor polls the condition until it holds or the timeout expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

// =============================================================================

func Test_WireMux(t *testing.T) {
	t.Log("Given the need to route every protocol tag.")
	{
		st := state.New(state.Config{Host: "127.0.0.1:7001", Transport: p2p.NewMemNetwork()})
		mux := handlers.WireMux(st)

		t.Logf("\tTest 0:\tWhen building the miner routes.")
		{
			if n := mux.Tags(); n != 16 {
				t.Fatalf("\t%s\tTest 0:\tShould register all 16 tags: got %d", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould register all 16 tags.", success)

			reply := func(wire.Message) error { return nil }
			for _, tag := range []wire.Tag{wire.TagOk, wire.TagAck, wire.TagMineTransaction, wire.TagOkMineTransaction} {
				if err := mux.Dispatch(context.Background(), wire.NewMessage(tag, "127.0.0.1:7002", 1, ""), reply); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould ignore %s: %v", failed, tag, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould ignore unsolicited replies and reserved tags.", success)
		}
	}
}

func Test_Flood(t *testing.T) {
	const miners = 8

	t.Log("Given the need to gossip joins without flooding the network.")
	{
		mem := p2p.NewMemNetwork()

		var states []*state.State
		for i := 0; i < miners; i++ {
			host := fmt.Sprintf("127.0.0.1:%d", 7000+i)
			st := state.New(state.Config{Host: host, Transport: mem, GossipEvictions: true})
			mem.Attach(host, handlers.WireMux(st))
			states = append(states, st)
		}

		t.Logf("\tTest 0:\tWhen %d miners join through random members.", miners-1)
		{
			for i := 1; i < miners; i++ {
				before := mem.Sent(wire.TagBroadcastConnect)

				// Join through a member picked in a fixed but scattered order.
				contact := states[(i*7+3)%i]

				if err := states[i].Join(context.Background(), contact.RetrieveHost()); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to join: %v", failed, err)
				}

				// n members other than the joiner: the contact announces to
				// n-1 of them and each of those forwards once to at most n-2.
				n := i
				if sent := mem.Sent(wire.TagBroadcastConnect) - before; sent > (n-1)*(n-1) {
					t.Logf("\t\tTest 0:\tgot: %d", sent)
					t.Logf("\t\tTest 0:\texp: <= %d", (n-1)*(n-1))
					t.Fatalf("\t%s\tTest 0:\tShould forward each announcement at most once per miner.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould forward each announcement at most once per miner.", success)

			exp := states[0].RetrieveRegistry()
			if len(exp) != miners {
				t.Fatalf("\t%s\tTest 0:\tShould register every miner: got %d", failed, len(exp))
			}

			for _, st := range states {
				if got := st.RetrieveRegistry(); !slices.Equal(got, exp) {
					t.Logf("\t\tTest 0:\tgot: %v", got)
					t.Logf("\t\tTest 0:\texp: %v", exp)
					t.Fatalf("\t%s\tTest 0:\tShould converge on %s.", failed, st.RetrieveHost())
				}
			}
			t.Logf("\t%s\tTest 0:\tShould converge to the same registry everywhere.", success)
		}
	}
}

func Test_EndToEnd(t *testing.T) {
	const poolCapacity = 5

	t.Log("Given the need to run miners and a wallet over TCP.")
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		type miner struct {
			state *state.State
			srv   *p2p.Server
		}

		start := func(host string, peerHost string) miner {
			st := state.New(state.Config{
				Host:            host,
				PoolCapacity:    poolCapacity,
				Difficulty:      1,
				HealthRetries:   1,
				GossipEvictions: true,
			})

			srv, err := p2p.Listen(p2p.Config{Host: host, Mux: handlers.WireMux(st)})
			if err != nil {
				t.Fatalf("listen %s: %v", host, err)
			}
			go srv.Serve()

			if peerHost != "" {
				if err := st.Join(ctx, peerHost); err != nil {
					t.Fatalf("join %s: %v", host, err)
				}
			}

			worker.Run(st, time.Hour, nil)

			t.Cleanup(func() {
				st.Shutdown(context.Background())
				srv.Shutdown(context.Background())
			})

			return miner{state: st, srv: srv}
		}

		a := start(freeHost(t), "")
		b := start(freeHost(t), a.state.RetrieveHost())

		t.Logf("\tTest 0:\tWhen B joins A.")
		{
			if a.state.RetrieveID() != 0 || b.state.RetrieveID() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould assign ids 0 and 1.", failed)
			}

			// A records B right after replying to the connect.
			shared := waitFor(5*time.Second, func() bool {
				return slices.Equal(a.state.RetrieveRegistry(), b.state.RetrieveRegistry())
			})
			if !shared {
				t.Fatalf("\t%s\tTest 0:\tShould share the registry.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould share the registry.", success)
		}

		w, err := wallet.New(ctx, wallet.Config{
			Host:  "127.0.0.1:9999",
			Miner: a.state.RetrieveHost(),
		})
		if err != nil {
			t.Fatalf("\t%s\tShould register a wallet: %v", failed, err)
		}

		t.Logf("\tTest 1:\tWhen the wallet fills the pool.")
		{
			txs := []string{"alice pays bob 5", "bob pays carol 2", "carol pays dave 7", "dave pays erin 1", "erin pays alice 3"}

			for i, tx := range txs {
				if err := w.Send(ctx, tx); err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould send %q: %v", failed, tx, err)
				}

				if i == len(txs)-1 {
					break
				}

				// Pool each one on both miners first so they agree on the order.
				pooled := waitFor(5*time.Second, func() bool {
					return a.state.QueryMempoolLength() == i+1 && b.state.QueryMempoolLength() == i+1
				})
				if !pooled {
					t.Fatalf("\t%s\tTest 1:\tShould pool %q on both miners.", failed, tx)
				}
			}

			converged := waitFor(20*time.Second, func() bool {
				tipA, okA := a.state.RetrieveLatestBlock()
				tipB, okB := b.state.RetrieveLatestBlock()
				return okA && okB && tipA.Hash == tipB.Hash && a.state.QueryMempoolLength() == 0 && b.state.QueryMempoolLength() == 0
			})
			if !converged {
				t.Fatalf("\t%s\tTest 1:\tShould seal a block on both miners.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould seal a block on both miners.", success)

			exp := strings.Join(txs, database.Separator)
			for _, m := range []miner{a, b} {
				blocks := m.state.RetrieveBlocks()
				if len(blocks) != 1 || blocks[0].Index != 0 || blocks[0].Payload != exp {
					t.Logf("\t\tTest 1:\tgot: %v", blocks)
					t.Logf("\t\tTest 1:\texp: %s", exp)
					t.Fatalf("\t%s\tTest 1:\tShould hold one block sealing every transaction on %s.", failed, m.state.RetrieveHost())
				}
			}
			t.Logf("\t%s\tTest 1:\tShould hold one block sealing every transaction in order.", success)
		}

		t.Logf("\tTest 2:\tWhen the wallet verifies its transactions.")
		{
			ok, err := w.Verify(ctx, "alice pays bob 5")
			if err != nil || !ok {
				t.Fatalf("\t%s\tTest 2:\tShould verify a sealed transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould verify a sealed transaction.", success)

			ok, err = w.Verify(ctx, "carol pays dave 1")
			if err != nil || ok {
				t.Fatalf("\t%s\tTest 2:\tShould not verify an unknown transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould not verify an unknown transaction.", success)
		}

		t.Logf("\tTest 3:\tWhen C joins late through B.")
		{
			c := start(freeHost(t), b.state.RetrieveHost())

			tipA, _ := a.state.RetrieveLatestBlock()
			tipC, ok := c.state.RetrieveLatestBlock()
			if !ok || tipC.Hash != tipA.Hash {
				t.Fatalf("\t%s\tTest 3:\tShould catch up with the chain.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould catch up with the chain.", success)

			// A hears about C from B after C's join returns.
			registered := waitFor(5*time.Second, func() bool {
				return len(a.state.RetrieveRegistry()) == 3 && len(c.state.RetrieveRegistry()) == 3
			})
			if !registered {
				t.Fatalf("\t%s\tTest 3:\tShould register C everywhere.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould register C everywhere.", success)
		}
	}
}

func Test_Viewer(t *testing.T) {
	t.Log("Given the need to inspect a miner over HTTP.")
	{
		st := state.New(state.Config{Host: "127.0.0.1:7001", Transport: p2p.NewMemNetwork(), PoolCapacity: 1})
		if _, _, err := st.UpsertMempool("tx1"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := st.MineNewBlock(context.Background()); err != nil {
			t.Fatalf("mine: %v", err)
		}

		app := handlers.ViewerMux(handlers.MuxConfig{
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			State:    st,
			Evts:     events.New(),
		})

		tt := []struct {
			path   string
			status int
		}{
			{"/", http.StatusOK},
			{"/v1/node/status", http.StatusOK},
			{"/v1/blocks/list", http.StatusOK},
			{"/v1/blocks/list/0/0", http.StatusOK},
			{"/v1/blocks/list/4/9", http.StatusNoContent},
			{"/v1/blocks/list/zero/1", http.StatusBadRequest},
			{"/v1/tx/uncommitted/list", http.StatusOK},
		}

		t.Logf("\tTest 0:\tWhen calling every viewer route.")
		{
			for _, tst := range tt {
				r := httptest.NewRequest(http.MethodGet, tst.path, nil)
				w := httptest.NewRecorder()
				app.ServeHTTP(w, r)

				if w.Code != tst.status {
					t.Logf("\t\tTest 0:\tgot: %d", w.Code)
					t.Logf("\t\tTest 0:\texp: %d", tst.status)
					t.Fatalf("\t%s\tTest 0:\tShould answer %s.", failed, tst.path)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould answer every route.", success)
		}
	}
}

func Test_ViewerCors(t *testing.T) {
	t.Log("Given the need to let allowed pages read the viewer API.")
	{
		app := handlers.ViewerMux(handlers.MuxConfig{
			Shutdown:    make(chan os.Signal, 1),
			Log:         zap.NewNop().Sugar(),
			State:       state.New(state.Config{Host: "127.0.0.1:7001", Transport: p2p.NewMemNetwork()}),
			Evts:        events.New(),
			CORSOrigins: []string{"http://localhost:3000"},
		})

		tt := []struct {
			name   string
			method string
			path   string
			origin string
			status int
			allow  string
		}{
			{"allowed", http.MethodGet, "/v1/node/status", "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
			{"other", http.MethodGet, "/v1/node/status", "http://evil.example", http.StatusOK, ""},
			{"no-origin", http.MethodGet, "/v1/node/status", "", http.StatusOK, ""},
			{"preflight", http.MethodOptions, "/v1/preflight", "http://localhost:3000", http.StatusNoContent, "http://localhost:3000"},
		}

		t.Logf("\tTest 0:\tWhen pages from different origins call the API.")
		{
			for _, tst := range tt {
				r := httptest.NewRequest(tst.method, tst.path, nil)
				if tst.origin != "" {
					r.Header.Set("Origin", tst.origin)
				}
				w := httptest.NewRecorder()
				app.ServeHTTP(w, r)

				if w.Code != tst.status {
					t.Logf("\t\tTest 0:\tgot: %d", w.Code)
					t.Logf("\t\tTest 0:\texp: %d", tst.status)
					t.Fatalf("\t%s\tTest 0:\tShould answer the %s request.", failed, tst.name)
				}

				if got := w.Header().Get("Access-Control-Allow-Origin"); got != tst.allow {
					t.Logf("\t\tTest 0:\tgot: %q", got)
					t.Logf("\t\tTest 0:\texp: %q", tst.allow)
					t.Fatalf("\t%s\tTest 0:\tShould set the allowed origin for the %s request.", failed, tst.name)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould only allow the configured origins.", success)
		}
	}
}
