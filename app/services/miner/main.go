package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/meshchain/app/services/miner/handlers"
	"github.com/ardanlabs/meshchain/foundation/blockchain/p2p"
	"github.com/ardanlabs/meshchain/foundation/blockchain/state"
	"github.com/ardanlabs/meshchain/foundation/blockchain/worker"
	"github.com/ardanlabs/meshchain/foundation/events"
	"github.com/ardanlabs/meshchain/foundation/logger"
	"github.com/ardanlabs/meshchain/foundation/validate"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

// Set of modes a miner can start in.
const (
	modeCreate = "create"
	modeJoin   = "join"
)

func main() {

	// Construct the application logger.
	log, err := logger.New("MINER")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			CORSOrigins     []string      `conf:"default:*,help:origins of pages allowed to read the viewer API"`
		}
		Miner struct {
			Mode            string        `conf:"default:create,help:create a new network or join an existing one" json:"mode"`
			Host            string        `conf:"default:127.0.0.1:6000" json:"host" validate:"required,hostname_port,max=21"`
			Peer            string        `conf:"help:host of a member of the network to join" json:"peer" validate:"omitempty,hostname_port,max=21"`
			PoolCapacity    int           `conf:"default:5" json:"pool_capacity" validate:"gte=1"`
			Difficulty      uint          `conf:"default:1" json:"difficulty" validate:"lte=64"`
			HealthInterval  time.Duration `conf:"default:15s" json:"health_interval" validate:"gt=0"`
			HealthRetries   int           `conf:"default:1" json:"health_retries" validate:"gte=0"`
			GossipEvictions bool          `conf:"default:true"`
			JoinTimeout     time.Duration `conf:"default:10s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "meshchain miner",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "MINER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// An unknown mode is a usage problem, not a failure.
	switch cfg.Miner.Mode {
	case modeCreate, modeJoin:
	default:
		usage, err := conf.UsageInfo(prefix, &cfg)
		if err != nil {
			return fmt.Errorf("generating usage: %w", err)
		}
		fmt.Printf("unknown mode %q, expecting %q or %q\n\n%s\n", cfg.Miner.Mode, modeCreate, modeJoin, usage)
		return nil
	}

	if err := validate.Check(cfg.Miner); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if cfg.Miner.Mode == modeJoin && cfg.Miner.Peer == "" {
		return errors.New("validating config: joining requires a peer")
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the miner and manages the registry, the
	// pending pool and the chain.
	st := state.New(state.Config{
		Host:            cfg.Miner.Host,
		PoolCapacity:    cfg.Miner.PoolCapacity,
		Difficulty:      cfg.Miner.Difficulty,
		HealthRetries:   cfg.Miner.HealthRetries,
		GossipEvictions: cfg.Miner.GossipEvictions,
		EvHandler:       ev,
	})

	// =========================================================================
	// Start P2P Service

	// The listener must be up before joining since the network starts talking
	// to this miner as soon as it is a member.
	srv, err := p2p.Listen(p2p.Config{
		Host: cfg.Miner.Host,
		Mux:  handlers.WireMux(st),
		Log:  log,
	})
	if err != nil {
		return fmt.Errorf("starting p2p listener: %w", err)
	}

	// Make a channel to listen for errors coming from the listeners. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 2)

	go func() {
		log.Infow("startup", "status", "p2p listener started", "host", srv.Addr())
		serverErrors <- srv.Serve()
	}()

	if cfg.Miner.Mode == modeJoin {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Miner.JoinTimeout)
		err := st.Join(ctx, cfg.Miner.Peer)
		cancel()

		if err != nil {
			srv.Shutdown(context.Background())
			return fmt.Errorf("joining network through %s: %w", cfg.Miner.Peer, err)
		}

		log.Infow("startup", "status", "joined network", "peer", cfg.Miner.Peer, "id", st.RetrieveID())
	}

	// The worker package implements mining and peer liveness. The worker will
	// register itself with the state.
	worker.Run(st, cfg.Miner.HealthInterval, ev)

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// =========================================================================
	// Start Viewer Service

	log.Infow("startup", "status", "initializing V1 viewer API support")

	viewer := http.Server{
		Addr: cfg.Web.DebugHost,
		Handler: handlers.ViewerMux(handlers.MuxConfig{
			Shutdown:    shutdown,
			Log:         log,
			State:       st,
			Evts:        evts,
			CORSOrigins: cfg.Web.CORSOrigins,
		}),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "viewer api router started", "host", viewer.Addr)
		serverErrors <- viewer.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		st.Shutdown(context.Background())
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding work a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Stop mining and tell the network this miner is leaving.
		log.Infow("shutdown", "status", "leaving network")
		if err := st.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not leave the network gracefully: %w", err)
		}

		log.Infow("shutdown", "status", "shutdown p2p listener started")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop p2p listener gracefully: %w", err)
		}

		log.Infow("shutdown", "status", "shutdown viewer API started")
		if err := viewer.Shutdown(ctx); err != nil {
			viewer.Close()
			return fmt.Errorf("could not stop viewer service gracefully: %w", err)
		}
	}

	return nil
}
