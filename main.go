package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/lnurld/api"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/challenge/valkey"
	"github.com/the-lightning-land/lnurld/channel"
	"github.com/the-lightning-land/lnurld/connectivity"
	"github.com/the-lightning-land/lnurld/events"
	"github.com/the-lightning-land/lnurld/lnurldb"
	"github.com/the-lightning-land/lnurld/node"
	"github.com/the-lightning-land/lnurld/payrequest"
	"github.com/the-lightning-land/lnurld/server"
	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// Commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// Version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// Date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// subsystemLogger shares the standard logger, so --debug applies to it.
func subsystemLogger(system string) *log.Entry {
	return log.StandardLogger().WithField("system", system)
}

func newNode(cfg *config) (node.Node, error) {
	nodeLogger := subsystemLogger("node")

	switch cfg.Node {
	case "lnd":
		macaroon, err := os.ReadFile(cfg.LndNode.MacaroonPath)
		if err != nil {
			return nil, errors.Errorf("Could not read macaroon: %v", err)
		}

		cert, err := os.ReadFile(cfg.LndNode.TlsCertPath)
		if err != nil {
			return nil, errors.Errorf("Could not read tls cert: %v", err)
		}

		log.Infof("Using lnd node at %v", cfg.LndNode.RpcServer)

		return node.NewLndNode(&node.LndNodeConfig{
			Uri:           cfg.LndNode.RpcServer,
			CertBytes:     cert,
			MacaroonBytes: macaroon,
			Timeout:       cfg.NodeTimeout,
			Logger:        nodeLogger,
		})
	case "clightning":
		log.Infof("Using Core Lightning node at %v", cfg.CLightningNode.RpcPath)

		return node.NewCLightningNode(&node.CLightningNodeConfig{
			RpcPath: cfg.CLightningNode.RpcPath,
			Timeout: cfg.NodeTimeout,
			Logger:  nodeLogger,
		}), nil
	case "mock":
		log.Info("Using a mock node.")

		return node.NewMockNode(&node.MockNodeConfig{
			Host:   cfg.MockNode.Host,
			Port:   cfg.MockNode.Port,
			Logger: nodeLogger,
		})
	default:
		return nil, errors.Errorf("Unknown node type %v", cfg.Node)
	}
}

// lnurldMain is the true entry point for lnurld. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func lnurldMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// lnurld.db stores the invoice ledger and, with --store=bolt, challenges
	db, err := lnurldb.Open(cfg.DataDir)
	if err != nil {
		return errors.Errorf("Could not open lnurld.db: %v", err)
	}

	log.Infof("Opened lnurld.db")

	defer func() {
		err := db.Close()
		if err != nil {
			log.Errorf("Could not close lnurld.db: %v", err)
		} else {
			log.Info("Closed lnurld.db.")
		}
	}()

	var store challenge.Store

	switch cfg.Store {
	case "memory":
		store = challenge.NewMemoryStore()

		log.Info("Storing challenges in memory.")
	case "bolt":
		store = db.ChallengeStore()

		log.Info("Storing challenges in lnurld.db.")
	case "valkey":
		valkeyStore, err := valkey.New(context.Background(), &valkey.Config{
			URL:    cfg.Valkey.Url,
			Prefix: cfg.Valkey.Prefix,
		})
		if err != nil {
			return errors.Errorf("Could not connect to valkey: %v", err)
		}

		defer func() {
			err := valkeyStore.Close()
			if err != nil {
				log.Errorf("Could not close valkey connection: %v", err)
			}
		}()

		store = valkeyStore

		log.Info("Storing challenges in valkey.")
	default:
		return errors.Errorf("Unknown store type %v", cfg.Store)
	}

	n, err := newNode(cfg)
	if err != nil {
		return errors.Errorf("Could not create node: %v", err)
	}

	broker := events.NewBroker(64)

	registry := challenge.NewRegistry(&challenge.RegistryConfig{
		Store:  store,
		TTL:    cfg.ChallengeTTL,
		Logger: subsystemLogger("challenge"),
	})

	pay, err := payrequest.New(&payrequest.Config{
		Node:            n,
		Callback:        api.PayCallbackUrl(cfg.PublicUrl),
		MinSendableMsat: cfg.Pay.MinSendable,
		MaxSendableMsat: cfg.Pay.MaxSendable,
		Description:     cfg.Pay.Description,
		NodeTimeout:     cfg.NodeTimeout,
		Ledger:          db,
		Events:          broker,
		Logger:          subsystemLogger("payrequest"),
	})
	if err != nil {
		return errors.Errorf("Could not create pay request service: %v", err)
	}

	channels := channel.New(&channel.Config{
		Node:          n,
		Registry:      registry,
		Callback:      api.ChannelCallbackUrl(cfg.PublicUrl),
		AdvertisedUri: cfg.Channel.AdvertisedUri,
		ConnectPeer:   cfg.Channel.ConnectPeer,
		NodeTimeout:   cfg.NodeTimeout,
		Events:        broker,
		Logger:        subsystemLogger("channel"),
	})

	monitor := connectivity.NewMonitor(&connectivity.Config{
		Probe: func(ctx context.Context) error {
			_, err := n.GetIdentity(ctx)
			return err
		},
		Interval: cfg.ProbeInterval,
		Events:   broker,
		Logger:   subsystemLogger("connectivity"),
	})

	a := api.New(&api.Config{
		PublicUrl:           cfg.PublicUrl,
		Channels:            channels,
		Pay:                 pay,
		Registry:            registry,
		Reporter:            monitor,
		Events:              broker,
		Invoices:            db,
		WellKnownDir:        cfg.WellKnownDir,
		MaxFundingSat:       cfg.Channel.MaxFundingSat,
		MaxWithdrawableMsat: cfg.Withdraw.MaxWithdrawable,
		WithdrawDescription: cfg.Withdraw.Description,
		Logger:              subsystemLogger("api"),
	})

	log.Infof("Created API for %v", cfg.PublicUrl)

	// central controller for everything lnurld does
	s := server.New(&server.Config{
		Node:           n,
		Handler:        a,
		Monitor:        monitor,
		Registry:       registry,
		Listeners:      cfg.Listeners,
		MaxConnections: cfg.MaxConnections,
		Logger:         subsystemLogger("server"),
	})

	// Handle interrupt signals correctly
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Info(sig)
		log.Info("Received an interrupt, stopping lnurld...")
		s.Shutdown()
	}()

	// blocks until the server is shut down
	err = s.Run()
	if err != nil {
		return errors.Errorf("Failed running lnurld: %v", err)
	}

	// finish with no error
	return nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := lnurldMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			log.WithError(err).Println("Failed running lnurld.")
		}
		os.Exit(1)
	}
}
