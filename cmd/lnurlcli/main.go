package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/lnurld/node"
	"github.com/the-lightning-land/lnurld/payer"
	"github.com/urfave/cli"
)

const defaultTimeout = time.Minute

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	date string
)

// newNode builds the wallet node selected by the global flags.
func newNode(c *cli.Context) (node.Node, error) {
	switch c.GlobalString("node") {
	case "lnd":
		macaroon, err := os.ReadFile(c.GlobalString("lnd.macaroonpath"))
		if err != nil {
			return nil, errors.Errorf("Could not read macaroon: %v", err)
		}

		cert, err := os.ReadFile(c.GlobalString("lnd.tlscertpath"))
		if err != nil {
			return nil, errors.Errorf("Could not read tls cert: %v", err)
		}

		return node.NewLndNode(&node.LndNodeConfig{
			Uri:           c.GlobalString("lnd.rpcserver"),
			CertBytes:     cert,
			MacaroonBytes: macaroon,
			Timeout:       c.GlobalDuration("timeout"),
		})
	case "clightning":
		return node.NewCLightningNode(&node.CLightningNodeConfig{
			RpcPath: c.GlobalString("clightning.rpcpath"),
			Timeout: c.GlobalDuration("timeout"),
		}), nil
	case "mock":
		return node.NewMockNode(&node.MockNodeConfig{})
	default:
		return nil, errors.Errorf("Unknown node type %v", c.GlobalString("node"))
	}
}

// withPayer runs action with a payer on a started node.
func withPayer(action func(ctx context.Context, c *cli.Context, p *payer.Payer) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		n, err := newNode(c)
		if err != nil {
			return err
		}

		if err := n.Start(); err != nil {
			return errors.Errorf("Could not start node: %v", err)
		}

		defer n.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
		defer cancel()

		p := payer.New(&payer.Config{
			Node:         n,
			LocalMinMsat: c.GlobalUint64("localmin"),
			LocalMaxMsat: c.GlobalUint64("localmax"),
			Logger:       log.StandardLogger().WithField("system", "payer"),
		})

		return action(ctx, c, p)
	}
}

func printJSON(c *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Errorf("Could not render response: %v", err)
	}

	fmt.Fprintln(c.App.Writer, string(out))

	return nil
}

func fetchAction(ctx context.Context, c *cli.Context, p *payer.Payer) error {
	if c.NArg() < 1 {
		return errors.New("missing lnurl")
	}

	res, err := p.Fetch(ctx, c.Args().Get(0))
	if err != nil {
		return errors.Errorf("Could not fetch %v: %v", c.Args().Get(0), err)
	}

	return printJSON(c, res)
}

func payAction(ctx context.Context, c *cli.Context, p *payer.Payer) error {
	if c.NArg() < 1 {
		return errors.New("missing lnurl or lightning address")
	}

	quote, err := p.Quote(ctx, c.Args().Get(0))
	if err != nil {
		return errors.Errorf("Could not get pay offer: %v", err)
	}

	fmt.Fprintln(c.App.Writer, quote)

	// without an amount only the offer is shown
	if c.NArg() < 2 {
		return nil
	}

	amountMsat, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return errors.Errorf("Invalid amount %q: %v", c.Args().Get(1), err)
	}

	payment, err := p.Pay(ctx, quote, amountMsat)
	if err != nil {
		return errors.Errorf("Could not pay: %v", err)
	}

	return printJSON(c, map[string]interface{}{
		"payment_hash":     hex.EncodeToString(payment.PaymentHash),
		"payment_preimage": hex.EncodeToString(payment.PaymentPreimage),
		"amount_msat":      payment.AmountMsat,
	})
}

func channelAction(ctx context.Context, c *cli.Context, p *payer.Payer) error {
	if c.NArg() < 2 {
		return errors.New("missing lnurl or amount")
	}

	amountSat, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
	if err != nil || amountSat <= 0 {
		return errors.Errorf("Invalid amount %q", c.Args().Get(1))
	}

	res, err := p.OpenChannel(ctx, c.Args().Get(0), amountSat, c.Bool("private"))
	if err != nil {
		return errors.Errorf("Could not request channel: %v", err)
	}

	return printJSON(c, res)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "lnurlcli"
	app.Usage = "pay and request channels from LNURL services"
	app.EnableBashCompletion = true
	app.Version = version

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("version=%s commit=%s date=%s\n", version, commit, date)
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "node",
			Value: "lnd",
			Usage: "wallet node: lnd, clightning or mock",
		},
		cli.StringFlag{
			Name:  "lnd.rpcserver",
			Value: "localhost:10009",
		},
		cli.StringFlag{
			Name:  "lnd.macaroonpath",
			Value: "admin.macaroon",
		},
		cli.StringFlag{
			Name:  "lnd.tlscertpath",
			Value: "tls.cert",
		},
		cli.StringFlag{
			Name:  "clightning.rpcpath",
			Value: "lightning-rpc",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: defaultTimeout,
		},
		cli.Uint64Flag{
			Name:  "localmin",
			Value: payer.DefaultLocalMinMsat,
			Usage: "smallest amount the wallet sends in msat",
		},
		cli.Uint64Flag{
			Name:  "localmax",
			Value: payer.DefaultLocalMaxMsat,
			Usage: "largest amount the wallet sends in msat",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "fetch",
			ArgsUsage: "[lnurl]",
			Aliases:   []string{"f"},
			Usage:     "show the raw response behind an lnurl",
			Action:    withPayer(fetchAction),
		},
		{
			Name:      "pay",
			ArgsUsage: "[lnurl|address] [amt_msat]",
			Aliases:   []string{"p"},
			Usage:     "show a pay offer and pay it when an amount is given",
			Action:    withPayer(payAction),
		},
		{
			Name:      "channel",
			ArgsUsage: "[lnurl] [amt_sat]",
			Aliases:   []string{"c"},
			Usage:     "ask a service to open a channel to the wallet node",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "private",
					Usage: "request an unannounced channel",
				},
			},
			Action: withPayer(channelAction),
		},
	}

	return app
}

// lnurlcliMain is the true entry point for lnurlcli. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func lnurlcliMain() error {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	return newApp().Run(os.Args)
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := lnurlcliMain(); err != nil {
		log.WithError(err).Println("Failed running lnurlcli.")
		os.Exit(1)
	}
}
