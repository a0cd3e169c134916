package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/the-lightning-land/lnurld/payrequest"
)

const (
	defaultRPCPort         = 5000
	defaultConfigFilename  = "lnurld.conf"
	defaultDataDir         = "~/.lnurld"
	defaultMaxWithdrawable = 100000
)

type lndNodeConfig struct {
	RpcServer    string `long:"rpcserver" description:"host:port of ln daemon"`
	MacaroonPath string `long:"macaroonpath" description:"path to macaroon file"`
	TlsCertPath  string `long:"tlscertpath" description:"path to TLS certificate"`
}

type cLightningNodeConfig struct {
	RpcPath string `long:"rpcpath" description:"path to the lightning-rpc unix socket"`
}

type mockNodeConfig struct {
	Host string `long:"host" description:"host the mock node advertises"`
	Port int    `long:"port" description:"port the mock node advertises"`
}

type payConfig struct {
	MinSendable uint64 `long:"minsendable" description:"smallest payable amount in msat"`
	MaxSendable uint64 `long:"maxsendable" description:"largest payable amount in msat"`
	Description string `long:"description" description:"text/plain description committed to by invoices"`
}

type channelConfig struct {
	MaxFundingSat int64  `long:"maxfundingsat" description:"largest channel that will be funded in sat, 0 means no limit"`
	AdvertisedUri string `long:"advertiseduri" description:"node uri handed to wallets instead of the one reported by the node"`
	ConnectPeer   bool   `long:"connectpeer" description:"connect to the wallet before funding a channel"`
}

type withdrawConfig struct {
	MaxWithdrawable uint64 `long:"maxwithdrawable" description:"largest amount offered by withdraw requests in msat"`
	Description     string `long:"description" description:"default description of withdraw requests"`
}

type valkeyConfig struct {
	Url    string `long:"url" description:"redis:// url of the valkey server holding challenges"`
	Prefix string `long:"prefix" description:"prefix of challenge keys"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Enable profiling and listen on the given address"`
}

type config struct {
	ShowVersion    bool          `short:"v" long:"version" description:"Display version information and exit."`
	Debug          bool          `long:"debug" description:"Start in debug mode."`
	DataDir        string        `long:"datadir" description:"The directory to store lnurld's data within"`
	ConfigFile     string        `long:"configfile" description:"Path to an optional INI configuration file"`
	RawListeners   []string      `long:"listen" description:"Add an interface/port/socket to listen for LNURL requests"`
	Listeners      []net.Addr    `no-flag:"true"`
	RawPublicUrl   string        `long:"publicurl" description:"Base url wallets reach this daemon at"`
	PublicUrl      *url.URL      `no-flag:"true"`
	Node           string        `long:"node" description:"The lightning node that should be used." choice:"lnd" choice:"clightning" choice:"mock"`
	NodeTimeout    time.Duration `long:"nodetimeout" description:"Timeout of a single call to the node"`
	ChallengeTTL   time.Duration `long:"challengettl" description:"How long an issued k1 stays redeemable"`
	Store          string        `long:"store" description:"Where challenges are stored." choice:"memory" choice:"bolt" choice:"valkey"`
	WellKnownDir   string        `long:"wellknowndir" description:"Directory with one lightning address document per user"`
	MaxConnections int           `long:"maxconnections" description:"Maximum concurrent connections per listener, 0 means no limit"`
	ProbeInterval  time.Duration `long:"probeinterval" description:"How often the node is checked for reachability"`

	LndNode        *lndNodeConfig        `group:"LND" namespace:"lnd"`
	CLightningNode *cLightningNodeConfig `group:"Core Lightning" namespace:"clightning"`
	MockNode       *mockNodeConfig       `group:"Mock" namespace:"mock"`
	Pay            *payConfig            `group:"Pay" namespace:"pay"`
	Channel        *channelConfig        `group:"Channel" namespace:"channel"`
	Withdraw       *withdrawConfig       `group:"Withdraw" namespace:"withdraw"`
	Valkey         *valkeyConfig         `group:"Valkey" namespace:"valkey"`
	Profiling      *profilingConfig      `group:"Profiling" namespace:"profiling"`
}

func defaultConfig() config {
	return config{
		Debug:        false,
		DataDir:      defaultDataDir,
		Node:         "lnd",
		NodeTimeout:  30 * time.Second,
		ChallengeTTL: 5 * time.Minute,
		Store:        "memory",
		RawPublicUrl: fmt.Sprintf("http://localhost:%d", defaultRPCPort),
		LndNode: &lndNodeConfig{
			RpcServer:    "localhost:10009",
			MacaroonPath: "admin.macaroon",
			TlsCertPath:  "tls.cert",
		},
		CLightningNode: &cLightningNodeConfig{
			RpcPath: "~/.lightning/regtest/lightning-rpc",
		},
		MockNode: &mockNodeConfig{
			Host: "127.0.0.1",
			Port: 9735,
		},
		Pay: &payConfig{
			MinSendable: payrequest.DefaultMinSendableMsat,
			MaxSendable: payrequest.DefaultMaxSendableMsat,
			Description: payrequest.DefaultDescription,
		},
		Channel:   &channelConfig{},
		Withdraw:  &withdrawConfig{MaxWithdrawable: defaultMaxWithdrawable},
		Valkey:    &valkeyConfig{},
		Profiling: &profilingConfig{},
	}
}

func loadConfig() (*config, error) {
	return parseConfig(os.Args[1:])
}

func parseConfig(args []string) (*config, error) {
	defaultCfg := defaultConfig()

	// the first pass only finds the config file
	preCfg := defaultCfg
	if _, err := flags.NewParser(&preCfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}

	if preCfg.ShowVersion {
		return &preCfg, nil
	}

	configFile := preCfg.ConfigFile
	explicitConfigFile := configFile != ""
	if !explicitConfigFile {
		configFile = filepath.Join(preCfg.DataDir, defaultConfigFilename)
	}

	cfg := defaultCfg
	parser := flags.NewParser(&cfg, flags.Default)

	err := flags.NewIniParser(parser).ParseFile(cleanAndExpandPath(configFile))
	if err != nil {
		// a missing default config file is fine
		if _, ok := err.(*os.PathError); !ok || explicitConfigFile {
			return nil, errors.Errorf("Could not parse config file %v: %v", configFile, err)
		}
	}

	// flags take precedence over the config file
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.WellKnownDir = cleanAndExpandPath(cfg.WellKnownDir)
	cfg.LndNode.MacaroonPath = cleanAndExpandPath(cfg.LndNode.MacaroonPath)
	cfg.LndNode.TlsCertPath = cleanAndExpandPath(cfg.LndNode.TlsCertPath)
	cfg.CLightningNode.RpcPath = cleanAndExpandPath(cfg.CLightningNode.RpcPath)

	if cfg.Pay.MinSendable > cfg.Pay.MaxSendable {
		return nil, errors.Errorf("pay.minsendable %d is larger than pay.maxsendable %d",
			cfg.Pay.MinSendable, cfg.Pay.MaxSendable)
	}

	if cfg.Store == "valkey" && cfg.Valkey.Url == "" {
		return nil, errors.New("store valkey needs valkey.url")
	}

	cfg.PublicUrl, err = url.Parse(cfg.RawPublicUrl)
	if err != nil {
		return nil, errors.Errorf("Could not parse publicurl %v: %v", cfg.RawPublicUrl, err)
	}

	if cfg.PublicUrl.Scheme != "http" && cfg.PublicUrl.Scheme != "https" {
		return nil, errors.Errorf("publicurl %v must be an http or https url", cfg.RawPublicUrl)
	}

	// Listen on the default interface/port if no listeners were specified.
	// An empty address string means default interface/address, which on
	// most unix systems is the same as 0.0.0.0.
	if len(cfg.RawListeners) == 0 {
		addr := fmt.Sprintf(":%d", defaultRPCPort)
		cfg.RawListeners = append(cfg.RawListeners, addr)
	}

	cfg.Listeners = make([]net.Addr, 0, len(cfg.RawListeners))
	for _, addr := range cfg.RawListeners {
		parsedAddr, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return nil, err
		}

		cfg.Listeners = append(cfg.Listeners, parsedAddr)
	}

	return &cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
