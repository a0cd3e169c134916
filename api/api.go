package api

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/channel"
	"github.com/the-lightning-land/lnurld/connectivity"
	"github.com/the-lightning-land/lnurld/events"
	"github.com/the-lightning-land/lnurld/payrequest"
)

const (
	channelRequestPath  = "/lnurl2"
	channelCallbackPath = "/lnurl-channel-request"
	payRequestPath      = "/lnurl6"
	legacyPayPath       = "/lnurl-pay"
	payCallbackPath     = "/lnurl-pay/callback"
	withdrawPath        = "/lnurl-withdraw"
	withdrawCallback    = "/lnurl-withdraw/callback"
	authPath            = "/lnurl-auth"
)

// InvoiceLister lists the invoices handed out to payers, newest first.
type InvoiceLister interface {
	ListInvoices(limit int) ([]*payrequest.IssuedInvoice, error)
}

type Config struct {
	PublicUrl *url.URL
	Channels  *channel.Service
	Pay       *payrequest.Service
	Registry  *challenge.Registry
	// Reporter rejects node bound requests with 503 while the node is
	// offline. Requests always go through when it is nil.
	Reporter connectivity.Reporter
	Events   *events.Broker
	Invoices InvoiceLister
	// WellKnownDir holds one static document per lightning address user.
	WellKnownDir string
	// MaxFundingSat caps requested channel sizes, zero means no cap.
	MaxFundingSat         int64
	MaxWithdrawableMsat   uint64
	WithdrawDescription   string
	DisableMetricsHandler bool
	Logger                Logger
}

type Api struct {
	publicUrl           *url.URL
	channels            *channel.Service
	pay                 *payrequest.Service
	registry            *challenge.Registry
	reporter            connectivity.Reporter
	events              *events.Broker
	invoices            InvoiceLister
	wellKnownDir        string
	maxFundingSat       int64
	maxWithdrawableMsat uint64
	withdrawDescription string
	router              *mux.Router
	log                 Logger
}

func New(config *Config) *Api {
	api := &Api{
		publicUrl:           config.PublicUrl,
		channels:            config.Channels,
		pay:                 config.Pay,
		registry:            config.Registry,
		reporter:            config.Reporter,
		events:              config.Events,
		invoices:            config.Invoices,
		wellKnownDir:        config.WellKnownDir,
		maxFundingSat:       config.MaxFundingSat,
		maxWithdrawableMsat: config.MaxWithdrawableMsat,
		withdrawDescription: config.WithdrawDescription,
		router:              mux.NewRouter(),
	}

	if config.Logger != nil {
		api.log = config.Logger
	} else {
		api.log = noopLogger{}
	}

	if api.publicUrl == nil {
		api.publicUrl = &url.URL{Scheme: "http", Host: "localhost:5000"}
	}

	api.router.NotFoundHandler = api.statusHandler("not found", http.StatusNotFound)
	api.router.MethodNotAllowedHandler = api.statusHandler("method not allowed", http.StatusMethodNotAllowed)

	api.router.Use(api.loggingMiddleware)

	wallet := api.router.NewRoute().Subrouter()
	wallet.Use(api.corsMiddleware)

	// routes that need the node
	nodeBound := wallet.NewRoute().Subrouter()
	nodeBound.Use(api.availabilityMiddleware)
	nodeBound.Handle(channelRequestPath, api.handleChannelRequest()).Methods(http.MethodGet)
	nodeBound.Handle(channelCallbackPath, api.handleChannelCallback()).Methods(http.MethodGet)
	nodeBound.Handle(payCallbackPath, api.handlePayCallback()).Methods(http.MethodGet)

	wallet.Handle(payRequestPath, api.handlePayRequest()).Methods(http.MethodGet)
	// the amount branch checks the node itself
	wallet.Handle(legacyPayPath, api.handleLegacyPay()).Methods(http.MethodGet)
	wallet.Handle(withdrawPath, api.handleWithdrawRequest()).Methods(http.MethodGet)
	wallet.Handle(withdrawCallback, api.handleWithdrawCallback()).Methods(http.MethodGet)
	wallet.Handle(authPath, api.handleAuth()).Methods(http.MethodGet)
	wallet.Handle("/.well-known/lnurlp/{username}", api.handleWellKnown()).Methods(http.MethodGet)

	api.router.Handle("/qr/{kind}", api.handleQRCode()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/lnurls", api.handleGetLnurls()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/invoices", api.handleGetInvoices()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/events", api.handleGetEvents()).Methods(http.MethodGet)

	if !config.DisableMetricsHandler {
		api.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return api
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// url builds an absolute URL below the public base URL.
func (a *Api) url(path string) string {
	return a.publicUrl.JoinPath(path).String()
}

// ChannelCallbackUrl is the callback channel requests served below base point to.
func ChannelCallbackUrl(base *url.URL) string {
	return base.JoinPath(channelCallbackPath).String()
}

// PayCallbackUrl is the callback pay offers served below base point to.
func PayCallbackUrl(base *url.URL) string {
	return base.JoinPath(payCallbackPath).String()
}
