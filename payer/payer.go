// Package payer implements the wallet side of LNURL-pay and
// LNURL-channel against a service and the local node.
package payer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
	"github.com/the-lightning-land/lnurld/verifier"
)

const (
	DefaultLocalMinMsat = 1000
	DefaultLocalMaxMsat = 50000000

	maxResponseBytes = 1 << 20
)

var (
	ErrUnexpectedTag     = errors.New("unexpected lnurl tag")
	ErrAmountOutOfBounds = errors.New("amount out of bounds")
	ErrBadResponse       = errors.New("bad response from service")
)

// ServiceError is an ERROR status returned by the service.
type ServiceError struct {
	Reason string
}

func (err ServiceError) Error() string {
	return "service error: " + err.Reason
}

type Config struct {
	Node         node.Node
	Client       *http.Client
	LocalMinMsat uint64
	LocalMaxMsat uint64
	Logger       Logger
}

type Payer struct {
	node     node.Node
	client   *http.Client
	verifier *verifier.Verifier
	localMin uint64
	localMax uint64
	logger   Logger
}

func New(config *Config) *Payer {
	payer := &Payer{
		node:     config.Node,
		client:   config.Client,
		verifier: verifier.New(config.Node),
		localMin: config.LocalMinMsat,
		localMax: config.LocalMaxMsat,
		logger:   config.Logger,
	}

	if payer.client == nil {
		payer.client = &http.Client{Timeout: 30 * time.Second}
	}

	if payer.localMin == 0 {
		payer.localMin = DefaultLocalMinMsat
	}

	if payer.localMax == 0 {
		payer.localMax = DefaultLocalMaxMsat
	}

	if payer.logger == nil {
		payer.logger = noopLogger{}
	}

	return payer
}

func (p *Payer) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	p.logger.Debugf("GET %v", u)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Errorf("Could not reach %v: %v", u.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Errorf("Could not read response: %v", err)
	}

	status := &lnurl.ErrorResponse{}
	if err := json.Unmarshal(body, status); err == nil && status.Status == lnurl.StatusError {
		return nil, ServiceError{Reason: status.Reason}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%w: %v answered %d", ErrBadResponse, u.Host, resp.StatusCode)
	}

	return body, nil
}

func (p *Payer) getJSON(ctx context.Context, u *url.URL, v interface{}) error {
	body, err := p.get(ctx, u)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.Errorf("%w: %v", ErrBadResponse, err)
	}

	return nil
}

// Fetch resolves target and returns the raw document served there.
func (p *Payer) Fetch(ctx context.Context, target string) (json.RawMessage, error) {
	u, err := lnurl.Resolve(target)
	if err != nil {
		return nil, err
	}

	body, err := p.get(ctx, u)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, errors.Errorf("%w: not a json document", ErrBadResponse)
	}

	return body, nil
}

func callbackURL(base *url.URL, callback string, params url.Values) (*url.URL, error) {
	ref, err := url.Parse(callback)
	if err != nil {
		return nil, errors.Errorf("%w: invalid callback %q", ErrBadResponse, callback)
	}

	u := base.ResolveReference(ref)

	query := u.Query()
	for k, values := range params {
		for _, v := range values {
			query.Set(k, v)
		}
	}
	u.RawQuery = query.Encode()

	return u, nil
}

// Quote is a pay offer narrowed down to what the local wallet can send.
type Quote struct {
	URL         *url.URL
	Offer       *lnurl.PayResponse
	Description string
	MinMsat     uint64
	MaxMsat     uint64
}

func (q *Quote) String() string {
	return fmt.Sprintf("Domain: %s\nDescription: %s\nMinimum amount: %d msat\nMaximum amount: %d msat",
		q.URL.Host, q.Description, q.MinMsat, q.MaxMsat)
}

// Quote fetches the pay offer at target and intersects its bounds with
// the local ones.
func (p *Payer) Quote(ctx context.Context, target string) (*Quote, error) {
	u, err := lnurl.Resolve(target)
	if err != nil {
		return nil, err
	}

	offer := &lnurl.PayResponse{}
	if err := p.getJSON(ctx, u, offer); err != nil {
		return nil, err
	}

	if offer.Tag != lnurl.TagPayRequest {
		return nil, errors.Errorf("%w: %q", ErrUnexpectedTag, offer.Tag)
	}

	metadata, err := lnurl.ParseMetadata([]byte(offer.Metadata))
	if err != nil {
		return nil, err
	}

	description, _ := metadata.Description()

	quote := &Quote{
		URL:         u,
		Offer:       offer,
		Description: description,
		MinMsat:     offer.MinSendable,
		MaxMsat:     offer.MaxSendable,
	}

	if quote.MinMsat < p.localMin {
		quote.MinMsat = p.localMin
	}

	if quote.MaxMsat > p.localMax {
		quote.MaxMsat = p.localMax
	}

	return quote, nil
}

// RequestInvoice calls the offer callback for amountMsat and returns the
// invoice without checking it.
func (p *Payer) RequestInvoice(ctx context.Context, quote *Quote, amountMsat uint64) (string, error) {
	if amountMsat < quote.MinMsat || amountMsat > quote.MaxMsat {
		return "", errors.Errorf("%w: %d must be between %d and %d",
			ErrAmountOutOfBounds, amountMsat, quote.MinMsat, quote.MaxMsat)
	}

	u, err := callbackURL(quote.URL, quote.Offer.Callback, url.Values{
		"amount": {strconv.FormatUint(amountMsat, 10)},
	})
	if err != nil {
		return "", err
	}

	invoice := &lnurl.InvoiceResponse{}
	if err := p.getJSON(ctx, u, invoice); err != nil {
		return "", err
	}

	if invoice.PaymentRequest == "" {
		return "", errors.Errorf("%w: no invoice in response", ErrBadResponse)
	}

	return invoice.PaymentRequest, nil
}

// Pay runs the whole LNURL-pay flow. The invoice is paid only after it was
// verified against the offer metadata and the requested amount.
func (p *Payer) Pay(ctx context.Context, quote *Quote, amountMsat uint64) (*node.Payment, error) {
	invoice, err := p.RequestInvoice(ctx, quote, amountMsat)
	if err != nil {
		return nil, err
	}

	if _, err := p.verifier.Verify(ctx, invoice, []byte(quote.Offer.Metadata), amountMsat); err != nil {
		p.logger.Warnf("Refusing to pay invoice from %v: %v", quote.URL.Host, err)
		return nil, err
	}

	payment, err := p.node.PayInvoice(ctx, invoice)
	if err != nil {
		return nil, errors.Errorf("Could not pay invoice: %w", err)
	}

	p.logger.Infof("Paid %d msat to %v", amountMsat, quote.URL.Host)

	return payment, nil
}

// OpenChannel asks the service at target to open a channel of amountSat
// to the local node.
func (p *Payer) OpenChannel(ctx context.Context, target string, amountSat int64, private bool) (*lnurl.ChannelResultResponse, error) {
	u, err := lnurl.Resolve(target)
	if err != nil {
		return nil, err
	}

	offer := &lnurl.ChannelRequestResponse{}
	if err := p.getJSON(ctx, u, offer); err != nil {
		return nil, err
	}

	if offer.Tag != lnurl.TagChannelRequest {
		return nil, errors.Errorf("%w: %q", ErrUnexpectedTag, offer.Tag)
	}

	if err := p.node.Connect(ctx, offer.Uri); err != nil {
		return nil, errors.Errorf("Could not connect to %v: %w", offer.Uri, err)
	}

	identity, err := p.node.GetIdentity(ctx)
	if err != nil {
		return nil, errors.Errorf("Could not get own node id: %w", err)
	}

	privateFlag := "0"
	if private {
		privateFlag = "1"
	}

	callback, err := callbackURL(u, offer.Callback, url.Values{
		"k1":        {offer.K1},
		"remote_id": {identity.PubKey},
		"private":   {privateFlag},
		"amount":    {strconv.FormatInt(amountSat, 10)},
	})
	if err != nil {
		return nil, err
	}

	result := &lnurl.ChannelResultResponse{}
	if err := p.getJSON(ctx, callback, result); err != nil {
		return nil, err
	}

	return result, nil
}
