package node

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	lightning "github.com/fiatjaf/lightningd-gjson-rpc"
	"github.com/go-errors/errors"
	"github.com/tidwall/gjson"
)

type CLightningNodeConfig struct {
	// RpcPath is the path of the lightning-rpc unix socket.
	RpcPath string
	Timeout time.Duration
	Logger  Logger
}

// CLightningNode talks to Core Lightning through the JSON-RPC unix socket
// of the daemon. Every call uses its own connection.
type CLightningNode struct {
	client  *lightning.Client
	timeout time.Duration
	logger  Logger
}

// Compile time check for protocol compatibility
var _ Node = (*CLightningNode)(nil)

func NewCLightningNode(config *CLightningNodeConfig) *CLightningNode {
	node := &CLightningNode{
		timeout: config.Timeout,
		logger:  config.Logger,
	}

	if node.timeout == 0 {
		node.timeout = defaultTimeout
	}

	node.client = &lightning.Client{
		Path:        config.RpcPath,
		CallTimeout: node.timeout,
	}

	if node.logger == nil {
		node.logger = noopLogger{}
	}

	return node
}

// msatAmount reads millisatoshi amounts encoded as plain numbers or as
// "1000msat" strings, depending on the version of the daemon.
func msatAmount(result gjson.Result) (uint64, error) {
	if !result.Exists() {
		return 0, nil
	}

	if result.Type == gjson.Number {
		return result.Uint(), nil
	}

	value, err := strconv.ParseUint(strings.TrimSuffix(result.String(), "msat"), 10, 64)
	if err != nil {
		return 0, errors.Errorf("Could not parse msat amount %s: %v", result.Raw, err)
	}

	return value, nil
}

func (r *CLightningNode) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	identity, err := r.GetIdentity(ctx)
	if err != nil {
		return errors.Errorf("Could not reach lightningd at %v: %v", r.client.Path, err)
	}

	r.logger.Infof("Connected to lightningd %v", identity.PubKey)

	return nil
}

func (r *CLightningNode) Stop() error {
	return nil
}

// call runs a named-parameter command. The call is bounded by the context
// deadline, or by the node timeout when the context has none.
func (r *CLightningNode) call(ctx context.Context, method string, params map[string]interface{}) (gjson.Result, error) {
	if err := ctx.Err(); err != nil {
		return gjson.Result{}, errors.Errorf("%s: %w: %v", method, ErrUnavailable, err)
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	r.logger.Debugf("Calling %v", method)

	res, err := r.client.CallWithCustomTimeout(timeout, method, params)
	if err != nil {
		var cmdErr lightning.ErrorCommand
		if errors.As(err, &cmdErr) {
			return gjson.Result{}, &RPCError{
				Method:  method,
				Code:    cmdErr.Code,
				Message: cmdErr.Message,
			}
		}

		return gjson.Result{}, errors.Errorf("%s: %w: %v", method, ErrUnavailable, err)
	}

	return res, nil
}

func hexField(res gjson.Result, field string) ([]byte, error) {
	value := res.Get(field).String()
	if value == "" {
		return nil, nil
	}

	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, errors.Errorf("Could not decode %s: %v", field, err)
	}

	return b, nil
}

func (r *CLightningNode) GetIdentity(ctx context.Context) (*Identity, error) {
	info, err := r.call(ctx, "getinfo", nil)
	if err != nil {
		return nil, err
	}

	identity := &Identity{PubKey: info.Get("id").String()}
	if addresses := info.Get("address").Array(); len(addresses) > 0 {
		identity.Host = addresses[0].Get("address").String()
		identity.Port = int(addresses[0].Get("port").Int())
	}

	return identity, nil
}

func (r *CLightningNode) Connect(ctx context.Context, uri string) error {
	_, err := r.call(ctx, "connect", map[string]interface{}{
		"id": uri,
	})

	return err
}

func (r *CLightningNode) FundChannel(ctx context.Context, pubKey string, amountSat int64, announce bool) (*FundingResult, error) {
	res, err := r.call(ctx, "fundchannel", map[string]interface{}{
		"id":       pubKey,
		"amount":   amountSat,
		"announce": announce,
	})
	if err != nil {
		return nil, err
	}

	return &FundingResult{
		FundingTxid: res.Get("txid").String(),
		OutputIndex: uint32(res.Get("outnum").Uint()),
		ChannelId:   res.Get("channel_id").String(),
	}, nil
}

func (r *CLightningNode) CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	// lightningd only commits to a description hash it computed itself
	if req.Description == "" {
		return nil, errors.New("lightningd needs the description to commit to its hash")
	}

	descriptionHash := sha256.Sum256([]byte(req.Description))
	if !bytes.Equal(descriptionHash[:], req.DescriptionHash) {
		return nil, errors.New("description does not match description hash")
	}

	res, err := r.call(ctx, "invoice", map[string]interface{}{
		"amount_msat":  req.AmountMsat,
		"label":        req.Label,
		"description":  req.Description,
		"deschashonly": true,
	})
	if err != nil {
		return nil, err
	}

	paymentHash, err := hexField(res, "payment_hash")
	if err != nil {
		return nil, err
	}

	return &Invoice{
		PaymentRequest:  res.Get("bolt11").String(),
		PaymentHash:     paymentHash,
		AmountMsat:      req.AmountMsat,
		DescriptionHash: req.DescriptionHash,
	}, nil
}

func (r *CLightningNode) DecodeInvoice(ctx context.Context, paymentRequest string) (*Invoice, error) {
	res, err := r.call(ctx, "decodepay", map[string]interface{}{
		"bolt11": paymentRequest,
	})
	if err != nil {
		return nil, err
	}

	invoice := &Invoice{PaymentRequest: paymentRequest}

	invoice.AmountMsat, err = msatAmount(res.Get("amount_msat"))
	if err != nil {
		return nil, err
	}

	invoice.PaymentHash, err = hexField(res, "payment_hash")
	if err != nil {
		return nil, err
	}

	invoice.DescriptionHash, err = hexField(res, "description_hash")
	if err != nil {
		return nil, err
	}

	return invoice, nil
}

func (r *CLightningNode) PayInvoice(ctx context.Context, paymentRequest string) (*Payment, error) {
	res, err := r.call(ctx, "pay", map[string]interface{}{
		"bolt11": paymentRequest,
	})
	if err != nil {
		return nil, err
	}

	if status := res.Get("status").String(); status != "" && status != "complete" {
		return nil, &RPCError{Method: "pay", Message: "payment " + status}
	}

	payment := &Payment{}

	payment.AmountMsat, err = msatAmount(res.Get("amount_msat"))
	if err != nil {
		return nil, err
	}

	payment.PaymentHash, err = hexField(res, "payment_hash")
	if err != nil {
		return nil, err
	}

	payment.PaymentPreimage, err = hexField(res, "payment_preimage")
	if err != nil {
		return nil, err
	}

	return payment, nil
}
