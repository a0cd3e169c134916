package node

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

type MockNodeConfig struct {
	// Net selects the invoice prefix, regtest when empty.
	Net    *chaincfg.Params
	Host   string
	Port   int
	Logger Logger
}

// MockFunding records a FundChannel call.
type MockFunding struct {
	PubKey    string
	AmountSat int64
	Announce  bool
}

// MockNode is an in-memory node that signs real BOLT11 invoices with a
// throwaway key. It records every call and can be told to fail.
type MockNode struct {
	mu        sync.Mutex
	net       *chaincfg.Params
	key       *btcec.PrivateKey
	host      string
	port      int
	preimages map[[32]byte][32]byte
	failures  map[string]error
	delay     time.Duration
	connects  []string
	fundings  []MockFunding
	invoices  []*InvoiceRequest
	payments  []string
	logger    Logger
}

// Compile time check for protocol compatibility
var _ Node = (*MockNode)(nil)

func NewMockNode(config *MockNodeConfig) (*MockNode, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Errorf("Could not generate node key: %v", err)
	}

	node := &MockNode{
		net:       config.Net,
		key:       key,
		host:      config.Host,
		port:      config.Port,
		preimages: make(map[[32]byte][32]byte),
		failures:  make(map[string]error),
		logger:    config.Logger,
	}

	if node.net == nil {
		node.net = &chaincfg.RegressionNetParams
	}

	if node.host == "" {
		node.host = "127.0.0.1"
	}

	if node.port == 0 {
		node.port = 9735
	}

	if node.logger == nil {
		node.logger = noopLogger{}
	}

	return node, nil
}

// FailWith makes all following calls of the method return err. A nil err
// clears the failure. Methods are named like the gRPC calls: getinfo,
// connect, fundchannel, invoice, decodepay and pay.
func (r *MockNode) FailWith(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		delete(r.failures, method)
		return
	}

	r.failures[method] = err
}

// SetDelay makes every call wait before answering, or until its context is done.
func (r *MockNode) SetDelay(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delay = delay
}

func (r *MockNode) PubKey() string {
	return hex.EncodeToString(r.key.PubKey().SerializeCompressed())
}

func (r *MockNode) Connects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.connects...)
}

func (r *MockNode) Fundings() []MockFunding {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]MockFunding{}, r.fundings...)
}

func (r *MockNode) InvoiceRequests() []*InvoiceRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*InvoiceRequest{}, r.invoices...)
}

func (r *MockNode) Payments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.payments...)
}

func (r *MockNode) Start() error {
	r.logger.Infof("Started mock node %v", r.PubKey())
	return nil
}

func (r *MockNode) Stop() error {
	return nil
}

func (r *MockNode) enter(ctx context.Context, method string) error {
	r.mu.Lock()
	delay := r.delay
	err := r.failures[method]
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.Errorf("%s: %w: %v", method, ErrUnavailable, ctx.Err())
		}
	}

	return err
}

func (r *MockNode) GetIdentity(ctx context.Context) (*Identity, error) {
	if err := r.enter(ctx, "getinfo"); err != nil {
		return nil, err
	}

	return &Identity{
		PubKey: r.PubKey(),
		Host:   r.host,
		Port:   r.port,
	}, nil
}

func (r *MockNode) Connect(ctx context.Context, uri string) error {
	if err := r.enter(ctx, "connect"); err != nil {
		return err
	}

	if _, err := ParseUri(uri); err != nil {
		return err
	}

	r.mu.Lock()
	r.connects = append(r.connects, uri)
	r.mu.Unlock()

	return nil
}

func (r *MockNode) FundChannel(ctx context.Context, pubKey string, amountSat int64, announce bool) (*FundingResult, error) {
	if err := r.enter(ctx, "fundchannel"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.fundings = append(r.fundings, MockFunding{
		PubKey:    pubKey,
		AmountSat: amountSat,
		Announce:  announce,
	})
	r.mu.Unlock()

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errors.Errorf("Could not generate funding txid: %v", err)
	}

	return &FundingResult{
		FundingTxid: chainhash.Hash(seed).String(),
		OutputIndex: 0,
	}, nil
}

func (r *MockNode) CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	if err := r.enter(ctx, "invoice"); err != nil {
		return nil, err
	}

	if len(req.DescriptionHash) != sha256.Size {
		return nil, &RPCError{Method: "invoice", Message: "description hash must be 32 bytes"}
	}

	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, errors.Errorf("Could not generate preimage: %v", err)
	}

	paymentHash := sha256.Sum256(preimage[:])

	var descriptionHash [32]byte
	copy(descriptionHash[:], req.DescriptionHash)

	invoice, err := zpay32.NewInvoice(r.net, paymentHash, time.Now(),
		zpay32.Amount(lnwire.MilliSatoshi(req.AmountMsat)),
		zpay32.DescriptionHash(descriptionHash),
	)
	if err != nil {
		return nil, errors.Errorf("Could not create invoice: %v", err)
	}

	paymentRequest, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(r.key, chainhash.HashB(msg), true)
		},
	})
	if err != nil {
		return nil, errors.Errorf("Could not sign invoice: %v", err)
	}

	r.mu.Lock()
	r.preimages[paymentHash] = preimage
	r.invoices = append(r.invoices, req)
	r.mu.Unlock()

	return &Invoice{
		PaymentRequest:  paymentRequest,
		PaymentHash:     paymentHash[:],
		AmountMsat:      req.AmountMsat,
		DescriptionHash: descriptionHash[:],
	}, nil
}

func (r *MockNode) DecodeInvoice(ctx context.Context, paymentRequest string) (*Invoice, error) {
	if err := r.enter(ctx, "decodepay"); err != nil {
		return nil, err
	}

	return r.decode(paymentRequest)
}

func (r *MockNode) decode(paymentRequest string) (*Invoice, error) {
	decoded, err := zpay32.Decode(paymentRequest, r.net)
	if err != nil {
		return nil, &RPCError{Method: "decodepay", Message: err.Error()}
	}

	invoice := &Invoice{PaymentRequest: paymentRequest}

	if decoded.MilliSat != nil {
		invoice.AmountMsat = uint64(*decoded.MilliSat)
	}

	if decoded.PaymentHash != nil {
		invoice.PaymentHash = decoded.PaymentHash[:]
	}

	if decoded.DescriptionHash != nil {
		invoice.DescriptionHash = decoded.DescriptionHash[:]
	}

	return invoice, nil
}

func (r *MockNode) PayInvoice(ctx context.Context, paymentRequest string) (*Payment, error) {
	if err := r.enter(ctx, "pay"); err != nil {
		return nil, err
	}

	invoice, err := r.decode(paymentRequest)
	if err != nil {
		return nil, err
	}

	var hash [32]byte
	copy(hash[:], invoice.PaymentHash)

	r.mu.Lock()
	preimage, own := r.preimages[hash]
	r.payments = append(r.payments, paymentRequest)
	r.mu.Unlock()

	payment := &Payment{
		PaymentHash: invoice.PaymentHash,
		AmountMsat:  invoice.AmountMsat,
	}

	if own {
		payment.PaymentPreimage = preimage[:]
	}

	return payment, nil
}
