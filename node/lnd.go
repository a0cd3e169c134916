package node

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/timeout"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const defaultTimeout = 30 * time.Second

var (
	beginCertificateBlock = []byte("-----BEGIN CERTIFICATE-----\n")
	endCertificateBlock   = []byte("\n-----END CERTIFICATE-----")
)

var (
	clientMetrics     *grpcprom.ClientMetrics
	clientMetricsOnce sync.Once
)

func lndClientMetrics() *grpcprom.ClientMetrics {
	clientMetricsOnce.Do(func() {
		clientMetrics = grpcprom.NewClientMetrics(
			grpcprom.WithClientHandlingTimeHistogram(
				grpcprom.WithHistogramBuckets([]float64{0.01, 0.1, 0.3, 0.6, 1, 3, 6, 10, 30, 60}),
			),
		)
		prometheus.DefaultRegisterer.Register(clientMetrics)
	})

	return clientMetrics
}

type LndNodeConfig struct {
	Uri           string
	CertBytes     []byte
	MacaroonBytes []byte
	// Timeout bounds every single call to the node.
	Timeout time.Duration
	// DialOptions are appended to the options the connection is dialed with.
	DialOptions []grpc.DialOption
	Logger      Logger
}

// LndNode talks to lnd through its gRPC interface.
type LndNode struct {
	uri              string
	dialOptions      []grpc.DialOption
	macaroonMetadata metadata.MD
	conn             *grpc.ClientConn
	client           lnrpc.LightningClient
	logger           Logger
}

// Compile time check for protocol compatibility
var _ Node = (*LndNode)(nil)

func NewLndNode(config *LndNodeConfig) (*LndNode, error) {
	callTimeout := config.Timeout
	if callTimeout == 0 {
		callTimeout = defaultTimeout
	}

	metrics := lndClientMetrics()

	dialOptions := []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(
			timeout.UnaryClientInterceptor(callTimeout),
			metrics.UnaryClientInterceptor(),
		),
	}

	if len(config.CertBytes) > 0 {
		cert := x509.NewCertPool()

		fullCertBytes := config.CertBytes
		if !bytes.Contains(fullCertBytes, []byte("-----BEGIN")) {
			fullCertBytes = append(append([]byte{}, beginCertificateBlock...), config.CertBytes...)
			fullCertBytes = append(fullCertBytes, endCertificateBlock...)
		}

		if ok := cert.AppendCertsFromPEM(fullCertBytes); !ok {
			return nil, errors.New("could not parse tls cert")
		}

		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(cert, "")))
	}

	dialOptions = append(dialOptions, config.DialOptions...)

	node := &LndNode{
		uri:         config.Uri,
		dialOptions: dialOptions,
		logger:      config.Logger,
	}

	if len(config.MacaroonBytes) > 0 {
		node.macaroonMetadata = metadata.Pairs("macaroon", hex.EncodeToString(config.MacaroonBytes))
	}

	if node.logger == nil {
		node.logger = noopLogger{}
	}

	return node, nil
}

func (r *LndNode) Start() error {
	var err error
	r.conn, err = grpc.Dial(r.uri, r.dialOptions...)
	if err != nil {
		return errors.Errorf("Could not connect to lightning node: %v", err)
	}

	r.client = lnrpc.NewLightningClient(r.conn)

	r.logger.Infof("Connected to lnd at %v", r.uri)

	return nil
}

func (r *LndNode) Stop() error {
	if r.conn == nil {
		return nil
	}

	err := r.conn.Close()
	if err != nil {
		return errors.Errorf("Could not close connection: %v", err)
	}

	return nil
}

func (r *LndNode) withMacaroon(ctx context.Context) context.Context {
	if r.macaroonMetadata == nil {
		return ctx
	}

	return metadata.NewOutgoingContext(ctx, r.macaroonMetadata)
}

// started fails calls made before Start succeeded.
func (r *LndNode) started(method string) error {
	if r.client == nil {
		return errors.Errorf("%s: %w: not connected", method, ErrUnavailable)
	}

	return nil
}

func (r *LndNode) GetIdentity(ctx context.Context) (*Identity, error) {
	if err := r.started("getinfo"); err != nil {
		return nil, err
	}

	info, err := r.client.GetInfo(r.withMacaroon(ctx), &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, mapLndError("getinfo", err)
	}

	for _, uri := range info.Uris {
		identity, err := ParseUri(uri)
		if err != nil {
			r.logger.Warnf("Ignoring unparsable node uri %v: %v", uri, err)
			continue
		}

		return identity, nil
	}

	return &Identity{PubKey: info.IdentityPubkey}, nil
}

func (r *LndNode) Connect(ctx context.Context, uri string) error {
	if err := r.started("connect"); err != nil {
		return err
	}

	ctx = r.withMacaroon(ctx)

	peer, err := ParseUri(uri)
	if err != nil {
		return err
	}

	peers, err := r.client.ListPeers(ctx, &lnrpc.ListPeersRequest{})
	if err != nil {
		return mapLndError("listpeers", err)
	}

	for _, p := range peers.Peers {
		if p.PubKey == peer.PubKey {
			r.logger.Debugf("Already connected to peer %v", peer.PubKey)
			return nil
		}
	}

	if peer.Host == "" {
		return &RPCError{Method: "connect", Message: "peer is not connected and no address is known"}
	}

	_, err = r.client.ConnectPeer(ctx, &lnrpc.ConnectPeerRequest{
		Addr: &lnrpc.LightningAddress{
			Pubkey: peer.PubKey,
			Host:   net.JoinHostPort(peer.Host, strconv.Itoa(peer.Port)),
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already connected") {
			return nil
		}

		return mapLndError("connect", err)
	}

	return nil
}

func (r *LndNode) FundChannel(ctx context.Context, pubKey string, amountSat int64, announce bool) (*FundingResult, error) {
	if err := r.started("fundchannel"); err != nil {
		return nil, err
	}

	pubKeyBytes, err := hex.DecodeString(pubKey)
	if err != nil {
		return nil, errors.Errorf("Could not decode pubkey %v: %v", pubKey, err)
	}

	chanPoint, err := r.client.OpenChannelSync(r.withMacaroon(ctx), &lnrpc.OpenChannelRequest{
		NodePubkey:         pubKeyBytes,
		LocalFundingAmount: amountSat,
		Private:            !announce,
	})
	if err != nil {
		return nil, mapLndError("fundchannel", err)
	}

	txid := chanPoint.GetFundingTxidStr()
	if txidBytes := chanPoint.GetFundingTxidBytes(); txidBytes != nil {
		hash, err := chainhash.NewHash(txidBytes)
		if err != nil {
			return nil, errors.Errorf("Could not parse funding txid: %v", err)
		}
		txid = hash.String()
	}

	return &FundingResult{
		FundingTxid: txid,
		OutputIndex: chanPoint.OutputIndex,
	}, nil
}

func (r *LndNode) CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	if err := r.started("invoice"); err != nil {
		return nil, err
	}

	// lnd has no invoice labels and refuses a memo next to a description hash
	res, err := r.client.AddInvoice(r.withMacaroon(ctx), &lnrpc.Invoice{
		ValueMsat:       int64(req.AmountMsat),
		DescriptionHash: req.DescriptionHash,
	})
	if err != nil {
		return nil, mapLndError("invoice", err)
	}

	return &Invoice{
		PaymentRequest:  res.PaymentRequest,
		PaymentHash:     res.RHash,
		AmountMsat:      req.AmountMsat,
		DescriptionHash: req.DescriptionHash,
	}, nil
}

func (r *LndNode) DecodeInvoice(ctx context.Context, paymentRequest string) (*Invoice, error) {
	if err := r.started("decodepay"); err != nil {
		return nil, err
	}

	payReq, err := r.client.DecodePayReq(r.withMacaroon(ctx), &lnrpc.PayReqString{
		PayReq: paymentRequest,
	})
	if err != nil {
		return nil, mapLndError("decodepay", err)
	}

	invoice := &Invoice{
		PaymentRequest: paymentRequest,
		AmountMsat:     uint64(payReq.NumMsat),
	}

	invoice.PaymentHash, err = hex.DecodeString(payReq.PaymentHash)
	if err != nil {
		return nil, errors.Errorf("Could not decode payment hash: %v", err)
	}

	if payReq.DescriptionHash != "" {
		invoice.DescriptionHash, err = hex.DecodeString(payReq.DescriptionHash)
		if err != nil {
			return nil, errors.Errorf("Could not decode description hash: %v", err)
		}
	}

	return invoice, nil
}

func (r *LndNode) PayInvoice(ctx context.Context, paymentRequest string) (*Payment, error) {
	if err := r.started("pay"); err != nil {
		return nil, err
	}

	res, err := r.client.SendPaymentSync(r.withMacaroon(ctx), &lnrpc.SendRequest{
		PaymentRequest: paymentRequest,
	})
	if err != nil {
		return nil, mapLndError("pay", err)
	}

	if res.PaymentError != "" {
		return nil, &RPCError{Method: "pay", Message: res.PaymentError}
	}

	payment := &Payment{
		PaymentHash:     res.PaymentHash,
		PaymentPreimage: res.PaymentPreimage,
	}

	if res.PaymentRoute != nil {
		payment.AmountMsat = uint64(res.PaymentRoute.TotalAmtMsat - res.PaymentRoute.TotalFeesMsat)
	}

	return payment, nil
}

func mapLndError(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errors.Errorf("%s: %w", method, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return errors.Errorf("%s: %w: %s", method, ErrUnavailable, st.Message())
	default:
		return &RPCError{
			Method:  method,
			Code:    int(st.Code()),
			Message: st.Message(),
		}
	}
}
