package node

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
)

// ErrUnavailable is returned when the node could not be reached or did not
// answer in time.
var ErrUnavailable = errors.New("node unavailable")

// RPCError is returned when the node was reached but rejected the call.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (err *RPCError) Error() string {
	return fmt.Sprintf("%s failed: %s", err.Method, err.Message)
}

// IsUnavailable reports whether an error means the node could not serve the call.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Identity describes how peers reach the node.
type Identity struct {
	PubKey string
	Host   string
	Port   int
}

// Uri returns the identity in pubkey@host:port form.
func (i *Identity) Uri() string {
	if i.Host == "" {
		return i.PubKey
	}

	return fmt.Sprintf("%s@%s", i.PubKey, net.JoinHostPort(i.Host, strconv.Itoa(i.Port)))
}

// ParseUri splits a pubkey@host:port node uri. Host and port are optional.
func ParseUri(uri string) (*Identity, error) {
	parts := strings.SplitN(uri, "@", 2)
	identity := &Identity{PubKey: parts[0]}

	if identity.PubKey == "" {
		return nil, errors.Errorf("Missing pubkey in node uri %q", uri)
	}

	if len(parts) == 1 {
		return identity, nil
	}

	host, rawPort, err := net.SplitHostPort(parts[1])
	if err != nil {
		return nil, errors.Errorf("Could not parse address of node uri %q: %v", uri, err)
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return nil, errors.Errorf("Could not parse port of node uri %q: %v", uri, err)
	}

	identity.Host = host
	identity.Port = port

	return identity, nil
}

// Invoice is a decoded BOLT11 invoice.
type Invoice struct {
	PaymentRequest  string
	PaymentHash     []byte
	AmountMsat      uint64
	DescriptionHash []byte
}

// InvoiceRequest asks the node for a new invoice. DescriptionHash is the
// value the invoice commits to. Description is the preimage of the hash,
// needed by nodes that hash the description themselves.
type InvoiceRequest struct {
	AmountMsat      uint64
	Label           string
	DescriptionHash []byte
	Description     string
}

// FundingResult is the outcome of a successful channel funding.
type FundingResult struct {
	FundingTxid string `json:"funding_txid"`
	OutputIndex uint32 `json:"output_index"`
	ChannelId   string `json:"channel_id,omitempty"`
}

type Payment struct {
	PaymentHash     []byte
	PaymentPreimage []byte
	AmountMsat      uint64
}

// Node is the contract the protocol engine relies on. Every method is
// blocking I/O and must honour the deadline of the passed context.
type Node interface {
	Start() error
	Stop() error
	GetIdentity(ctx context.Context) (*Identity, error)
	Connect(ctx context.Context, uri string) error
	FundChannel(ctx context.Context, pubKey string, amountSat int64, announce bool) (*FundingResult, error)
	CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error)
	DecodeInvoice(ctx context.Context, paymentRequest string) (*Invoice, error)
	PayInvoice(ctx context.Context, paymentRequest string) (*Payment, error)
}
