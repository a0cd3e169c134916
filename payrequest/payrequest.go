package payrequest

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/the-lightning-land/lnurld/events"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
)

var (
	ErrInvalidBounds         = errors.New("sendable bounds must satisfy 0 < min <= max")
	ErrAmountOutOfBounds     = errors.New("amount out of bounds")
	ErrNodeUnavailable       = errors.New("node unavailable")
	ErrInvoiceCreationFailed = errors.New("invoice creation failed")
)

const (
	DefaultMinSendableMsat = 1000
	DefaultMaxSendableMsat = 1000000
	DefaultDescription     = "Payment for services"
)

// Offer is the payRequest handed to wallets. RawMetadata is sent verbatim
// and MetadataHash is the digest of exactly those bytes.
type Offer struct {
	Callback        string
	MinSendableMsat uint64
	MaxSendableMsat uint64
	Metadata        lnurl.Metadata
	RawMetadata     []byte
	MetadataHash    [32]byte
}

func (o *Offer) Response() *lnurl.PayResponse {
	return &lnurl.PayResponse{
		Callback:    o.Callback,
		MaxSendable: o.MaxSendableMsat,
		MinSendable: o.MinSendableMsat,
		Metadata:    string(o.RawMetadata),
		Tag:         lnurl.TagPayRequest,
	}
}

func (o *Offer) InBounds(amountMsat uint64) bool {
	return amountMsat >= o.MinSendableMsat && amountMsat <= o.MaxSendableMsat
}

// IssuedInvoice is the ledger record of an invoice handed to a payer.
type IssuedInvoice struct {
	Label          string    `json:"label"`
	PaymentRequest string    `json:"pr"`
	PaymentHash    string    `json:"payment_hash"`
	AmountMsat     uint64    `json:"amount_msat"`
	MetadataHash   string    `json:"metadata_hash"`
	CreatedAt      time.Time `json:"created_at"`
}

type Ledger interface {
	RecordInvoice(ctx context.Context, invoice *IssuedInvoice) error
}

type Publisher interface {
	Publish(event *events.Event) int
}

type Config struct {
	Node            node.Node
	Callback        string
	MinSendableMsat uint64
	MaxSendableMsat uint64
	// Metadata defaults to a single text/plain entry holding Description.
	Metadata    lnurl.Metadata
	Description string
	NodeTimeout time.Duration
	Ledger      Ledger
	Events      Publisher
	Now         func() time.Time
	Logger      Logger
}

// Service builds pay offers and creates invoices committing to their metadata.
type Service struct {
	node        node.Node
	nodeTimeout time.Duration
	ledger      Ledger
	events      Publisher
	now         func() time.Time
	logger      Logger

	offer     *Offer
	offerOnce sync.Once
	callback  string
	metadata  lnurl.Metadata
	min, max  uint64
}

func New(config *Config) (*Service, error) {
	minMsat, maxMsat := config.MinSendableMsat, config.MaxSendableMsat
	if minMsat == 0 && maxMsat == 0 {
		minMsat, maxMsat = DefaultMinSendableMsat, DefaultMaxSendableMsat
	}

	if minMsat == 0 || minMsat > maxMsat {
		return nil, errors.Errorf("%w: min %d, max %d", ErrInvalidBounds, minMsat, maxMsat)
	}

	metadata := config.Metadata
	if len(metadata) == 0 {
		description := config.Description
		if description == "" {
			description = DefaultDescription
		}
		metadata = lnurl.NewMetadata(description)
	}

	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	service := &Service{
		node:        config.Node,
		nodeTimeout: config.NodeTimeout,
		ledger:      config.Ledger,
		events:      config.Events,
		now:         config.Now,
		logger:      config.Logger,
		callback:    config.Callback,
		metadata:    metadata,
		min:         minMsat,
		max:         maxMsat,
	}

	if service.nodeTimeout == 0 {
		service.nodeTimeout = 30 * time.Second
	}

	if service.now == nil {
		service.now = time.Now
	}

	if service.logger == nil {
		service.logger = noopLogger{}
	}

	return service, nil
}

// BuildOffer returns the offer. The metadata is serialized and hashed once.
func (s *Service) BuildOffer() *Offer {
	s.offerOnce.Do(func() {
		raw := s.metadata.Serialize()

		s.offer = &Offer{
			Callback:        s.callback,
			MinSendableMsat: s.min,
			MaxSendableMsat: s.max,
			Metadata:        s.metadata,
			RawMetadata:     raw,
			MetadataHash:    lnurl.HashMetadata(raw),
		}
	})

	return s.offer
}

func (s *Service) label() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("invoice_%s_%s", s.now().UTC().Format("20060102150405"), id[:8])
}

// GenerateInvoice asks the node for an invoice of exactly amountMsat whose
// description hash is the offer's metadata hash. Out of bounds amounts are
// rejected before the node is called. Failures are not retried.
func (s *Service) GenerateInvoice(ctx context.Context, amountMsat uint64, offer *Offer) (*node.Invoice, error) {
	if !offer.InBounds(amountMsat) {
		invoiceRequests.WithLabelValues("out_of_bounds").Inc()
		return nil, errors.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfBounds,
			amountMsat, offer.MinSendableMsat, offer.MaxSendableMsat)
	}

	ctx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
	defer cancel()

	label := s.label()

	invoice, err := s.node.CreateInvoice(ctx, &node.InvoiceRequest{
		AmountMsat:      amountMsat,
		Label:           label,
		DescriptionHash: offer.MetadataHash[:],
		Description:     string(offer.RawMetadata),
	})
	if err != nil {
		if node.IsUnavailable(err) {
			invoiceRequests.WithLabelValues("node_unavailable").Inc()
			return nil, errors.Errorf("%w: %v", ErrNodeUnavailable, err)
		}

		invoiceRequests.WithLabelValues("failed").Inc()
		return nil, errors.Errorf("%w: %v", ErrInvoiceCreationFailed, err)
	}

	invoiceRequests.WithLabelValues("ok").Inc()
	s.logger.Infof("Created invoice %v over %d msat", label, amountMsat)

	issued := &IssuedInvoice{
		Label:          label,
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    hex.EncodeToString(invoice.PaymentHash),
		AmountMsat:     amountMsat,
		MetadataHash:   hex.EncodeToString(offer.MetadataHash[:]),
		CreatedAt:      s.now().UTC(),
	}

	if s.ledger != nil {
		if err := s.ledger.RecordInvoice(ctx, issued); err != nil {
			s.logger.Warnf("Could not record invoice %v: %v", label, err)
		}
	}

	if s.events != nil {
		s.events.Publish(events.New(events.InvoiceCreated, issued))
	}

	return invoice, nil
}
