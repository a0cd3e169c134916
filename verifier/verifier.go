// Package verifier decides whether an invoice may be paid for a pay offer.
package verifier

import (
	"context"
	"crypto/subtle"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
)

var (
	ErrDecodeFailure    = errors.New("invoice could not be decoded")
	ErrMetadataMismatch = errors.New("invoice description hash does not match metadata")
	ErrAmountMismatch   = errors.New("invoice amount does not match requested amount")
)

// Decoder is the part of a node the verifier needs.
type Decoder interface {
	DecodeInvoice(ctx context.Context, paymentRequest string) (*node.Invoice, error)
}

type Verifier struct {
	decoder Decoder
}

func New(decoder Decoder) *Verifier {
	return &Verifier{decoder: decoder}
}

// Verify accepts the invoice only if its description hash is the hash of
// the raw metadata bytes and its amount equals expectedAmountMsat. It never
// pays anything.
func (v *Verifier) Verify(ctx context.Context, invoice string, metadata []byte, expectedAmountMsat uint64) (*node.Invoice, error) {
	decoded, err := v.decoder.DecodeInvoice(ctx, invoice)
	if err != nil {
		return nil, errors.Errorf("%w: %v", ErrDecodeFailure, err)
	}

	expected := lnurl.HashMetadata(metadata)

	if len(decoded.DescriptionHash) != len(expected) ||
		subtle.ConstantTimeCompare(decoded.DescriptionHash, expected[:]) != 1 {
		return nil, ErrMetadataMismatch
	}

	if decoded.AmountMsat != expectedAmountMsat {
		return nil, errors.Errorf("%w: invoice is for %d msat, requested %d msat",
			ErrAmountMismatch, decoded.AmountMsat, expectedAmountMsat)
	}

	return decoded, nil
}
