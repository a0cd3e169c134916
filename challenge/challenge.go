package challenge

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/lnurl"
)

var (
	ErrNotFound        = errors.New("challenge not found")
	ErrExpired         = errors.New("challenge expired")
	ErrAlreadyConsumed = errors.New("challenge already consumed")
	// ErrTokenExists is returned by stores when a token is inserted twice.
	ErrTokenExists = errors.New("challenge token already exists")
)

// Challenge is a single use token handed to a wallet as k1.
type Challenge struct {
	Token     string    `json:"token"`
	Tag       lnurl.Tag `json:"tag"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Redeemable reports why a stored challenge can not be consumed for tag at
// now, or nil if it can. Stores call it inside their atomic section.
func Redeemable(c *Challenge, tag lnurl.Tag, now time.Time) error {
	if c == nil || c.Tag != tag {
		return ErrNotFound
	}

	if c.Consumed {
		return ErrAlreadyConsumed
	}

	if c.Expired(now) {
		return ErrExpired
	}

	return nil
}

// Store keeps challenges. Consume must look up, check and mark the
// challenge as one indivisible step.
type Store interface {
	Insert(ctx context.Context, c *Challenge) error
	Consume(ctx context.Context, token string, tag lnurl.Tag, now time.Time) (*Challenge, error)
	// Sweep drops challenges that expired before now and returns how many
	// were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
