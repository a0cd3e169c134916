package challenge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/lnurl"
)

const (
	// TokenBytes is the amount of randomness in a token, 96 bits.
	TokenBytes = 12

	DefaultTTL = 5 * time.Minute

	maxIssueAttempts = 3
)

type RegistryConfig struct {
	Store  Store
	TTL    time.Duration
	Now    func() time.Time
	Logger Logger
}

// Registry issues and redeems single use k1 challenges.
type Registry struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

func NewRegistry(config *RegistryConfig) *Registry {
	registry := &Registry{
		store:  config.Store,
		ttl:    config.TTL,
		now:    config.Now,
		logger: config.Logger,
	}

	if registry.ttl == 0 {
		registry.ttl = DefaultTTL
	}

	if registry.now == nil {
		registry.now = time.Now
	}

	if registry.logger == nil {
		registry.logger = noopLogger{}
	}

	return registry
}

func newToken() (string, error) {
	var b [TokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Errorf("Could not read random token: %v", err)
	}

	return hex.EncodeToString(b[:]), nil
}

// Issue stores a fresh challenge for tag.
func (r *Registry) Issue(ctx context.Context, tag lnurl.Tag) (*Challenge, error) {
	if !tag.Valid() {
		return nil, errors.Errorf("Unknown tag %q", tag)
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := newToken()
		if err != nil {
			return nil, err
		}

		now := r.now()
		c := &Challenge{
			Token:     token,
			Tag:       tag,
			IssuedAt:  now,
			ExpiresAt: now.Add(r.ttl),
		}

		err = r.store.Insert(ctx, c)
		if errors.Is(err, ErrTokenExists) {
			r.logger.Warnf("Token collision on attempt %d", attempt+1)
			continue
		}
		if err != nil {
			return nil, errors.Errorf("Could not store challenge: %w", err)
		}

		issuedChallenges.WithLabelValues(string(tag)).Inc()
		r.logger.Debugf("Issued %v challenge expiring at %v", tag, c.ExpiresAt)

		return c, nil
	}

	return nil, errors.Errorf("Could not issue a unique token after %d attempts", maxIssueAttempts)
}

// Consume redeems a token issued for tag. It fails with ErrNotFound,
// ErrAlreadyConsumed or ErrExpired and succeeds at most once per token.
func (r *Registry) Consume(ctx context.Context, tag lnurl.Tag, token string) (*Challenge, error) {
	if token == "" {
		consumedChallenges.WithLabelValues(string(tag), consumeResult(ErrNotFound)).Inc()
		return nil, ErrNotFound
	}

	c, err := r.store.Consume(ctx, token, tag, r.now())
	consumedChallenges.WithLabelValues(string(tag), consumeResult(err)).Inc()

	if err != nil {
		r.logger.Debugf("Rejected %v challenge: %v", tag, err)
		return nil, err
	}

	return c, nil
}

// Sweep removes expired challenges from the store.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	n, err := r.store.Sweep(ctx, r.now())
	if err != nil {
		return 0, errors.Errorf("Could not sweep challenges: %w", err)
	}

	if n > 0 {
		sweptChallenges.Add(float64(n))
		r.logger.Debugf("Swept %d expired challenges", n)
	}

	return n, nil
}

// RunSweeper sweeps periodically until the context is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Warnf("%v", err)
			}
		}
	}
}
