// Package valkey stores challenges in Valkey or Redis so several lnurld
// instances can share them.
package valkey

import (
	"context"
	"strconv"
	"time"

	"github.com/go-errors/errors"
	valkey "github.com/redis/go-redis/v9"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/lnurl"
)

var (
	ErrNoURL  = errors.New("valkey: no URL defined")
	ErrBadURL = errors.New("valkey: URL is invalid")
)

const (
	defaultPrefix    = "lnurld:challenge:"
	defaultRetention = 10 * time.Minute
)

// Keys live until expiry plus retention, so late redemptions still see
// ErrExpired or ErrAlreadyConsumed instead of ErrNotFound.
var insertScript = valkey.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'tag', ARGV[1], 'issued_at', ARGV[2], 'expires_at', ARGV[3], 'consumed', '0')
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
return 1
`)

var consumeScript = valkey.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'tag', 'issued_at', 'expires_at', 'consumed')
if not fields[1] or fields[1] ~= ARGV[1] then
	return {'not_found'}
end
if fields[4] == '1' then
	return {'consumed'}
end
if tonumber(fields[3]) < tonumber(ARGV[2]) then
	return {'expired'}
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return {'ok', fields[2], fields[3]}
`)

type Config struct {
	URL       string
	Prefix    string
	Retention time.Duration
}

func (c *Config) Valid() error {
	if c.URL == "" {
		return ErrNoURL
	}

	if _, err := valkey.ParseURL(c.URL); err != nil {
		return errors.Errorf("%w: %v", ErrBadURL, err)
	}

	return nil
}

// Store implements challenge.Store on top of Valkey.
type Store struct {
	client    *valkey.Client
	prefix    string
	retention time.Duration
}

var _ challenge.Store = (*Store)(nil)

func New(ctx context.Context, config *Config) (*Store, error) {
	if err := config.Valid(); err != nil {
		return nil, err
	}

	opts, err := valkey.ParseURL(config.URL)
	if err != nil {
		return nil, errors.Errorf("%w: %v", ErrBadURL, err)
	}

	client := valkey.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Errorf("Could not reach valkey: %v", err)
	}

	store := &Store{
		client:    client,
		prefix:    config.Prefix,
		retention: config.Retention,
	}

	if store.prefix == "" {
		store.prefix = defaultPrefix
	}

	if store.retention == 0 {
		store.retention = defaultRetention
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(token string) string {
	return s.prefix + token
}

func (s *Store) Insert(ctx context.Context, c *challenge.Challenge) error {
	inserted, err := insertScript.Run(ctx, s.client, []string{s.key(c.Token)},
		string(c.Tag),
		c.IssuedAt.UnixMilli(),
		c.ExpiresAt.UnixMilli(),
		c.ExpiresAt.Add(s.retention).UnixMilli(),
	).Int()
	if err != nil {
		return errors.Errorf("Could not insert challenge: %v", err)
	}

	if inserted == 0 {
		return challenge.ErrTokenExists
	}

	return nil
}

func (s *Store) Consume(ctx context.Context, token string, tag lnurl.Tag, now time.Time) (*challenge.Challenge, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(token)},
		string(tag),
		now.UnixMilli(),
	).StringSlice()
	if err != nil {
		return nil, errors.Errorf("Could not consume challenge: %v", err)
	}

	switch res[0] {
	case "ok":
	case "consumed":
		return nil, challenge.ErrAlreadyConsumed
	case "expired":
		return nil, challenge.ErrExpired
	default:
		return nil, challenge.ErrNotFound
	}

	issuedAt, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return nil, errors.Errorf("Could not parse issued_at: %v", err)
	}

	expiresAt, err := strconv.ParseInt(res[2], 10, 64)
	if err != nil {
		return nil, errors.Errorf("Could not parse expires_at: %v", err)
	}

	return &challenge.Challenge{
		Token:     token,
		Tag:       tag,
		IssuedAt:  time.UnixMilli(issuedAt),
		ExpiresAt: time.UnixMilli(expiresAt),
		Consumed:  true,
	}, nil
}

// Sweep is a no-op, Valkey expires the keys itself.
func (s *Store) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
