package channel

import (
	"context"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
)

const remoteNodeId = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func newTestService(t *testing.T, config *Config) (*Service, *node.MockNode) {
	mock, err := node.NewMockNode(&node.MockNodeConfig{Host: "10.0.0.1", Port: 9735})
	require.NoError(t, err)

	config.Node = mock
	if config.Registry == nil {
		config.Registry = challenge.NewRegistry(&challenge.RegistryConfig{Store: challenge.NewMemoryStore()})
	}
	config.Callback = "http://localhost:5000/lnurl-channel-request"

	return New(config), mock
}

func TestOffer(t *testing.T) {
	service, mock := newTestService(t, &Config{})

	offer, err := service.Offer(context.Background())
	require.NoError(t, err)

	assert.Equal(t, lnurl.StatusOK, offer.Status)
	assert.Equal(t, lnurl.TagChannelRequest, offer.Tag)
	assert.Equal(t, mock.PubKey()+"@10.0.0.1:9735", offer.Uri)
	assert.Len(t, offer.K1, 2*challenge.TokenBytes)
	assert.Equal(t, "http://localhost:5000/lnurl-channel-request", offer.Callback)
}

func TestOfferAdvertisedUri(t *testing.T) {
	service, mock := newTestService(t, &Config{AdvertisedUri: "02abc@lnurld.example.com:9735"})
	mock.FailWith("getinfo", node.ErrUnavailable)

	offer, err := service.Offer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "02abc@lnurld.example.com:9735", offer.Uri)
}

func TestOfferNodeUnavailable(t *testing.T) {
	service, mock := newTestService(t, &Config{})
	mock.FailWith("getinfo", node.ErrUnavailable)

	_, err := service.Offer(context.Background())
	assert.True(t, node.IsUnavailable(err))
}

func TestHandle(t *testing.T) {
	service, mock := newTestService(t, &Config{})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	result, err := service.Handle(ctx, &Request{
		Token:        offer.K1,
		RemoteNodeId: remoteNodeId,
		AmountSat:    100000,
		Private:      true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.FundingTxid)

	assert.Equal(t, []node.MockFunding{{PubKey: remoteNodeId, AmountSat: 100000, Announce: false}}, mock.Fundings())

	// replay
	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 100000})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredChallenge)
	assert.Len(t, mock.Fundings(), 1)
}

func TestHandlePublicChannel(t *testing.T) {
	service, mock := newTestService(t, &Config{})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 50000})
	require.NoError(t, err)
	assert.True(t, mock.Fundings()[0].Announce)
}

func TestHandleUnknownToken(t *testing.T) {
	service, mock := newTestService(t, &Config{})

	_, err := service.Handle(context.Background(), &Request{Token: "deadbeef", RemoteNodeId: remoteNodeId, AmountSat: 1})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredChallenge)
	assert.Empty(t, mock.Fundings())
}

func TestHandleExpiredToken(t *testing.T) {
	now := time.Now()
	registry := challenge.NewRegistry(&challenge.RegistryConfig{
		Store: challenge.NewMemoryStore(),
		TTL:   time.Minute,
		Now:   func() time.Time { return now },
	})

	service, mock := newTestService(t, &Config{Registry: registry})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 1})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredChallenge)
	assert.Empty(t, mock.Fundings())
}

func TestHandleFundingErrorBurnsToken(t *testing.T) {
	service, mock := newTestService(t, &Config{})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	mock.FailWith("fundchannel", &node.RPCError{Method: "fundchannel", Message: "Cannot afford funding transaction"})

	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 100000})

	var fundingErr FundingError
	require.True(t, errors.As(err, &fundingErr))
	assert.Equal(t, "Cannot afford funding transaction", fundingErr.Reason)

	mock.FailWith("fundchannel", nil)

	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 100000})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredChallenge)
}

func TestHandleConnectFailureStillFunds(t *testing.T) {
	service, mock := newTestService(t, &Config{ConnectPeer: true})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	mock.FailWith("connect", node.ErrUnavailable)

	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 100000})
	require.NoError(t, err)
	assert.Len(t, mock.Fundings(), 1)
}

func TestHandleConnectsPeer(t *testing.T) {
	service, mock := newTestService(t, &Config{ConnectPeer: true})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	_, err = service.Handle(ctx, &Request{
		Token:        offer.K1,
		RemoteNodeId: remoteNodeId,
		RemoteUri:    remoteNodeId + "@10.0.0.2:9735",
		AmountSat:    100000,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{remoteNodeId + "@10.0.0.2:9735"}, mock.Connects())
}

func TestHandleSlowConnectKeepsFundingTimeout(t *testing.T) {
	service, mock := newTestService(t, &Config{ConnectPeer: true, NodeTimeout: 60 * time.Millisecond})
	ctx := context.Background()

	offer, err := service.Offer(ctx)
	require.NoError(t, err)

	mock.SetDelay(40 * time.Millisecond)

	_, err = service.Handle(ctx, &Request{Token: offer.K1, RemoteNodeId: remoteNodeId, AmountSat: 100000})
	require.NoError(t, err)
	assert.Len(t, mock.Connects(), 1)
	assert.Len(t, mock.Fundings(), 1)
}
