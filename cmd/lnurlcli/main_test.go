package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/api"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/channel"
	"github.com/the-lightning-land/lnurld/node"
	"github.com/the-lightning-land/lnurld/payrequest"
)

type service struct {
	url  string
	node *node.MockNode
}

func startService(t *testing.T) *service {
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	publicUrl, err := url.Parse(srv.URL)
	require.NoError(t, err)

	mock, err := node.NewMockNode(&node.MockNodeConfig{})
	require.NoError(t, err)

	registry := challenge.NewRegistry(&challenge.RegistryConfig{Store: challenge.NewMemoryStore()})

	pay, err := payrequest.New(&payrequest.Config{
		Node:     mock,
		Callback: api.PayCallbackUrl(publicUrl),
	})
	require.NoError(t, err)

	handler = api.New(&api.Config{
		PublicUrl: publicUrl,
		Pay:       pay,
		Registry:  registry,
		Channels: channel.New(&channel.Config{
			Node:     mock,
			Registry: registry,
			Callback: api.ChannelCallbackUrl(publicUrl),
		}),
		DisableMetricsHandler: true,
	})

	return &service{url: srv.URL, node: mock}
}

func run(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}

	app := newApp()
	app.Writer = out

	err := app.Run(append([]string{"lnurlcli", "--node", "mock"}, args...))

	return out.String(), err
}

func TestFetch(t *testing.T) {
	s := startService(t)

	out, err := run(t, "fetch", s.url+"/lnurl6")
	require.NoError(t, err)
	assert.Contains(t, out, `"tag": "payRequest"`)
}

func TestPayShowsOfferWithoutAmount(t *testing.T) {
	s := startService(t)

	out, err := run(t, "pay", s.url+"/lnurl6")
	require.NoError(t, err)
	assert.Contains(t, out, "Description: Payment for services")
	assert.Contains(t, out, "Minimum amount: 1000 msat")
	assert.Empty(t, s.node.InvoiceRequests())
}

func TestPay(t *testing.T) {
	s := startService(t)

	out, err := run(t, "pay", s.url+"/lnurl6", "2000")
	require.NoError(t, err)
	assert.Contains(t, out, `"amount_msat": 2000`)

	requests := s.node.InvoiceRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, uint64(2000), requests[0].AmountMsat)
}

func TestPayRejectsAmountOutOfBounds(t *testing.T) {
	s := startService(t)

	_, err := run(t, "pay", s.url+"/lnurl6", "10")
	assert.Error(t, err)
	assert.Empty(t, s.node.InvoiceRequests())
}

func TestChannel(t *testing.T) {
	s := startService(t)

	out, err := run(t, "channel", "--private", s.url+"/lnurl2", "100000")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "OK"`)

	fundings := s.node.Fundings()
	require.Len(t, fundings, 1)
	assert.Equal(t, int64(100000), fundings[0].AmountSat)
	assert.False(t, fundings[0].Announce)
}

func TestChannelNeedsAmount(t *testing.T) {
	s := startService(t)

	_, err := run(t, "channel", s.url+"/lnurl2")
	assert.Error(t, err)
	assert.Empty(t, s.node.Fundings())
}
