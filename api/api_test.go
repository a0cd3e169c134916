package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/channel"
	"github.com/the-lightning-land/lnurld/connectivity"
	"github.com/the-lightning-land/lnurld/events"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
	"github.com/the-lightning-land/lnurld/payrequest"
)

const remoteId = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

type staticReporter struct {
	state connectivity.State
}

func (r *staticReporter) CurrentState() connectivity.State {
	return r.state
}

func (r *staticReporter) WaitForStateChange(ctx context.Context, state connectivity.State) bool {
	<-ctx.Done()
	return false
}

type memoryLedger struct {
	mu       sync.Mutex
	invoices []*payrequest.IssuedInvoice
}

func (l *memoryLedger) RecordInvoice(_ context.Context, invoice *payrequest.IssuedInvoice) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invoices = append([]*payrequest.IssuedInvoice{invoice}, l.invoices...)
	return nil
}

func (l *memoryLedger) ListInvoices(limit int) ([]*payrequest.IssuedInvoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit > 0 && limit < len(l.invoices) {
		return l.invoices[:limit], nil
	}
	return l.invoices, nil
}

type testApi struct {
	*Api
	node     *node.MockNode
	reporter *staticReporter
	broker   *events.Broker
}

func newTestApi(t *testing.T, modify func(config *Config)) *testApi {
	mock, err := node.NewMockNode(&node.MockNodeConfig{Host: "10.0.0.1", Port: 9735})
	require.NoError(t, err)

	publicUrl, err := url.Parse("http://localhost:5000")
	require.NoError(t, err)

	registry := challenge.NewRegistry(&challenge.RegistryConfig{Store: challenge.NewMemoryStore()})
	broker := events.NewBroker(16)
	ledger := &memoryLedger{}

	pay, err := payrequest.New(&payrequest.Config{
		Node:            mock,
		Callback:        publicUrl.JoinPath(payCallbackPath).String(),
		MinSendableMsat: 1000,
		MaxSendableMsat: 1000000,
		Ledger:          ledger,
		Events:          broker,
	})
	require.NoError(t, err)

	channels := channel.New(&channel.Config{
		Node:        mock,
		Registry:    registry,
		Callback:    publicUrl.JoinPath(channelCallbackPath).String(),
		ConnectPeer: true,
		Events:      broker,
	})

	wellKnownDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(wellKnownDir, "sosthene"),
		[]byte(`{"tag":"payRequest","callback":"https://sosthene.wtf/lnurl-pay/callback"}`), 0600))

	reporter := &staticReporter{state: connectivity.Online}

	config := &Config{
		PublicUrl:             publicUrl,
		Channels:              channels,
		Pay:                   pay,
		Registry:              registry,
		Reporter:              reporter,
		Events:                broker,
		Invoices:              ledger,
		WellKnownDir:          wellKnownDir,
		MaxWithdrawableMsat:   50000,
		DisableMetricsHandler: true,
	}

	if modify != nil {
		modify(config)
	}

	return &testApi{
		Api:      New(config),
		node:     mock,
		reporter: reporter,
		broker:   broker,
	}
}

func (a *testApi) get(t *testing.T, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)

	body := map[string]interface{}{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}

	return rec, body
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, body map[string]interface{}, code int) {
	t.Helper()
	assert.Equal(t, code, rec.Code)
	assert.Equal(t, "ERROR", body["status"])
	assert.NotEmpty(t, body["reason"])
}

func TestChannelRequest(t *testing.T) {
	api := newTestApi(t, nil)

	rec, body := api.get(t, "/lnurl2")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "channelRequest", body["tag"])
	assert.Equal(t, api.node.PubKey()+"@10.0.0.1:9735", body["uri"])
	assert.Len(t, body["k1"], 24)
	assert.Equal(t, "http://localhost:5000/lnurl-channel-request", body["callback"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChannelCallback(t *testing.T) {
	api := newTestApi(t, nil)

	_, offer := api.get(t, "/lnurl2")
	k1 := offer["k1"].(string)

	rec, body := api.get(t, "/lnurl-channel-request?k1="+k1+"&remote_id="+remoteId+"&private=1&amount=100000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])

	result := body["result"].(map[string]interface{})
	assert.NotEmpty(t, result["funding_txid"])

	assert.Equal(t, []node.MockFunding{{PubKey: remoteId, AmountSat: 100000, Announce: false}}, api.node.Fundings())

	rec, body = api.get(t, "/lnurl-channel-request?k1="+k1+"&remote_id="+remoteId+"&private=1&amount=100000")
	assertError(t, rec, body, http.StatusBadRequest)
	assert.Len(t, api.node.Fundings(), 1)
}

func TestChannelCallbackLegacyRemoteIdAndPublic(t *testing.T) {
	api := newTestApi(t, nil)

	_, offer := api.get(t, "/lnurl2")

	rec, _ := api.get(t, "/lnurl-channel-request?k1="+offer["k1"].(string)+"&remoteid="+remoteId+"&amount=50000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, api.node.Fundings()[0].Announce)
}

func TestChannelCallbackRemoteAddr(t *testing.T) {
	api := newTestApi(t, nil)

	_, offer := api.get(t, "/lnurl2")

	rec, _ := api.get(t, "/lnurl-channel-request?k1="+offer["k1"].(string)+"&remote_id="+remoteId+"&remote_addr=10.0.0.2:9735&amount=50000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{remoteId + "@10.0.0.2:9735"}, api.node.Connects())

	_, offer = api.get(t, "/lnurl2")

	rec, body := api.get(t, "/lnurl-channel-request?k1="+offer["k1"].(string)+"&remote_id="+remoteId+"&remote_addr=nohost&amount=50000")
	assertError(t, rec, body, http.StatusBadRequest)
	assert.Len(t, api.node.Fundings(), 1)
}

func TestChannelCallbackValidation(t *testing.T) {
	api := newTestApi(t, func(config *Config) {
		config.MaxFundingSat = 1000000
	})

	_, offer := api.get(t, "/lnurl2")
	k1 := offer["k1"].(string)

	for _, query := range []string{
		"remote_id=" + remoteId + "&amount=100000",
		"k1=" + k1 + "&amount=100000",
		"k1=" + k1 + "&remote_id=zz&amount=100000",
		"k1=" + k1 + "&remote_id=" + remoteId[:64] + "&amount=100000",
		"k1=" + k1 + "&remote_id=" + remoteId + "&amount=abc",
		"k1=" + k1 + "&remote_id=" + remoteId + "&amount=0",
		"k1=" + k1 + "&remote_id=" + remoteId + "&amount=-5",
		"k1=" + k1 + "&remote_id=" + remoteId + "&private=maybe&amount=100000",
		"k1=" + k1 + "&remote_id=" + remoteId + "&amount=2000000",
	} {
		t.Run(query, func(t *testing.T) {
			rec, body := api.get(t, "/lnurl-channel-request?"+query)
			assertError(t, rec, body, http.StatusBadRequest)
		})
	}

	assert.Empty(t, api.node.Fundings())

	// rejected requests leave the token usable
	rec, _ := api.get(t, "/lnurl-channel-request?k1="+k1+"&remote_id="+remoteId+"&amount=100000")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChannelCallbackFundingFailure(t *testing.T) {
	api := newTestApi(t, nil)

	_, offer := api.get(t, "/lnurl2")

	api.node.FailWith("fundchannel", &node.RPCError{Method: "fundchannel", Message: "Cannot afford funding transaction"})

	rec, body := api.get(t, "/lnurl-channel-request?k1="+offer["k1"].(string)+"&remote_id="+remoteId+"&amount=100000")
	assertError(t, rec, body, http.StatusInternalServerError)
	assert.Contains(t, body["reason"], "Cannot afford funding transaction")
}

func TestPayRequest(t *testing.T) {
	api := newTestApi(t, nil)

	for _, path := range []string{"/lnurl6", "/lnurl-pay"} {
		t.Run(path, func(t *testing.T) {
			rec, body := api.get(t, path)
			require.Equal(t, http.StatusOK, rec.Code)

			assert.Equal(t, "payRequest", body["tag"])
			assert.Equal(t, "http://localhost:5000/lnurl-pay/callback", body["callback"])
			assert.Equal(t, float64(1000), body["minSendable"])
			assert.Equal(t, float64(1000000), body["maxSendable"])
			assert.Equal(t, `[["text/plain","Payment for services"]]`, body["metadata"])
		})
	}
}

func TestPayCallback(t *testing.T) {
	api := newTestApi(t, nil)
	client := api.broker.Subscribe()

	for _, path := range []string{"/lnurl-pay/callback?amount=2500", "/lnurl-pay?amount=2500"} {
		t.Run(path, func(t *testing.T) {
			rec, body := api.get(t, path)
			require.Equal(t, http.StatusOK, rec.Code)

			assert.Equal(t, []interface{}{}, body["routes"])

			decoded, err := api.node.DecodeInvoice(context.Background(), body["pr"].(string))
			require.NoError(t, err)

			expected := sha256.Sum256([]byte(`[["text/plain","Payment for services"]]`))
			assert.Equal(t, expected[:], decoded.DescriptionHash)
			assert.Equal(t, uint64(2500), decoded.AmountMsat)

			assert.Equal(t, events.InvoiceCreated, (<-client.Events).Type)
		})
	}

	rec, body := api.get(t, "/api/v1/invoices?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body)

	var invoices []*payrequest.IssuedInvoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoices))
	assert.Len(t, invoices, 1)
}

func TestPayCallbackErrors(t *testing.T) {
	api := newTestApi(t, nil)

	for _, path := range []string{
		"/lnurl-pay/callback",
		"/lnurl-pay/callback?amount=x",
		"/lnurl-pay/callback?amount=999",
		"/lnurl-pay/callback?amount=1000001",
		"/lnurl-pay?amount=",
	} {
		t.Run(path, func(t *testing.T) {
			rec, body := api.get(t, path)
			assertError(t, rec, body, http.StatusBadRequest)
		})
	}

	assert.Empty(t, api.node.InvoiceRequests())

	api.node.FailWith("invoice", &node.RPCError{Method: "invoice", Message: "boom"})
	rec, body := api.get(t, "/lnurl-pay/callback?amount=2500")
	assertError(t, rec, body, http.StatusInternalServerError)

	api.node.FailWith("invoice", node.ErrUnavailable)
	rec, body = api.get(t, "/lnurl-pay/callback?amount=2500")
	assertError(t, rec, body, http.StatusServiceUnavailable)
}

func TestNodeOffline(t *testing.T) {
	api := newTestApi(t, nil)
	api.reporter.state = connectivity.Offline

	for _, path := range []string{"/lnurl2", "/lnurl-channel-request?k1=a", "/lnurl-pay/callback?amount=2500", "/lnurl-pay?amount=2500"} {
		rec, body := api.get(t, path)
		assertError(t, rec, body, http.StatusServiceUnavailable)
		assert.Equal(t, "No node is available at the moment", body["reason"])
	}

	rec, _ := api.get(t, "/lnurl6")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := api.get(t, "/lnurl-pay")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payRequest", body["tag"])
}

func TestWithdrawStub(t *testing.T) {
	api := newTestApi(t, nil)

	rec, body := api.get(t, "/lnurl-withdraw?amount=5000")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "withdrawRequest", body["tag"])
	assert.Equal(t, "http://localhost:5000/lnurl-withdraw/callback", body["callback"])
	assert.Equal(t, float64(50000), body["maxWithdrawable"])
	assert.Equal(t, float64(5000), body["amount"])
	assert.Equal(t, "Withdrawal", body["defaultDescription"])

	k1 := body["k1"].(string)

	rec, body = api.get(t, "/lnurl-withdraw/callback?k1="+k1)
	assertError(t, rec, body, http.StatusBadRequest)

	rec, body = api.get(t, "/lnurl-withdraw/callback?k1="+k1+"&pr=lnbcrt1")
	assertError(t, rec, body, http.StatusNotImplemented)

	rec, body = api.get(t, "/lnurl-withdraw/callback?k1="+k1+"&pr=lnbcrt1")
	assertError(t, rec, body, http.StatusBadRequest)
}

func TestAuthStub(t *testing.T) {
	api := newTestApi(t, nil)

	rec, body := api.get(t, "/lnurl-auth")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "auth", body["tag"])
	assert.NotEmpty(t, body["user_id"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["k1"])
}

func TestWellKnown(t *testing.T) {
	api := newTestApi(t, nil)

	rec, body := api.get(t, "/.well-known/lnurlp/sosthene")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payRequest", body["tag"])
	assert.Equal(t, `{"tag":"payRequest","callback":"https://sosthene.wtf/lnurl-pay/callback"}`, rec.Body.String())

	rec, body = api.get(t, "/.well-known/lnurlp/nobody")
	assertError(t, rec, body, http.StatusNotFound)

	rec, body = api.get(t, "/.well-known/lnurlp/Bad%20Name")
	assertError(t, rec, body, http.StatusNotFound)
}

func TestQRCode(t *testing.T) {
	api := newTestApi(t, nil)

	rec, _ := api.get(t, "/qr/pay?size=128")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes()[:4])

	rec, body := api.get(t, "/qr/bogus")
	assertError(t, rec, body, http.StatusNotFound)

	rec, body = api.get(t, "/qr/pay?size=99999")
	assertError(t, rec, body, http.StatusBadRequest)
}

func TestLnurls(t *testing.T) {
	api := newTestApi(t, nil)

	rec, body := api.get(t, "/api/v1/lnurls")
	require.Equal(t, http.StatusOK, rec.Code)

	decoded, err := lnurl.Decode(body["pay"].(string))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/lnurl6", decoded)
}

func TestEventsWebsocket(t *testing.T) {
	api := newTestApi(t, nil)

	server := httptest.NewServer(api)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	// the publisher drops events while the socket is not yet subscribed
	require.Eventually(t, func() bool { return api.broker.Clients() == 1 }, time.Second, 5*time.Millisecond)

	api.broker.Publish(events.New(events.NodeOnline, nil))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	event := &events.Event{}
	require.NoError(t, conn.ReadJSON(event))
	assert.Equal(t, events.NodeOnline, event.Type)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestApi(t, nil)

	rec, body := api.get(t, "/lnurl9")
	assertError(t, rec, body, http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPost, "/lnurl6", nil)
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ERROR"`)
}
