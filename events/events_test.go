package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	broker := NewBroker(4)

	a := broker.Subscribe()
	b := broker.Subscribe()
	assert.NotEqual(t, a.Id, b.Id)

	delivered := broker.Publish(New(InvoiceCreated, "x"))
	assert.Equal(t, 2, delivered)

	event := <-a.Events
	assert.Equal(t, InvoiceCreated, event.Type)
	assert.Equal(t, "x", event.Data)

	event = <-b.Events
	assert.Equal(t, InvoiceCreated, event.Type)
}

func TestPublishDoesNotBlockOnFullClient(t *testing.T) {
	broker := NewBroker(1)
	client := broker.Subscribe()

	assert.Equal(t, 1, broker.Publish(New(NodeOnline, nil)))
	assert.Equal(t, 0, broker.Publish(New(NodeOffline, nil)))

	event := <-client.Events
	assert.Equal(t, NodeOnline, event.Type)
}

func TestCancel(t *testing.T) {
	broker := NewBroker(1)
	client := broker.Subscribe()
	require.Equal(t, 1, broker.Clients())

	client.Cancel()
	client.Cancel()

	assert.Equal(t, 0, broker.Clients())
	assert.Equal(t, 0, broker.Publish(New(NodeOnline, nil)))

	select {
	case <-client.Done():
	default:
		t.Fatal("client not done after cancel")
	}
}
