// Package events fans out protocol events to subscribed clients.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	ChallengeIssued Type = "challenge_issued"
	InvoiceCreated  Type = "invoice_created"
	ChannelFunded   Type = "channel_funded"
	ChannelFailed   Type = "channel_failed"
	NodeOnline      Type = "node_online"
	NodeOffline     Type = "node_offline"
)

type Event struct {
	Type Type        `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data,omitempty"`
}

func New(t Type, data interface{}) *Event {
	return &Event{
		Type: t,
		Time: time.Now().UTC(),
		Data: data,
	}
}

// Client receives events until it is cancelled.
type Client struct {
	Events     chan *Event
	Id         uint32
	cancelChan chan struct{}
	cancelOnce sync.Once
	broker     *Broker
}

// Broker delivers published events to all clients. Slow clients miss
// events instead of blocking the publisher.
type Broker struct {
	clients      map[uint32]*Client
	clientsMtx   sync.Mutex
	nextClientId uint32
	bufferSize   int
}

func NewBroker(bufferSize int) *Broker {
	return &Broker{
		clients:    make(map[uint32]*Client),
		bufferSize: bufferSize,
	}
}

func (b *Broker) Subscribe() *Client {
	client := &Client{
		Events:     make(chan *Event, b.bufferSize),
		cancelChan: make(chan struct{}),
		broker:     b,
	}

	b.clientsMtx.Lock()
	client.Id = b.nextClientId
	b.nextClientId++
	b.clients[client.Id] = client
	b.clientsMtx.Unlock()

	return client
}

// Publish returns the number of clients the event was delivered to.
func (b *Broker) Publish(event *Event) int {
	b.clientsMtx.Lock()
	defer b.clientsMtx.Unlock()

	delivered := 0
	for _, client := range b.clients {
		select {
		case client.Events <- event:
			delivered++
		default:
		}
	}

	return delivered
}

func (b *Broker) Clients() int {
	b.clientsMtx.Lock()
	defer b.clientsMtx.Unlock()

	return len(b.clients)
}

// Done is closed when the client is cancelled.
func (c *Client) Done() <-chan struct{} {
	return c.cancelChan
}

func (c *Client) Cancel() {
	c.cancelOnce.Do(func() {
		c.broker.clientsMtx.Lock()
		delete(c.broker.clients, c.Id)
		c.broker.clientsMtx.Unlock()

		close(c.cancelChan)
	})
}
