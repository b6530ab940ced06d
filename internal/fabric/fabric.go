// Package fabric is a best-effort publish/subscribe transport keyed by topic
// strings. Publishing never blocks the caller and a topic without subscribers
// swallows the event. Pollable state stays the source of truth.
package fabric

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	userTopicPrefix    = "user-"
	sessionTopicPrefix = "session-"
)

func UserTopic(userID string) string { return userTopicPrefix + userID }

func SessionTopic(inviteID string) string { return sessionTopicPrefix + inviteID }

type Event struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Publisher is the narrow view the invite manager and session actors use.
type Publisher interface {
	Publish(topic, eventType string, payload any)
}

type Msg interface{ isFabricMsg() }

type Subscribe struct {
	Topic  string
	Client *Client
	Done   chan struct{}
}

type Unsubscribe struct {
	Topic    string
	ClientID string
	Done     chan struct{}
}

// Detach drops a client from every topic and closes its event channel.
type Detach struct{ Client *Client }

type Publish struct{ Event Event }

type GetStats struct{ Reply chan Stats }

type Shutdown struct{}

func (Subscribe) isFabricMsg()   {}
func (Unsubscribe) isFabricMsg() {}
func (Detach) isFabricMsg()      {}
func (Publish) isFabricMsg()     {}
func (GetStats) isFabricMsg()    {}
func (Shutdown) isFabricMsg()    {}

type Stats struct {
	Topics      map[string]int
	Clients     int
	Dropped     int
	Undelivered int
}

type Fabric struct {
	inbox   chan Msg
	topics  map[string]map[string]*Client
	clients map[string]*Client
	dropped int
	missed  int
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, log *zap.Logger) *Fabric {
	ctx, cancel := context.WithCancel(parent)
	f := &Fabric{
		inbox:   make(chan Msg, 256),
		topics:  make(map[string]map[string]*Client),
		clients: make(map[string]*Client),
		log:     log.Named("fabric"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go f.loop()
	return f
}

func (f *Fabric) Inbox() chan<- Msg { return f.inbox }

// NewClient returns an unattached subscriber with its own buffered event
// channel. When the buffer is full the oldest pending event is dropped.
func (f *Fabric) NewClient(id string, buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}
	return &Client{id: id, out: make(chan Event, buffer), fabric: f}
}

// Subscribe is idempotent and returns once the subscription is registered.
func (f *Fabric) Subscribe(ctx context.Context, topic string, c *Client) error {
	done := make(chan struct{})
	return f.request(ctx, Subscribe{Topic: topic, Client: c, Done: done}, done)
}

func (f *Fabric) Unsubscribe(ctx context.Context, topic string, c *Client) error {
	done := make(chan struct{})
	return f.request(ctx, Unsubscribe{Topic: topic, ClientID: c.id, Done: done}, done)
}

func (f *Fabric) request(ctx context.Context, m Msg, done <-chan struct{}) error {
	select {
	case f.inbox <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

// Publish hands the event to the fabric loop without waiting. If the loop is
// saturated the event is discarded.
func (f *Fabric) Publish(topic, eventType string, payload any) {
	evt := Event{Topic: topic, Type: eventType, Payload: payload}
	select {
	case f.inbox <- Publish{Event: evt}:
	case <-f.ctx.Done():
	default:
		f.log.Debug("inbox full, event discarded", zap.String("topic", topic), zap.String("type", eventType))
	}
}

func (f *Fabric) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case f.inbox <- GetStats{Reply: reply}:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (f *Fabric) Close() {
	select {
	case f.inbox <- Shutdown{}:
	case <-f.ctx.Done():
	}
}

func (f *Fabric) loop() {
	for {
		select {
		case <-f.ctx.Done():
			f.shutdown()
			return

		case m := <-f.inbox:
			switch msg := m.(type) {
			case Subscribe:
				if !msg.Client.detached {
					subs := f.topics[msg.Topic]
					if subs == nil {
						subs = make(map[string]*Client)
						f.topics[msg.Topic] = subs
					}
					subs[msg.Client.id] = msg.Client
					f.clients[msg.Client.id] = msg.Client
				}
				close(msg.Done)

			case Unsubscribe:
				f.remove(msg.Topic, msg.ClientID)
				close(msg.Done)

			case Detach:
				c := msg.Client
				if c.detached {
					break
				}
				for topic := range f.topics {
					f.remove(topic, c.id)
				}
				delete(f.clients, c.id)
				c.detached = true
				close(c.out)

			case Publish:
				f.broadcast(msg.Event)

			case GetStats:
				s := Stats{Topics: make(map[string]int, len(f.topics)), Clients: len(f.clients), Dropped: f.dropped, Undelivered: f.missed}
				for topic, subs := range f.topics {
					s.Topics[topic] = len(subs)
				}
				msg.Reply <- s

			case Shutdown:
				f.shutdown()
				return
			}
		}
	}
}

func (f *Fabric) remove(topic, clientID string) {
	subs := f.topics[topic]
	if subs == nil {
		return
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(f.topics, topic)
	}
}

func (f *Fabric) broadcast(evt Event) {
	subs := f.topics[evt.Topic]
	if len(subs) == 0 {
		f.missed++
		return
	}
	for _, c := range subs {
		if !c.deliver(evt) {
			f.dropped++
			f.log.Debug("slow subscriber, dropped oldest event", zap.String("client", c.id), zap.String("topic", evt.Topic))
		}
	}
}

func (f *Fabric) shutdown() {
	for id, c := range f.clients {
		if !c.detached {
			c.detached = true
			close(c.out)
		}
		delete(f.clients, id)
	}
	clear(f.topics)
	f.cancel()
}

// Client is one connected subscriber. Its fields other than once are owned
// by the fabric loop.
type Client struct {
	id       string
	out      chan Event
	fabric   *Fabric
	detached bool
	once     sync.Once
}

func (c *Client) ID() string { return c.id }

// Events is closed once the client is detached or the fabric shuts down.
func (c *Client) Events() <-chan Event { return c.out }

// Close releases every subscription held by the client. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		select {
		case c.fabric.inbox <- Detach{Client: c}:
		case <-c.fabric.ctx.Done():
		}
	})
}

// deliver reports false when an older event had to be discarded.
func (c *Client) deliver(evt Event) bool {
	select {
	case c.out <- evt:
		return true
	default:
	}
	select {
	case <-c.out:
	default:
	}
	select {
	case c.out <- evt:
	default:
	}
	return false
}
