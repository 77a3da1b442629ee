package mqtt

import (
	"context"
	"sync"
)

type (
	// RawClient is the subset of SessionClient functionality the managed
	// Client needs in order to multiplex topic-filtered receivers over a
	// single underlying MQTT connection.
	RawClient interface {
		ID() string
		Publish(
			ctx context.Context,
			topic string,
			payload []byte,
			opts ...PublishOption,
		) (*Ack, error)
		RegisterMessageHandler(MessageHandler) func()
		Subscribe(
			ctx context.Context,
			topic string,
			opts ...SubscribeOption,
		) (*Ack, error)
		Unsubscribe(
			ctx context.Context,
			topic string,
			opts ...UnsubscribeOption,
		) (*Ack, error)
	}

	// Client multiplexes a RawClient's undifferentiated publish stream into
	// filter-scoped receivers. Receivers registered on the same filter share
	// a single underlying subscription, reference-counted so the last one to
	// unsubscribe tears down the SUBSCRIBE.
	Client struct {
		raw RawClient

		mu   sync.Mutex
		subs map[string]*sharedSub
	}

	// Subscription represents one registered receiver's handle on a shared
	// filter subscription.
	Subscription interface {
		// Update (re)issues the underlying SUBSCRIBE with the given options.
		// It is safe to call repeatedly; the broker treats a re-subscribe as
		// an update to the existing subscription.
		Update(ctx context.Context, opts ...SubscribeOption) error

		// Unsubscribe removes this receiver from the shared filter
		// subscription. Once the last receiver on a filter unsubscribes, the
		// underlying UNSUBSCRIBE is sent.
		Unsubscribe(ctx context.Context) error
	}

	sharedSub struct {
		client *Client
		filter string

		mu       sync.Mutex
		handlers map[*registration]struct{}
		unregRaw func()
	}

	registration struct {
		sub     *sharedSub
		handler func(context.Context, *Message) error
	}
)

// NewClient creates a managed Client multiplexing raw over filter-scoped
// receivers.
func NewClient(raw RawClient) *Client {
	return &Client{raw: raw, subs: make(map[string]*sharedSub)}
}

// Register adds a receiver for the given topic filter (which may carry a
// "$share/<group>/" prefix). The returned Subscription controls the
// lifecycle of the underlying SUBSCRIBE shared by every receiver registered
// on the same filter.
func (c *Client) Register(
	filter string,
	handler func(context.Context, *Message) error,
) (Subscription, error) {
	c.mu.Lock()
	sub, ok := c.subs[filter]
	if !ok {
		sub = &sharedSub{client: c, filter: filter, handlers: map[*registration]struct{}{}}
		sub.unregRaw = c.raw.RegisterMessageHandler(sub.dispatch)
		c.subs[filter] = sub
	}
	c.mu.Unlock()

	reg := &registration{sub: sub, handler: handler}
	sub.mu.Lock()
	sub.handlers[reg] = struct{}{}
	sub.mu.Unlock()

	return reg, nil
}

// dispatch fans a raw publish out to every receiver whose filter matches the
// message topic. Each receiver's handler is responsible for acking (or
// erroring) the message; since receivers sharing a filter also share the
// message's underlying ack, the transport only sees the ack once regardless
// of how many receivers process it.
func (s *sharedSub) dispatch(ctx context.Context, msg *Message) {
	if !IsTopicFilterMatch(s.filter, msg.Topic) {
		return
	}

	s.mu.Lock()
	handlers := make([]func(context.Context, *Message) error, 0, len(s.handlers))
	for reg := range s.handlers {
		handlers = append(handlers, reg.handler)
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		_ = handler(ctx, msg)
	}
}

func (r *registration) Update(ctx context.Context, opts ...SubscribeOption) error {
	_, err := r.sub.client.raw.Subscribe(ctx, r.sub.filter, opts...)
	return err
}

func (r *registration) Unsubscribe(ctx context.Context) error {
	sub := r.sub
	client := sub.client

	sub.mu.Lock()
	delete(sub.handlers, r)
	remaining := len(sub.handlers)
	sub.mu.Unlock()

	if remaining > 0 {
		return nil
	}

	client.mu.Lock()
	if client.subs[sub.filter] == sub {
		delete(client.subs, sub.filter)
	}
	client.mu.Unlock()

	sub.unregRaw()
	_, err := client.raw.Unsubscribe(ctx, sub.filter)
	return err
}
