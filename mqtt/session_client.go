// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"sync/atomic"

	"github.com/fieldedge/iotops/internal/log"
	"github.com/fieldedge/iotops/mqtt/internal"
	"github.com/eclipse/paho.golang/paho"
	"github.com/eclipse/paho.golang/paho/session"
	"github.com/eclipse/paho.golang/paho/session/state"
)

// SessionClient implements an MQTT session client supporting MQTT v5 with
// QoS 0 and QoS 1.
// TODO: Add support for QoS 2.
type SessionClient struct {
	clientID string
	session  session.SessionManager
	options  *SessionClientOptions

	connectionProvider ConnectionProvider
	conn               *internal.ConnectionTracker[*paho.Client]

	// sessionStarted indicates whether Start has been called without a
	// matching Stop.
	sessionStarted atomic.Bool

	// shutdown is closed when Stop is called, tearing down the background
	// goroutines started by Start.
	shutdown *internal.Background

	// Handlers notified of connection lifecycle events, in registration
	// order.
	connectEventHandlers    *internal.AppendableListWithRemoval[ConnectEventHandler]
	disconnectEventHandlers *internal.AppendableListWithRemoval[DisconnectEventHandler]
	fatalErrorHandlers      *internal.AppendableListWithRemoval[func(error)]

	// messageHandlers holds every handler registered via
	// RegisterMessageHandler, all of which are notified of every incoming
	// PUBLISH regardless of topic; topic-based dispatch is left to callers.
	messageHandlers *internal.AppendableListWithRemoval[messageHandler]

	// outgoingPublishes queues PUBLISH packets awaiting a live connection.
	outgoingPublishes chan *outgoingPublish

	log internal.Logger
}

// NewSessionClient constructs a new session client that connects using the
// given connectionProvider. Call Start to begin connecting.
func NewSessionClient(
	connectionProvider ConnectionProvider,
	opts *SessionClientOptions,
) *SessionClient {
	if opts == nil {
		opts = &SessionClientOptions{}
	}
	opts.ensureDefaults()

	return &SessionClient{
		clientID: opts.ClientID,
		session:  state.NewInMemory(),
		options:  opts,

		connectionProvider: connectionProvider,
		conn:               internal.NewConnectionTracker[*paho.Client](),

		connectEventHandlers:    internal.NewAppendableListWithRemoval[ConnectEventHandler](),
		disconnectEventHandlers: internal.NewAppendableListWithRemoval[DisconnectEventHandler](),
		fatalErrorHandlers:      internal.NewAppendableListWithRemoval[func(error)](),
		messageHandlers:         internal.NewAppendableListWithRemoval[messageHandler](),

		outgoingPublishes: make(chan *outgoingPublish, maxPublishQueueSize),

		log: internal.Logger{Logger: log.Wrap(opts.Logger)},
	}
}

// ID returns the MQTT client identifier used for this session client.
func (c *SessionClient) ID() string {
	return c.clientID
}
