// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"log/slog"
	"math"
	"time"

	"github.com/fieldedge/iotops/mqtt/auth"
	"github.com/fieldedge/iotops/mqtt/internal"
	"github.com/fieldedge/iotops/mqtt/retry"
)

// SessionClientOptions are the resolved options used to construct a
// SessionClient.
type SessionClientOptions struct {
	// ClientID is the MQTT client identifier. If empty, a random client ID is
	// generated.
	ClientID string

	// ConnectionRetry is the retry policy used for establishing and
	// re-establishing the MQTT connection. Defaults to
	// retry.ExponentialBackoff with unlimited attempts.
	ConnectionRetry retry.Policy

	// ConnectionTimeout bounds a single connection attempt, including TCP/TLS
	// handshake and CONNACK. Zero means no timeout.
	ConnectionTimeout time.Duration

	// CleanStart requests a clean MQTT session on the first connection. It is
	// ignored on reconnection attempts, which always request session
	// continuation.
	//
	// This setting is true for clients built from a connection string; the
	// zero value of SessionClientOptions (and the environment loader, unless
	// BROKER_CLEAN_START is set) leaves it false. Do not set it to false
	// unless you are aware of the implications. If there is a possibility of a
	// session on the MQTT server for this client ID with inflight QoS 1
	// PUBLISHes, setting this to false may result in message loss and/or MQTT
	// protocol violations.
	CleanStart bool

	// KeepAlive is the MQTT keep-alive interval, in seconds.
	KeepAlive uint16

	// SessionExpiry is the MQTT session expiry interval, in seconds.
	SessionExpiry uint32

	// ReceiveMaximum is the maximum number of QoS 1/2 publishes the client
	// will process concurrently. Defaults to the MQTT maximum.
	ReceiveMaximum uint16

	// ConnectUserProperties are user properties attached to the CONNECT
	// packet.
	ConnectUserProperties map[string]string

	// Username provides the MQTT username for each connection attempt.
	Username UsernameProvider

	// Password provides the MQTT password for each connection attempt.
	Password PasswordProvider

	// Auth configures enhanced (SASL-style) MQTT authentication. If nil, no
	// enhanced authentication exchange is performed.
	Auth auth.Provider

	// Logger receives structured logs from the session client. If nil,
	// logging is disabled.
	Logger *slog.Logger
}

// SessionClientOption represents a single session client option.
type SessionClientOption interface {
	sessionClient(*SessionClientOptions)
}

// Apply resolves a list of options against the receiver, applying each in
// order.
func (o *SessionClientOptions) Apply(opts []SessionClientOption) {
	for _, opt := range opts {
		if opt != nil {
			opt.sessionClient(o)
		}
	}
}

func (o *SessionClientOptions) ensureDefaults() {
	if o.ClientID == "" {
		o.ClientID = internal.RandomClientID()
	}
	if o.ReceiveMaximum == 0 {
		o.ReceiveMaximum = math.MaxUint16
	}
	if o.ConnectionRetry == nil {
		o.ConnectionRetry = &retry.ExponentialBackoff{Logger: o.Logger}
	}
}

type sessionClientOptionFunc func(*SessionClientOptions)

func (f sessionClientOptionFunc) sessionClient(o *SessionClientOptions) { f(o) }

// WithLogger sets the logger used by the session client.
func WithLogger(logger *slog.Logger) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.Logger = logger
	})
}

// WithClientID sets the MQTT client identifier.
func WithClientID(clientID string) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.ClientID = clientID
	})
}

// WithConnectionRetry sets the retry policy used to establish and
// re-establish the MQTT connection.
func WithConnectionRetry(policy retry.Policy) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.ConnectionRetry = policy
	})
}

// WithConnectionTimeout bounds a single connection attempt.
func WithConnectionTimeout(timeout time.Duration) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.ConnectionTimeout = timeout
	})
}

// WithCleanStart sets whether a clean MQTT session is requested on the first
// connection.
func WithCleanStart(cleanStart bool) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.CleanStart = cleanStart
	})
}

// WithKeepAlive sets the MQTT keep-alive interval, in seconds.
func WithKeepAlive(seconds uint16) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.KeepAlive = seconds
	})
}

// WithSessionExpiryInterval sets the MQTT session expiry interval, in
// seconds.
func WithSessionExpiryInterval(seconds uint32) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.SessionExpiry = seconds
	})
}

// WithReceiveMaximum sets the maximum number of QoS 1/2 publishes the client
// will process concurrently.
func WithReceiveMaximum(max uint16) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.ReceiveMaximum = max
	})
}

// WithConnectPropertiesUser attaches user properties to the CONNECT packet.
func WithConnectPropertiesUser(properties map[string]string) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.ConnectUserProperties = properties
	})
}

// WithUsername sets the MQTT username provider.
func WithUsername(username UsernameProvider) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.Username = username
	})
}

// WithPassword sets the MQTT password provider.
func WithPassword(password PasswordProvider) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.Password = password
	})
}

// WithAuth configures an enhanced authentication provider.
func WithAuth(provider auth.Provider) SessionClientOption {
	return sessionClientOptionFunc(func(o *SessionClientOptions) {
		o.Auth = provider
	})
}
