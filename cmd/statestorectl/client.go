package main

import (
	"context"
	"fmt"
	"time"

	iotmqtt "github.com/fieldedge/iotops/mqtt"
	"github.com/fieldedge/iotops/protocol"
	"github.com/fieldedge/iotops/services/statestore"
)

const connectTimeout = 10 * time.Second

// newClient establishes a connected MQTT session and a state store client
// over it, returning a teardown function that must be called before the
// process exits.
func newClient(
	ctx context.Context,
	flags *globalFlags,
) (*statestore.Client[string, []byte], func(), error) {
	clientID := fmt.Sprintf("%s-%s", toolName, toolVersion)
	log := logger(flags)

	var connStr string
	if flags.notls {
		if flags.cafile != "" || flags.certfile != "" || flags.keyfile != "" {
			return nil, nil, fmt.Errorf("cafile, certfile, and keyfile must not be set with --notls")
		}
		connStr = fmt.Sprintf(
			"HostName=%s;TcpPort=%d;UseTls=false;ClientId=%s",
			flags.hostname, flags.port, clientID,
		)
	} else {
		connStr = fmt.Sprintf(
			"HostName=%s;TcpPort=%d;UseTls=true;ClientId=%s",
			flags.hostname, flags.port, clientID,
		)
		if flags.cafile != "" {
			connStr += ";CaFile=" + flags.cafile
		}
		if flags.certfile != "" {
			connStr += ";CertFile=" + flags.certfile
		}
		if flags.keyfile != "" {
			connStr += ";KeyFile=" + flags.keyfile
		}
		if flags.keypasswordfile != "" {
			connStr += ";KeyFilePassword=" + flags.keypasswordfile
		}
	}
	connStr += ";KeepAlive=PT5S"

	client, err := iotmqtt.NewSessionClientFromConnectionString(
		connStr,
		iotmqtt.WithLogger(log),
		iotmqtt.WithConnectionTimeout(connectTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("error configuring MQTT session: %w", err)
	}

	app, err := protocol.NewApplication(protocol.WithMaxClockDrift(0))
	if err != nil {
		return nil, nil, fmt.Errorf("error creating application context: %w", err)
	}

	store, err := statestore.New[string, []byte](app, client, statestore.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("error creating state store client: %w", err)
	}

	if err := client.Start(); err != nil {
		return nil, nil, fmt.Errorf("error starting MQTT session: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	waitForConnection(connCtx, client)

	if err := store.Start(ctx); err != nil {
		_ = client.Stop()
		return nil, nil, fmt.Errorf("error starting state store client: %w", err)
	}

	teardown := func() {
		store.Close()
		_ = client.Stop()
	}
	return store, teardown, nil
}

// waitForConnection blocks until the first connection event fires or ctx is
// done, whichever comes first.
func waitForConnection(ctx context.Context, client *iotmqtt.SessionClient) {
	connected := make(chan struct{})
	unregister := client.RegisterConnectEventHandler(func(*iotmqtt.ConnectEvent) {
		select {
		case <-connected:
		default:
			close(connected)
		}
	})
	defer unregister()

	select {
	case <-connected:
	case <-ctx.Done():
	}
}
