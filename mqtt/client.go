// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
)

type (
	// PahoClient is the interface for the underlying MQTTv5 client used by
	// ManagedClient, intended for future client swapping and testing purpose.
	// Currently, the Paho client serves as the core implementation.
	PahoClient interface {
		Connect(
			ctx context.Context,
			packet *paho.Connect,
		) (*paho.Connack, error)

		Disconnect(
			packet *paho.Disconnect,
		) error

		Subscribe(
			ctx context.Context,
			packet *paho.Subscribe,
		) (*paho.Suback, error)

		Unsubscribe(
			ctx context.Context,
			packet *paho.Unsubscribe,
		) (*paho.Unsuback, error)

		Publish(
			ctx context.Context,
			packet *paho.Publish,
		) (*paho.PublishResponse, error)

		AddOnPublishReceived(
			f func(paho.PublishReceived) (bool, error),
		) func()

		Ack(
			pb *paho.Publish,
		) error

		Authenticate(
			ctx context.Context,
			auth *paho.Auth,
		) (*paho.AuthResponse, error)
	}
)
