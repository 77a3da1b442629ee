// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fieldedge/iotops/internal/log"
	"github.com/fieldedge/iotops/internal/mqtt"
	"github.com/fieldedge/iotops/protocol/errors"
	"github.com/fieldedge/iotops/protocol/hlc"
	"github.com/fieldedge/iotops/protocol/internal"
	"github.com/fieldedge/iotops/protocol/internal/constants"
	"github.com/fieldedge/iotops/protocol/internal/version"
	"github.com/google/uuid"
)

type (
	// Listener represents an object which will listen to a MQTT topic.
	Listener interface {
		Start(context.Context) error
		Close()
	}

	// Listeners represents a collection of MQTT listeners.
	Listeners []Listener

	// Provide the shared implementation details for the MQTT listeners.
	listener[T any] struct {
		app              *Application
		client           *mqtt.Client
		encoding         Encoding[T]
		topic            *internal.TopicFilter
		shareName        string
		concurrency      uint
		reqCorrelation   bool
		supportedVersion []int
		log              log.Logger
		handler          interface {
			onMsg(context.Context, *mqtt.Message, *Message[T]) error
			onErr(context.Context, *mqtt.Message, error) error
		}

		sub    mqtt.Subscription
		done   func()
		active atomic.Bool
	}
)

func (l *listener[T]) register() error {
	handle, done := internal.Concurrent(l.concurrency, l.handle)

	// Make the subscription shared if specified.
	filter := l.topic.Filter()
	if l.shareName != "" {
		filter = "$share/" + l.shareName + "/" + filter
	}

	sub, err := l.client.Register(
		filter,
		func(ctx context.Context, pub *mqtt.Message) error {
			handle(ctx, pub)
			return nil
		},
	)
	if err != nil {
		done()
		return err
	}

	l.sub = sub
	l.done = done
	return nil
}

func (l *listener[T]) listen(ctx context.Context) error {
	if l.active.CompareAndSwap(false, true) {
		return l.sub.Update(
			ctx,
			mqtt.WithQoS(1),
			mqtt.WithNoLocal(l.shareName == ""),
		)
	}
	return nil
}

// start is a logging wrapper around listen used by listeners that name their
// component for diagnostics (e.g. command executors).
func (l *listener[T]) start(ctx context.Context, component ...string) error {
	if err := l.listen(ctx); err != nil {
		return err
	}
	l.log.Info(ctx, componentName(component)+" started listening")
	return nil
}

func (l *listener[T]) close(component ...string) {
	if l.active.CompareAndSwap(true, false) {
		ctx := context.Background()
		if err := l.sub.Unsubscribe(ctx); err != nil {
			// Returning an error from a close function that is most likely to
			// be deferred is rarely useful, so just log it.
			l.log.Err(ctx, err)
		}
	}
	l.done()
	if len(component) > 0 {
		l.log.Info(context.Background(), componentName(component)+" closed")
	}
}

func componentName(component []string) string {
	if len(component) > 0 {
		return component[0]
	}
	return "listener"
}

func (l *listener[T]) handle(ctx context.Context, pub *mqtt.Message) {
	msg := &Message[T]{}

	// The very first check must be the version, because if we don't support it,
	// nothing else is trustworthy.
	ver := pub.UserProperties[constants.ProtocolVersion]
	if !version.IsSupportedIn(ver, l.supportedVersion) {
		l.error(ctx, pub, &errors.Error{
			Message:                        "unsupported version",
			Kind:                           errors.UnsupportedRequestVersion,
			ProtocolVersion:                ver,
			SupportedMajorProtocolVersions: l.supportedVersion,
		})
		return
	}

	if l.reqCorrelation && len(pub.CorrelationData) == 0 {
		l.error(ctx, pub, &errors.Error{
			Message:    "correlation data missing",
			Kind:       errors.HeaderMissing,
			HeaderName: constants.CorrelationData,
		})
		return
	}
	if len(pub.CorrelationData) != 0 {
		correlationData, err := uuid.FromBytes(pub.CorrelationData)
		if err != nil {
			l.error(ctx, pub, &errors.Error{
				Message:    "correlation data is not a valid UUID",
				Kind:       errors.HeaderInvalid,
				HeaderName: constants.CorrelationData,
			})
			return
		}
		msg.CorrelationData = correlationData.String()
	}

	ts := pub.UserProperties[constants.Timestamp]
	if ts != "" {
		var err error
		msg.Timestamp, err = hlc.Parse(constants.Timestamp, ts)
		if err != nil {
			l.error(ctx, pub, err)
			return
		}
	}

	msg.Metadata = internal.PropToMetadata(pub.UserProperties)
	msg.TopicTokens = l.topic.Tokens(pub.Topic)

	if err := l.handler.onMsg(ctx, pub, msg); err != nil {
		l.error(ctx, pub, err)
		return
	}
}

// Handle payload manually, since it may be ignored on errors.
func (l *listener[T]) payload(pub *mqtt.Message) (T, error) {
	var zero T

	switch pub.PayloadFormat {
	case 0: // Do nothing; always valid.
	case 1:
		if l.encoding.PayloadFormat() == 0 {
			return zero, &errors.Error{
				Message:     "payload format indicator mismatch",
				Kind:        errors.HeaderInvalid,
				HeaderName:  constants.FormatIndicator,
				HeaderValue: fmt.Sprint(pub.PayloadFormat),
			}
		}
	default:
		return zero, &errors.Error{
			Message:     "payload format indicator invalid",
			Kind:        errors.HeaderInvalid,
			HeaderName:  constants.FormatIndicator,
			HeaderValue: fmt.Sprint(pub.PayloadFormat),
		}
	}

	if pub.ContentType != "" && l.encoding.ContentType() != "" &&
		pub.ContentType != l.encoding.ContentType() {
		return zero, &errors.Error{
			Message:     "content type mismatch",
			Kind:        errors.HeaderInvalid,
			HeaderName:  constants.ContentType,
			HeaderValue: pub.ContentType,
		}
	}

	return deserialize(l.encoding, pub.Payload)
}

func (l *listener[T]) ack(ctx context.Context, pub *mqtt.Message) {
	// Drop rather than returning, so we don't attempt to double-ack on failure.
	if err := pub.Ack(); err != nil {
		l.drop(ctx, pub, err)
	}
}

func (l *listener[T]) error(ctx context.Context, pub *mqtt.Message, err error) {
	// Drop the message if the error handler fails.
	if e := l.handler.onErr(ctx, pub, err); e != nil {
		l.drop(ctx, pub, err)
	}
}

func (l *listener[T]) drop(ctx context.Context, _ *mqtt.Message, err error) {
	l.log.Err(ctx, err)
}

// Start listening to all underlying MQTT topics.
func (ls Listeners) Start(ctx context.Context) error {
	for _, l := range ls {
		if err := l.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close all underlying MQTT topics and free resources.
func (ls Listeners) Close() {
	for _, l := range ls {
		l.Close()
	}
}
