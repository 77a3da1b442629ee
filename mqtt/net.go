// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/packets"
)

// ConnectionProvider is a function that returns a net.Conn connected to an
// MQTT server that is ready to read to and write from. Note that the returned
// net.Conn must be thread-safe (i.e., concurrent Write calls must not
// interleave).
type ConnectionProvider func(context.Context) (net.Conn, error)

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port uint16) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(
			ctx,
			"tcp",
			fmt.Sprintf("%s:%d", hostname, port),
		)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// TLSConfigProvider is a function that returns a *tls.Config to be used when
// opening a TLS connection to an MQTT server. See tls.Config for more
// information on TLS configuration options.
type TLSConfigProvider func(context.Context) (*tls.Config, error)

// ConstantTLSConfig is a TLSConfigProvider that returns an unchanging
// *tls.Config. This can be used if the TLS configuration does not need to be
// updated between network connections to the MQTT server.
func ConstantTLSConfig(config *tls.Config) TLSConfigProvider {
	return func(context.Context) (*tls.Config, error) {
		return config, nil
	}
}

// WithTLSConfig applies a complete TLS configuration produced by provider,
// overriding any ServerName or credentials set by earlier options.
func WithTLSConfig(provider TLSConfigProvider) TLSOption {
	return func(ctx context.Context, cfg *tls.Config) error {
		config, err := provider(ctx)
		if err != nil {
			return err
		}
		*cfg = *config
		return nil
	}
}

// TLSOption configures the *tls.Config used by TLSConnection. It is applied
// in order against a config seeded with the target hostname as ServerName.
type TLSOption func(context.Context, *tls.Config) error

// WithX509 configures the TLS connection to present a client certificate
// loaded from an unencrypted PEM certificate/key pair.
func WithX509(certFile, keyFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithEncryptedX509 configures the TLS connection to present a client
// certificate loaded from a PEM key pair whose private key is encrypted,
// with the decryption password read from passFile.
func WithEncryptedX509(certFile, keyFile, passFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := loadX509KeyPairWithPassword(certFile, keyFile, passFile)
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithCA configures the TLS connection to trust the CA certificate(s) in
// caFile instead of the system root pool.
func WithCA(caFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pool, err := loadCACertPool(caFile)
		if err != nil {
			return err
		}
		cfg.RootCAs = pool
		return nil
	}
}

// TLSConnection is a ConnectionProvider that connects to an MQTT server with
// TLS over TCP, applying the given options to the TLS configuration.
func TLSConnection(
	hostname string,
	port uint16,
	tlsOpts ...TLSOption,
) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		config := &tls.Config{ServerName: hostname, MinVersion: tls.VersionTLS12}
		for _, opt := range tlsOpts {
			if err := opt(ctx, config); err != nil {
				return nil, &ConnectionError{
					message: "error applying TLS configuration",
					wrapped: err,
				}
			}
		}

		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(
			ctx,
			"tcp",
			fmt.Sprintf("%s:%d", hostname, port),
		)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TLS connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}
