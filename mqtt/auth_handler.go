package mqtt

import (
	"context"

	"github.com/fieldedge/iotops/mqtt/auth"
	"github.com/eclipse/paho.golang/paho"
)

// pahoAuther adapts a configured auth.Provider to Paho's Auther interface,
// translating AUTH packets exchanged during an enhanced authentication flow.
type pahoAuther struct {
	c *SessionClient
}

// Authenticate is called by Paho when an AUTH packet is received from the
// server requesting the next round of an authentication exchange.
func (a *pahoAuther) Authenticate(p *paho.Auth) *paho.Auth {
	ctx := context.Background()
	a.c.log.Packet(ctx, "auth received", p)

	values, err := a.c.options.Auth.ContinueAuth(&auth.Values{
		AuthMethod: p.Properties.AuthMethod,
		AuthData:   p.Properties.AuthData,
	})
	if err != nil {
		a.c.log.Error(ctx, err)
		return nil
	}

	resp := &paho.Auth{
		ReasonCode: authContinueAuthentication,
		Properties: &paho.AuthProperties{
			AuthMethod: values.AuthMethod,
			AuthData:   values.AuthData,
		},
	}
	a.c.log.Packet(ctx, "auth", resp)
	return resp
}

// Authenticated is called by Paho once a CONNACK or AUTH packet with a
// success reason code is received following an authentication exchange.
func (a *pahoAuther) Authenticated() {
	a.c.options.Auth.AuthSuccess(a.c.requestReauth)
}

// requestReauth initiates a reauthentication exchange on the current
// connection. It is passed to the configured auth.Provider as the
// requestReauthentication callback, and may be called at any time for the
// lifetime of the connection that received it.
func (c *SessionClient) requestReauth() {
	ctx, cancel := c.shutdown.With(context.Background())
	defer cancel()

	current := c.conn.Current()
	if current.Client == nil {
		return
	}

	values, err := c.options.Auth.InitiateAuth(true)
	if err != nil {
		c.log.Error(ctx, err)
		return
	}

	packet := &paho.Auth{
		ReasonCode: authReauthenticate,
		Properties: &paho.AuthProperties{
			AuthMethod: values.AuthMethod,
			AuthData:   values.AuthData,
		},
	}
	c.log.Packet(ctx, "auth", packet)
	if err := pahoAuth(ctx, current.Client, packet); err != nil {
		c.log.Error(ctx, err)
	}
}
