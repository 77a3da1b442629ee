// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"math"
	"strconv"
	"strings"

	"github.com/fieldedge/iotops/mqtt/auth"
	"github.com/fieldedge/iotops/mqtt/internal"
	"github.com/sosodev/duration"
)

// Connection string example:
// HostName=localhost;TcpPort=1883;UseTls=true;ClientId=edge-01.
func parseConnectionString(
	connStr string,
) (ConnectionProvider, *SessionClientOptions, error) {
	return settingsFromMap(parseConnectionStringMap(connStr))
}

func parseConnectionStringMap(connStr string) map[string]string {
	settings := make(map[string]string)
	connStr = strings.TrimSuffix(connStr, ";")
	for _, param := range strings.Split(connStr, ";") {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) == 2 {
			k := strings.ToLower(strings.TrimSpace(kv[0]))
			settings[k] = strings.TrimSpace(kv[1])
		}
	}
	return settings
}

func settingsFromMap(
	settings map[string]string,
) (ConnectionProvider, *SessionClientOptions, error) {
	opts := &SessionClientOptions{
		CleanStart:     true,
		KeepAlive:      60,
		SessionExpiry:  3600,
		ReceiveMaximum: math.MaxUint16,
		ClientID:       internal.RandomClientID(),
	}

	if v := settings["cleanstart"]; v != "" {
		cleanStart, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse CleanStart as a boolean",
				wrapped: err,
			}
		}
		opts.CleanStart = cleanStart
	}

	if v := settings["clientid"]; v != "" {
		opts.ClientID = v
	}

	if v := settings["keepalive"]; v != "" {
		seconds, err := parseISO8601Seconds(v, math.MaxUint16)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse KeepAlive as an ISO8601 duration",
				wrapped: err,
			}
		}
		opts.KeepAlive = uint16(seconds)
	}

	if v := settings["sessionexpiry"]; v != "" {
		seconds, err := parseISO8601Seconds(v, math.MaxUint32)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse SessionExpiry as an ISO8601 duration",
				wrapped: err,
			}
		}
		opts.SessionExpiry = uint32(seconds)
	}

	if v := settings["connectiontimeout"]; v != "" {
		parsed, err := duration.Parse(v)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse ConnectionTimeout as an ISO8601 duration",
				wrapped: err,
			}
		}
		opts.ConnectionTimeout = parsed.ToTimeDuration()
	}

	if v := settings["receivemaximum"]; v != "" {
		receiveMaximum, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse ReceiveMaximum as an integer",
				wrapped: err,
			}
		}
		opts.ReceiveMaximum = uint16(receiveMaximum)
	}

	username, usernameOK := settings["username"]
	password, passwordOK := settings["password"]
	passwordFile, passwordFileOK := settings["passwordfile"]
	if passwordOK && passwordFileOK {
		return nil, nil, &InvalidArgumentError{
			message: "Password and PasswordFile are both provided, but only one may be used",
		}
	}
	if usernameOK {
		opts.Username = ConstantUsername(username)
	}
	if passwordOK {
		opts.Password = ConstantPassword([]byte(password))
	} else if passwordFileOK {
		opts.Password = FilePassword(passwordFile)
	}

	if satAuthFile := settings["satauthfile"]; satAuthFile != "" {
		satAuth, err := auth.NewServiceAccountTokenAuth(satAuthFile)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "error setting up the SAT auth provider",
				wrapped: err,
			}
		}
		opts.Auth = satAuth
	}

	hostname := settings["hostname"]
	if hostname == "" {
		return nil, nil, &InvalidArgumentError{message: "HostName must be provided"}
	}

	port := uint16(8883)
	if v := settings["tcpport"]; v != "" {
		parsed, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse TcpPort as an integer",
				wrapped: err,
			}
		}
		port = uint16(parsed)
	}

	useTLS := true
	if v := settings["usetls"]; v != "" {
		var err error
		useTLS, err = strconv.ParseBool(v)
		if err != nil {
			return nil, nil, &InvalidArgumentError{
				message: "unable to parse UseTls as a boolean",
				wrapped: err,
			}
		}
	}

	certFile, keyFile, caFile := settings["certfile"], settings["keyfile"], settings["cafile"]
	if !useTLS {
		if certFile != "" || keyFile != "" || caFile != "" {
			return nil, nil, &InvalidArgumentError{
				message: "CertFile, KeyFile, and CaFile must not be provided if UseTls is false",
			}
		}
		return TCPConnection(hostname, port), opts, nil
	}

	if (certFile != "") != (keyFile != "") {
		return nil, nil, &InvalidArgumentError{
			message: "both CertFile and KeyFile must be provided if using X509 authentication",
		}
	}

	var tlsOpts []TLSOption
	if certFile != "" {
		if keyFilePassword := settings["keyfilepassword"]; keyFilePassword != "" {
			tlsOpts = append(tlsOpts, WithEncryptedX509(certFile, keyFile, keyFilePassword))
		} else {
			tlsOpts = append(tlsOpts, WithX509(certFile, keyFile))
		}
	}
	if caFile != "" {
		tlsOpts = append(tlsOpts, WithCA(caFile))
	}

	return TLSConnection(hostname, port, tlsOpts...), opts, nil
}

func parseISO8601Seconds(v string, max float64) (float64, error) {
	parsed, err := duration.Parse(v)
	if err != nil {
		return 0, err
	}
	seconds := parsed.ToTimeDuration().Seconds()
	if seconds > max || seconds < 0 {
		return 0, &InvalidArgumentError{message: "value is outside of the valid MQTT range"}
	}
	return seconds, nil
}

// NewSessionClientFromConnectionString constructs a session client from a
// connection string of the form
// "HostName=localhost;TcpPort=1883;UseTls=true;ClientId=edge-01".
func NewSessionClientFromConnectionString(
	connStr string,
	opt ...SessionClientOption,
) (*SessionClient, error) {
	connectionProvider, opts, err := parseConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	opts.Apply(opt)
	return NewSessionClient(connectionProvider, opts), nil
}
