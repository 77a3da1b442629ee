// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package version

import (
	"strconv"
	"strings"
)

const (
	ProtocolString  = "1.0"
	SupportedString = "1"

	// RPC is the protocol version stamped on command request/response
	// messages.
	RPC = "1.0"

	// Telemetry is the protocol version stamped on telemetry messages.
	Telemetry = "1.0"
)

var (
	Supported = ParseSupported(SupportedString)

	// RPCSupported lists the major protocol versions accepted for command
	// request/response messages.
	RPCSupported = ParseSupported(SupportedString)

	// TelemetrySupported lists the major protocol versions accepted for
	// telemetry messages.
	TelemetrySupported = ParseSupported(SupportedString)
)

func ParseProtocol(v string) (major, minor int) {
	if v == "" {
		return 1, 0
	}

	parts := strings.Split(v, ".")
	if len(parts) != 2 {
		return -1, 0
	}

	var err error
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return -1, 0
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return -1, 0
	}
	return major, minor
}

func ParseSupported(vs string) []int {
	parts := strings.Split(vs, " ")
	if len(parts) == 0 {
		return nil
	}

	res := make([]int, len(parts))
	for i, part := range parts {
		var err error
		res[i], err = strconv.Atoi(part)
		if err != nil {
			return nil
		}
	}
	return res
}

func IsSupported(v string) bool {
	return IsSupportedIn(v, Supported)
}

// IsSupportedIn reports whether v's major version appears in supported.
func IsSupportedIn(v string, supported []int) bool {
	major, _ := ParseProtocol(v)
	for _, s := range supported {
		if major == s {
			return true
		}
	}
	return false
}
