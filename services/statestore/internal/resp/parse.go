package resp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldedge/iotops/services/statestore/errors"
)

// separator is the RESP3 line terminator used by every frame the state store
// exchanges over its RPC transport.
var separator = []byte{'\r', '\n'}

// PayloadError reports a malformed RESP3 frame.
func PayloadError(format string, args ...any) errors.Payload {
	return errors.Payload(fmt.Sprintf(format, args...))
}

// cursor walks a RESP3 byte slice one frame at a time. Reading an array
// element advances the cursor so the next read picks up where the previous
// one left off.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(data []byte) *cursor {
	return &cursor{buf: data}
}

func (c *cursor) remaining() []byte {
	return c.buf[c.pos:]
}

// line reads one RESP3 line whose type byte must match want, returning the
// text between the type byte and the trailing separator. A line beginning
// with '-' is always surfaced as a state store error response, regardless of
// what the caller was expecting.
func (c *cursor) line(want byte) (string, error) {
	buf := c.remaining()

	end := bytes.Index(buf, separator)
	if end < 0 {
		return "", PayloadError("missing separator")
	}
	arg := string(buf[1:end])
	c.pos += end + len(separator)

	switch buf[0] {
	case '-':
		return "", errors.Service(strings.TrimPrefix(arg, "ERR "))
	case want:
		return arg, nil
	default:
		return "", PayloadError("wrong type %q", buf[0])
	}
}

// integer reads a RESP3 integer-shaped line (":n" or, via line, "$n" length
// prefixes and "*n" array-length prefixes all share this shape).
func (c *cursor) integer(want byte) (int, error) {
	arg, err := c.line(want)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, PayloadError("invalid number %q", arg)
	}
	return n, nil
}

// bulk reads a RESP3 bulk string ("$n\r\n<n bytes>\r\n"), or the zero value
// of T for a null bulk string ("$-1\r\n").
func bulk[T Bytes](c *cursor, want byte) (T, error) {
	var zero T

	n, err := c.integer(want)
	if err != nil {
		return zero, err
	}
	if n == -1 {
		return zero, nil
	}

	buf := c.remaining()
	if len(buf) < n+len(separator) {
		return zero, PayloadError("insufficient data")
	}
	if buf[n] != separator[0] || buf[n+1] != separator[1] {
		return zero, PayloadError("missing separator")
	}

	c.pos += n + len(separator)
	return T(buf[:n]), nil
}

// String parses a RESP3 simple string reply ("+OK\r\n").
func String(data []byte) (string, error) {
	return newCursor(data).line('+')
}

// Number parses a RESP3 integer reply (":1\r\n").
func Number(data []byte) (int, error) {
	return newCursor(data).integer(':')
}

// Blob parses a single RESP3 bulk string reply, decoding it as T.
func Blob[T Bytes](data []byte) (T, error) {
	return bulk[T](newCursor(data), '$')
}

// BlobArray parses a RESP3 array of bulk strings, decoding each element as T.
// Used to decode KEYNOTIFY payloads, which carry a variable number of blobs.
func BlobArray[T Bytes](data []byte) ([]T, error) {
	c := newCursor(data)

	n, err := c.integer('*')
	if err != nil {
		return nil, err
	}

	ary := make([]T, n)
	for i := range ary {
		ary[i], err = bulk[T](c, '$')
		if err != nil {
			return nil, err
		}
	}
	return ary, nil
}

// ParseString, ParseNumber, ParseBlob, and ParseBlobArray are []byte-keyed
// convenience wrappers around the generic parsers above, for callers that
// have no key/value type of their own to thread through (notably tests and
// ad hoc tooling against the raw RESP3 wire format).
func ParseString(data []byte) (string, error) { return String(data) }
func ParseNumber(data []byte) (int, error)    { return Number(data) }

func ParseBlob(data []byte) ([]byte, error) {
	return Blob[[]byte](data)
}

func ParseBlobArray(data []byte) ([][]byte, error) {
	return BlobArray[[]byte](data)
}
