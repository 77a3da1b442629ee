package resp

import "strconv"

// Bytes represents generic byte data.
type Bytes interface{ ~string | ~[]byte }

// appendBulk appends the RESP3 bulk-string encoding of s to dst.
func appendBulk(dst []byte, s string) []byte {
	dst = strconv.AppendInt(append(dst, '$'), int64(len(s)), 10)
	dst = append(dst, separator...)
	dst = append(dst, s...)
	return append(dst, separator...)
}

// opArray encodes cmd followed by every element of args as a RESP3 array of
// bulk strings, the shape every state store request takes on the wire.
func opArray(cmd string, args ...string) []byte {
	dst := strconv.AppendInt([]byte{'*'}, int64(len(args)+1), 10)
	dst = append(dst, separator...)
	dst = appendBulk(dst, cmd)
	for _, arg := range args {
		dst = appendBulk(dst, arg)
	}
	return dst
}

// OpK encodes a single-key state store command such as "GET key" or
// "KEYNOTIFY key STOP".
func OpK[K Bytes](cmd string, key K, rest ...string) []byte {
	args := make([]string, 0, len(rest)+1)
	args = append(args, string(key))
	args = append(args, rest...)
	return opArray(cmd, args...)
}

// OpKV encodes a key/value state store command such as "SET key value" or
// "VDEL key value".
func OpKV[K, V Bytes](cmd string, key K, val V, rest ...string) []byte {
	args := make([]string, 0, len(rest)+2)
	args = append(args, string(key), string(val))
	args = append(args, rest...)
	return opArray(cmd, args...)
}
