package session

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Blob layout, all integers big-endian:
//
//	version:1 | len:1 userID | len:1 email | [len:1 role] | createdAt:8 | expiresAt:8
//
// Version 1 has no role segment. The session ID is the Redis key, not
// part of the blob.
const (
	formatVersionV1      = 1
	formatVersionCurrent = 2

	maxFieldLen = 255
)

var errTruncated = errors.New("session blob truncated")

// Encode serializes s in the current format.
func Encode(s *Session) ([]byte, error) {
	fields := [...]struct{ name, v string }{
		{"userID", s.UserID},
		{"email", s.Email},
		{"role", s.Role},
	}
	size := 1 + 16
	for _, f := range fields {
		if len(f.v) > maxFieldLen {
			return nil, fmt.Errorf("%s too long: %d bytes", f.name, len(f.v))
		}
		size += 1 + len(f.v)
	}

	out := make([]byte, 0, size)
	out = append(out, formatVersionCurrent)
	for _, f := range fields {
		out = append(out, byte(len(f.v)))
		out = append(out, f.v...)
	}
	out = binary.BigEndian.AppendUint64(out, uint64(s.CreatedAt))
	out = binary.BigEndian.AppendUint64(out, uint64(s.ExpiresAt))
	return out, nil
}

// Decode parses either format. Version 1 blobs decode with an empty Role.
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 {
		return nil, errTruncated
	}
	version := data[0]
	if version != formatVersionV1 && version != formatVersionCurrent {
		return nil, fmt.Errorf("unknown session format %d", version)
	}

	c := cursor(data[1:])
	s := &Session{UserID: c.str(), Email: c.str()}
	if version == formatVersionCurrent {
		s.Role = c.str()
	}
	s.CreatedAt = int64(c.u64())
	s.ExpiresAt = int64(c.u64())

	switch {
	case c == nil:
		return nil, errTruncated
	case len(c) > 0:
		return nil, errors.New("trailing bytes in session blob")
	}
	return s, nil
}

// cursor consumes a blob front to back. A short read sets it to nil and
// every later read returns zero values.
type cursor []byte

func (c *cursor) take(n int) []byte {
	if *c == nil || len(*c) < n {
		*c = nil
		return nil
	}
	b := (*c)[:n]
	*c = (*c)[n:]
	return b
}

func (c *cursor) str() string {
	n := c.take(1)
	if n == nil {
		return ""
	}
	return string(c.take(int(n[0])))
}

func (c *cursor) u64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
