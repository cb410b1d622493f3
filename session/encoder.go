package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const formatVersion = 1

// Layout (v1):
//
//	[0]      version
//	[1:33]   refresh hash
//	[33:41]  created at (unix seconds, big endian)
//	[41:49]  expires at
//	[49]     user id length, then user id
//	         email length, then email
//	         role length, then role
//	         method length, then method
const fixedHeaderSize = 1 + 32 + 8 + 8

// ErrCorrupt is returned by Decode for blobs that do not match the layout.
var ErrCorrupt = errors.New("session blob corrupt")

// Encode serializes s.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(fixedHeaderSize + 4 + len(s.UserID) + len(s.Email) + len(s.Role) + len(s.Method))

	buf.WriteByte(formatVersion)
	buf.Write(s.RefreshHash[:])

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.CreatedAt))
	buf.Write(ts[:])
	binary.BigEndian.PutUint64(ts[:], uint64(s.ExpiresAt))
	buf.Write(ts[:])

	for _, field := range []string{s.UserID, s.Email, s.Role, s.Method} {
		if len(field) > 255 {
			return nil, errors.New("session field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. SessionID is not part of the blob.
func Decode(data []byte) (*Session, error) {
	if len(data) < fixedHeaderSize || data[0] != formatVersion {
		return nil, ErrCorrupt
	}

	s := &Session{}
	copy(s.RefreshHash[:], data[1:33])
	s.CreatedAt = int64(binary.BigEndian.Uint64(data[33:41]))
	s.ExpiresAt = int64(binary.BigEndian.Uint64(data[41:49]))

	reader := bytes.NewReader(data[fixedHeaderSize:])
	fields := []*string{&s.UserID, &s.Email, &s.Role, &s.Method}
	for _, f := range fields {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, ErrCorrupt
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, ErrCorrupt
		}
		*f = string(b)
	}
	if reader.Len() != 0 || s.UserID == "" {
		return nil, ErrCorrupt
	}

	return s, nil
}
