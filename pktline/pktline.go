// Package pktline implements git's packet-line framing: each line is
// prefixed with its own total length (including the prefix) as four
// lowercase hex digits, with "0000" reserved as a flush marker. Naming
// follows the Reader/Writer split used by the pktline package in the
// wider git-in-Go ecosystem, adapted here to a decode-a-whole-buffer
// shape since every HTTP response body in this module is fully buffered
// before processing (see package transport).
package pktline

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/xerrors"
)

// ErrBadPktLine is returned when a packet-line length prefix isn't 4
// lowercase hex digits, the buffer runs out before the declared length,
// or the declared length is below the minimum of 4.
var ErrBadPktLine = xerrors.New("malformed packet line")

// lengthPrefixSize is the number of bytes (and hex digits) in a
// packet-line's length prefix.
const lengthPrefixSize = 4

// flushMarker is the literal 4-byte packet-line length that marks end of
// section, rather than prefixing a payload.
const flushMarker = "0000"

// packMagic is the literal that, found where a length prefix was
// expected, marks the remainder of the buffer as an embedded pack
// stream rather than further packet lines.
const packMagic = "PACK"

// IsFlush reports whether the next bytes of buf are a flush packet.
func IsFlush(buf []byte) bool {
	return len(buf) >= lengthPrefixSize && string(buf[:lengthPrefixSize]) == flushMarker
}

// IsPackStream reports whether the next bytes of buf begin an embedded
// pack stream (the literal "PACK" where a length prefix would otherwise
// be).
func IsPackStream(buf []byte) bool {
	return len(buf) >= len(packMagic) && string(buf[:len(packMagic)]) == packMagic
}

// DecodeUntilFlush consumes packet lines from the front of buf until a
// flush packet or an embedded pack stream is reached. It returns the
// decoded line payloads (with at most one trailing '\n' trimmed from
// each), and the bytes remaining in buf after the terminator. When the
// stream ends in an embedded pack rather than a flush packet, pack holds
// that remainder and lines/rest describe everything decoded before it.
func DecodeUntilFlush(buf []byte) (lines [][]byte, rest []byte, pack []byte, err error) {
	for {
		if IsPackStream(buf) {
			return lines, nil, buf, nil
		}
		if IsFlush(buf) {
			return lines, buf[lengthPrefixSize:], nil, nil
		}
		if len(buf) < lengthPrefixSize {
			return nil, nil, nil, xerrors.Errorf("truncated length prefix: %w", ErrBadPktLine)
		}

		length, err := parseLength(buf[:lengthPrefixSize])
		if err != nil {
			return nil, nil, nil, err
		}
		if length < lengthPrefixSize {
			return nil, nil, nil, xerrors.Errorf("length %d below minimum of %d: %w", length, lengthPrefixSize, ErrBadPktLine)
		}
		if len(buf) < length {
			return nil, nil, nil, xerrors.Errorf("declared length %d exceeds %d remaining bytes: %w", length, len(buf), ErrBadPktLine)
		}

		payload := buf[lengthPrefixSize:length]
		payload = bytes.TrimSuffix(payload, []byte{'\n'})
		lines = append(lines, payload)
		buf = buf[length:]
	}
}

func parseLength(hexDigits []byte) (int, error) {
	raw, err := hex.DecodeString(string(hexDigits))
	if err != nil || len(raw) != 2 {
		return 0, xerrors.Errorf("length prefix %q is not 4 hex digits: %w", hexDigits, ErrBadPktLine)
	}
	return int(raw[0])<<8 | int(raw[1]), nil
}

// Encode frames payload as a single packet line: its own 4-hex-digit
// length prefix followed by the payload bytes, unmodified (callers that
// want the conventional trailing newline must include it themselves).
func Encode(payload []byte) []byte {
	length := lengthPrefixSize + len(payload)
	out := make([]byte, 0, length)
	out = append(out, []byte(fmt.Sprintf("%04x", length))...)
	out = append(out, payload...)
	return out
}

// Flush returns the 4-byte flush packet.
func Flush() []byte {
	return []byte(flushMarker)
}
