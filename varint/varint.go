// Package varint decodes the MSB-continuation variable length integers
// used throughout the pack format: object header sizes and delta
// source/target lengths (little-endian), and ofs-delta base offsets
// (big-endian).
//
// Pulled out into standalone functions so both the object-header parser
// and the delta-instruction parser in package pack can share them.
package varint

import (
	"errors"
	"io"
)

// ErrTruncatedVarint is returned when the source runs out of bytes while
// the continuation bit of the last byte read was still set.
var ErrTruncatedVarint = errors.New("truncated varint")

// ByteSource is the minimal reader interface needed to pull a varint one
// byte at a time.
type ByteSource interface {
	ReadByte() (byte, error)
}

const continuationBit = 0b_1000_0000

func hasContinuation(b byte) bool {
	return b&continuationBit != 0
}

func dataBits(b byte) byte {
	return b &^ continuationBit
}

// ReadVLQFull7 reads a little-endian varint where every byte, including
// the first, contributes 7 data bits. This is the encoding used for
// object sizes inside a delta (source length, target length) and for
// ofs-delta negative offsets' sibling, the plain size varint.
//
// Each byte's low 7 bits are OR'd in at a left shift of 7*i.
func ReadVLQFull7(src ByteSource) (value uint64, bytesRead int, err error) {
	for shift := uint(0); ; shift += 7 {
		b, rerr := src.ReadByte()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return 0, bytesRead, ErrTruncatedVarint
			}
			return 0, bytesRead, rerr
		}
		bytesRead++
		value |= uint64(dataBits(b)) << shift
		if !hasContinuation(b) {
			return value, bytesRead, nil
		}
	}
}

// ReadVLQFirst4Then7 reads the pack per-object header size varint: the
// first byte contributes only its low 4 bits (its upper 3 bits, after the
// continuation bit, hold the object type and are not part of the size),
// and every subsequent byte contributes 7 bits, left-shifted by 4+7*(i-1).
//
// firstByte is the already-consumed first header byte (the caller needs
// its type bits too, so it reads that byte itself); this function reads
// only the continuation bytes, if any.
func ReadVLQFirst4Then7(src ByteSource, firstByte byte) (value uint64, bytesRead int, err error) {
	value = uint64(firstByte & 0b_0000_1111)
	if !hasContinuation(firstByte) {
		return value, 0, nil
	}
	for shift := uint(4); ; shift += 7 {
		b, rerr := src.ReadByte()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return 0, bytesRead, ErrTruncatedVarint
			}
			return 0, bytesRead, rerr
		}
		bytesRead++
		value |= uint64(dataBits(b)) << shift
		if !hasContinuation(b) {
			return value, bytesRead, nil
		}
	}
}

// ReadNegativeOffset reads the ofs-delta base offset encoding: big-endian
// (most significant chunk first), 7 data bits per byte, where every
// non-terminal byte additionally has 1 added to its chunk before being
// folded in (git's way of avoiding redundant encodings of the same
// offset). Grounded on Pack.readDeltaOffset.
func ReadNegativeOffset(src ByteSource) (offset uint64, bytesRead int, err error) {
	for {
		b, rerr := src.ReadByte()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return 0, bytesRead, ErrTruncatedVarint
			}
			return 0, bytesRead, rerr
		}
		bytesRead++
		chunk := uint64(dataBits(b))
		if hasContinuation(b) {
			chunk++
		}
		offset = offset<<7 + chunk
		if !hasContinuation(b) {
			return offset, bytesRead, nil
		}
	}
}
