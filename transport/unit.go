// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bureau-foundation/gridbus/lib/codec"
)

// unitHeaderLength is the compression byte plus the payload length.
const unitHeaderLength = 5

// MaxPayloadLength bounds a unit payload, compressed or not, and the
// uncompressed size a compressed payload may declare.
const MaxPayloadLength = 64 * 1024 * 1024

// Unit is one framed multipart message as carried on the wire. The
// exchange forwards units without re-encoding them.
type Unit struct {
	Compression Compression
	Payload     []byte
}

// NewUnit encodes frames into a unit, compressing the payload when
// compression is worthwhile.
func NewUnit(frames [][]byte, compression Compression) (Unit, error) {
	encoded, err := codec.EncodeFrames(frames)
	if err != nil {
		return Unit{}, fmt.Errorf("encoding frames: %w", err)
	}
	payload, used, err := compress(encoded, compression)
	if err != nil {
		return Unit{}, err
	}
	if len(payload) > MaxPayloadLength {
		return Unit{}, fmt.Errorf("unit payload length %d exceeds maximum %d", len(payload), MaxPayloadLength)
	}
	return Unit{Compression: used, Payload: payload}, nil
}

// Frames decodes the unit's payload into its frames.
func (u Unit) Frames() ([][]byte, error) {
	encoded, err := decompress(u.Payload, u.Compression)
	if err != nil {
		return nil, protocolErrorf(err, "decompressing %s unit", u.Compression)
	}
	frames, err := codec.DecodeFrames(encoded)
	if err != nil {
		return nil, protocolErrorf(err, "decoding unit frames")
	}
	return frames, nil
}

// Bytes returns the unit as written on the wire: header then payload.
func (u Unit) Bytes() []byte {
	wire := make([]byte, unitHeaderLength+len(u.Payload))
	wire[0] = byte(u.Compression)
	binary.BigEndian.PutUint32(wire[1:unitHeaderLength], uint32(len(u.Payload)))
	copy(wire[unitHeaderLength:], u.Payload)
	return wire
}

// WriteUnit writes u to w.
func WriteUnit(w io.Writer, u Unit) error {
	if _, err := w.Write(u.Bytes()); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	return nil
}

// WriteFrames encodes frames and writes them to w as one unit.
func WriteFrames(w io.Writer, frames [][]byte, compression Compression) error {
	u, err := NewUnit(frames, compression)
	if err != nil {
		return err
	}
	return WriteUnit(w, u)
}

// ReadUnit reads one unit from r. The payload is not decoded. A clean
// end of stream before any header byte returns io.EOF unwrapped.
func ReadUnit(r io.Reader) (Unit, error) {
	var header [unitHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Unit{}, io.EOF
		}
		return Unit{}, fmt.Errorf("read unit header: %w", err)
	}
	compression, length, err := parseUnitHeader(header[:])
	if err != nil {
		return Unit{}, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Unit{}, fmt.Errorf("read unit payload: %w", err)
		}
	}
	return Unit{Compression: compression, Payload: payload}, nil
}

func parseUnitHeader(header []byte) (Compression, int, error) {
	compression := Compression(header[0])
	if compression > CompressionZstd {
		return 0, 0, protocolErrorf(nil, "unknown compression tag %d", header[0])
	}
	length := binary.BigEndian.Uint32(header[1:unitHeaderLength])
	if length > MaxPayloadLength {
		return 0, 0, protocolErrorf(nil, "payload length %d exceeds maximum %d", length, MaxPayloadLength)
	}
	return compression, int(length), nil
}

// unitBuffer accumulates bytes read from a non-blocking descriptor and
// yields complete units.
type unitBuffer struct {
	data []byte
}

func (b *unitBuffer) write(chunk []byte) {
	b.data = append(b.data, chunk...)
}

// complete reports whether a whole unit is buffered. A damaged header
// counts as complete so that next surfaces the error.
func (b *unitBuffer) complete() bool {
	if len(b.data) < unitHeaderLength {
		return false
	}
	_, length, err := parseUnitHeader(b.data[:unitHeaderLength])
	if err != nil {
		return true
	}
	return len(b.data) >= unitHeaderLength+length
}

// next removes and returns the first buffered unit. ok is false when no
// complete unit is buffered.
func (b *unitBuffer) next() (unit Unit, ok bool, err error) {
	if !b.complete() {
		return Unit{}, false, nil
	}
	compression, length, err := parseUnitHeader(b.data[:unitHeaderLength])
	if err != nil {
		b.data = nil
		return Unit{}, false, err
	}
	end := unitHeaderLength + length
	payload := make([]byte, length)
	copy(payload, b.data[unitHeaderLength:end])
	b.data = b.data[end:]
	if len(b.data) == 0 {
		b.data = nil
	}
	return Unit{Compression: compression, Payload: payload}, true, nil
}

func (b *unitBuffer) reset() { b.data = nil }
