// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrames bounds the number of frames a single encoded message may
// carry. Decoding a longer array fails instead of allocating.
const MaxFrames = 4096

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// frames always produce the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

// framesDecMode rejects anything but a definite-length array of byte
// strings of at most MaxFrames elements.
var framesDecMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Decoding into any yields map[string]any, which round-trips
		// through encoding/json.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	framesDecMode, err = cbor.DecOptions{
		MaxArrayElements: MaxFrames,
		IndefLength:      cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR frames decoder initialization failed: " + err.Error())
	}
}

// ErrNotFrames is returned by DecodeFrames when the payload is valid
// CBOR but not an array of byte strings.
var ErrNotFrames = errors.New("codec: payload is not an array of byte strings")

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeFrames encodes an ordered list of frames as a CBOR array of
// byte strings. A nil frame encodes as an empty byte string.
func EncodeFrames(frames [][]byte) ([]byte, error) {
	normalized := make([][]byte, len(frames))
	for i, frame := range frames {
		if frame == nil {
			frame = []byte{}
		}
		normalized[i] = frame
	}
	return encMode.Marshal(normalized)
}

// DecodeFrames is the inverse of EncodeFrames. The payload must hold
// exactly one CBOR array; trailing bytes are an error.
func DecodeFrames(data []byte) ([][]byte, error) {
	var frames [][]byte
	if err := framesDecMode.Unmarshal(data, &frames); err != nil {
		var typeErr *cbor.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", ErrNotFrames, err)
		}
		return nil, fmt.Errorf("codec: decoding frames: %w", err)
	}
	if frames == nil {
		// CBOR null decodes to a nil slice without error.
		return nil, ErrNotFrames
	}
	for i, frame := range frames {
		if frame == nil {
			frames[i] = []byte{}
		}
	}
	return frames, nil
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for data.
// The CLI uses it to render non-JSON message parts.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
