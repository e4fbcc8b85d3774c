// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds gridbus's CBOR configuration.
//
// Every transport unit carries its frames as one CBOR array of byte
// strings. EncodeFrames and DecodeFrames are the only way frames enter
// or leave that representation, so all sockets agree on the encoding.
// Marshal and Unmarshal use the same deterministic mode for the few
// internal structures the tooling stores in CBOR.
//
//	payload, err := codec.EncodeFrames([][]byte{topic, headers, body})
//	frames, err := codec.DecodeFrames(payload)
package codec
