// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport frames gridbus messages on stream sockets and
// provides the non-blocking sockets agents drive from their reactor.
//
// # Wire format
//
// A unit is the transport's indivisible multipart message:
//
//	[compression: 1 byte][payload length: uint32 big-endian][payload]
//
// The payload is a CBOR array of byte strings, one per frame, encoded
// by lib/codec. With lz4 or zstd compression the payload is the
// uvarint uncompressed length followed by the compressed CBOR. Payloads
// larger than MaxPayloadLength are rejected on both ends.
//
// A message is a unit whose first frame is the UTF-8 topic. When more
// frames follow, the second is the headers as a JSON object (empty
// means no headers) and the rest are body parts, one per Content-Type
// entry.
//
// Subscribers send single-frame control units to the exchange: 0x01
// followed by a prefix subscribes, 0x00 followed by a prefix
// unsubscribes.
//
// # Sockets
//
// [Subscriber] and [Pusher] own a raw descriptor so that
// [lib/reactor] can poll it. Reads are non-blocking; RecvMessage with
// block=false returns [ErrWouldBlock] when no complete unit is
// buffered. Writes block until the whole unit is on the socket.
// Subscribers remember their interest set and replay it on every
// Connect.
//
// Exchange-side code reads and writes units on ordinary net.Conn
// streams with [ReadUnit] and [WriteUnit].
package transport
