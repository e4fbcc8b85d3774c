// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bureau-foundation/gridbus/lib/headers"
)

// ContentTypeJSON is the content type PublishJSON assigns to every part.
const ContentTypeJSON = "application/json"

// Message is a received message. Headers is never nil.
type Message struct {
	Topic   string
	Headers *headers.Headers
	Parts   [][]byte
}

// Part is a body part paired with its content type.
type Part struct {
	ContentType string
	Data        []byte
}

// ValidateTopic checks that topic can be carried in a topic frame.
func ValidateTopic(topic string) error {
	if !utf8.ValidString(topic) {
		return protocolErrorf(nil, "topic is not valid UTF-8")
	}
	if strings.IndexByte(topic, 0) >= 0 {
		return protocolErrorf(nil, "topic contains NUL")
	}
	return nil
}

// ParseMessage interprets unit frames as a message.
func ParseMessage(frames [][]byte) (Message, error) {
	if len(frames) == 0 {
		return Message{}, protocolErrorf(nil, "unit has no frames")
	}
	topic := string(frames[0])
	if err := ValidateTopic(topic); err != nil {
		return Message{}, err
	}

	message := Message{Topic: topic, Headers: headers.New()}
	if len(frames) == 1 {
		return message, nil
	}
	if len(frames[1]) > 0 {
		if err := message.Headers.UnmarshalJSON(frames[1]); err != nil {
			return Message{}, protocolErrorf(err, "malformed headers on %q", topic)
		}
	}
	message.Parts = frames[2:]
	return message, nil
}

// TypedParts pairs each body part with its Content-Type entry.
func (m Message) TypedParts() ([]Part, error) {
	types, err := m.Headers.ContentTypes()
	if err != nil {
		return nil, protocolErrorf(err, "Content-Type on %q", m.Topic)
	}
	if len(types) != len(m.Parts) {
		return nil, protocolErrorf(nil, "%q declares %d content types for %d parts",
			m.Topic, len(types), len(m.Parts))
	}
	parts := make([]Part, len(m.Parts))
	for i, data := range m.Parts {
		parts[i] = Part{ContentType: types[i], Data: data}
	}
	return parts, nil
}

// MessageFrames builds the frames of a message: topic, headers JSON,
// then each part. Nil headers are sent as an empty object.
func MessageFrames(topic string, h *headers.Headers, parts ...[]byte) ([][]byte, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	encoded := []byte("{}")
	if h != nil {
		var err error
		if encoded, err = h.MarshalJSON(); err != nil {
			return nil, fmt.Errorf("encoding headers for %q: %w", topic, err)
		}
	}
	frames := make([][]byte, 0, 2+len(parts))
	frames = append(frames, []byte(topic), encoded)
	frames = append(frames, parts...)
	return frames, nil
}

// TypedFrames returns a copy of h whose Content-Type lists each part's
// type, and the part data in order.
func TypedFrames(h *headers.Headers, parts []Part) (*headers.Headers, [][]byte) {
	var withTypes *headers.Headers
	if h != nil {
		withTypes = h.Copy()
	} else {
		withTypes = headers.New()
	}
	types := make([]string, len(parts))
	data := make([][]byte, len(parts))
	for i, part := range parts {
		types[i] = part.ContentType
		data[i] = part.Data
	}
	withTypes.SetContentTypes(types)
	return withTypes, data
}

// JSONParts encodes each object as a JSON part, without HTML escaping.
func JSONParts(objects ...any) ([]Part, error) {
	parts := make([]Part, len(objects))
	for i, object := range objects {
		var buffer bytes.Buffer
		encoder := json.NewEncoder(&buffer)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(object); err != nil {
			return nil, fmt.Errorf("encoding JSON part %d: %w", i, err)
		}
		parts[i] = Part{
			ContentType: ContentTypeJSON,
			Data:        bytes.TrimRight(buffer.Bytes(), "\n"),
		}
	}
	return parts, nil
}
