// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package headers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Reserved header keys.
const (
	ContentType = "Content-Type"
	Date        = "Date"
	TimeStamp   = "TimeStamp"
	From        = "From"
	To          = "To"
	RequesterID = "requesterID"
	Cookie      = "Cookie"
)

// entry stores the most recently written casing of a key alongside its
// value.
type entry struct {
	key   string
	value any
}

// Headers is an ordered, case-insensitive, case-preserving map. The
// zero value is not usable; construct with [New] or [FromMap].
type Headers struct {
	entries map[string]*entry
	order   []string
}

// New returns empty headers.
func New() *Headers {
	return &Headers{entries: make(map[string]*entry)}
}

// FromMap returns headers populated from values. Go map iteration is
// unordered, so keys are inserted in sorted order to keep the result
// deterministic. Use [FromPairs] when insertion order matters.
func FromMap(values map[string]any) *Headers {
	h := New()
	h.Update(values)
	return h
}

// FromPairs returns headers built from alternating keys and values,
// inserted in argument order.
func FromPairs(pairs ...any) (*Headers, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("odd number of arguments (%d): every key needs a value", len(pairs))
	}
	h := New()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("argument %d is %T, keys must be strings", i, pairs[i])
		}
		h.Set(key, pairs[i+1])
	}
	return h, nil
}

func fold(key string) string { return strings.ToLower(key) }

// Len returns the number of entries. Nil headers are empty.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.order)
}

// Get returns the value stored under key, compared case-insensitively.
func (h *Headers) Get(key string) (any, bool) {
	e, ok := h.entries[fold(key)]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// String returns the value under key if it is a string.
func (h *Headers) String(key string) (string, bool) {
	value, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// Contains reports whether key is present.
func (h *Headers) Contains(key string) bool {
	_, ok := h.entries[fold(key)]
	return ok
}

// Set stores value under key. An existing entry keeps its position but
// adopts the casing of this write.
func (h *Headers) Set(key string, value any) {
	folded := fold(key)
	if e, ok := h.entries[folded]; ok {
		e.key = key
		e.value = value
		return
	}
	h.entries[folded] = &entry{key: key, value: value}
	h.order = append(h.order, folded)
}

// Delete removes key. Deleting an absent key is a no-op.
func (h *Headers) Delete(key string) {
	folded := fold(key)
	if _, ok := h.entries[folded]; !ok {
		return
	}
	delete(h.entries, folded)
	for i, k := range h.order {
		if k == folded {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Update merges values into h. Keys are applied in sorted order so the
// result does not depend on map iteration order.
func (h *Headers) Update(values map[string]any) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		h.Set(key, values[key])
	}
}

// Merge copies every entry of other into h, in other's order.
func (h *Headers) Merge(other *Headers) {
	if other == nil {
		return
	}
	for _, folded := range other.order {
		e := other.entries[folded]
		h.Set(e.key, e.value)
	}
}

// Copy returns an independent copy. Values are copied shallowly.
func (h *Headers) Copy() *Headers {
	clone := &Headers{
		entries: make(map[string]*entry, len(h.entries)),
		order:   make([]string, len(h.order)),
	}
	copy(clone.order, h.order)
	for folded, e := range h.entries {
		clone.entries[folded] = &entry{key: e.key, value: e.value}
	}
	return clone
}

// Keys returns the keys in insertion order, each in its last-written
// casing.
func (h *Headers) Keys() []string {
	keys := make([]string, len(h.order))
	for i, folded := range h.order {
		keys[i] = h.entries[folded].key
	}
	return keys
}

// Map renders a plain map using each key's last-written casing.
func (h *Headers) Map() map[string]any {
	result := make(map[string]any, len(h.order))
	for _, folded := range h.order {
		e := h.entries[folded]
		result[e.key] = e.value
	}
	return result
}

// Equal reports whether h and other hold the same keys (ignoring case)
// with equal JSON renderings of their values. Nil headers equal empty
// ones.
func (h *Headers) Equal(other *Headers) bool {
	if h.Len() != other.Len() {
		return false
	}
	if h.Len() == 0 {
		return true
	}
	for folded, e := range h.entries {
		o, ok := other.entries[folded]
		if !ok {
			return false
		}
		left, leftErr := json.Marshal(e.value)
		right, rightErr := json.Marshal(o.value)
		if leftErr != nil || rightErr != nil || !bytes.Equal(left, right) {
			return false
		}
	}
	return true
}

// ContentTypes returns the Content-Type entries. A bare string yields a
// single entry; an absent header yields nil. Any other shape is an
// error.
func (h *Headers) ContentTypes() ([]string, error) {
	value, ok := h.Get(ContentType)
	if !ok || value == nil {
		return nil, nil
	}
	switch typed := value.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		types := make([]string, len(typed))
		for i, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entry %d is %T, not a string", ContentType, i, item)
			}
			types[i] = s
		}
		return types, nil
	default:
		return nil, fmt.Errorf("%s is %T, not a string or list of strings", ContentType, value)
	}
}

// SetContentTypes records one content type per body part. Exactly one
// part is stored as a bare string.
func (h *Headers) SetContentTypes(types []string) {
	if len(types) == 1 {
		h.Set(ContentType, types[0])
		return
	}
	list := make([]any, len(types))
	for i, t := range types {
		list[i] = t
	}
	h.Set(ContentType, list)
}

// MarshalJSON renders h as a JSON object in insertion order.
func (h *Headers) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, folded := range h.order {
		e := h.entries[folded]
		if i > 0 {
			buffer.WriteByte(',')
		}
		key, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", e.key, err)
		}
		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// UnmarshalJSON replaces the contents of h with the JSON object in
// data, preserving the document's key order.
func (h *Headers) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("headers must be a JSON object, got %v", token)
	}

	h.entries = make(map[string]*entry)
	h.order = nil
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := token.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", token)
		}
		var value any
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("header %q: %w", key, err)
		}
		h.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("trailing data after headers object")
	}
	return nil
}
