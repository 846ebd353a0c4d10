// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used on the relay wire and
// in stored blobs. Encoding is Core Deterministic (RFC 8949 §4.2):
// sorted map keys, smallest integer widths, no indefinite-length
// items, so the same logical message always produces identical bytes.
// Decoding ignores unknown fields for forward compatibility.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// When the decode target is any, pick map[string]any rather
		// than the CBOR default map[interface{}]interface{}; all wire
		// maps here use string keys and downstream code expects the
		// JSON-compatible shape.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, used to delay decoding of
// message payloads until the type tag has been inspected.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r. CBOR values are
// self-delimiting, so consecutive messages need no framing.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
