// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

// Package encoding is the encoding collaborator: a Base16 codec for
// byte/hash literals and the string-to-bytes and script-to-bytes encodings
// an event's description is built from. Framing follows a tag-prefixed
// contract-bytecode encoder idiom, scaled down to the much smaller
// description-blob shape.
package encoding

import (
	"encoding/hex"
	"fmt"
)

// descriptionTag discriminates the two shapes an event description can take
// (spec §4.5 "description scripts are compiled eagerly so that later
// event ... = <descName>; declarations can embed their bytecode").
type descriptionTag byte

const (
	tagInlineString descriptionTag = 0
	tagScriptBytes  descriptionTag = 1
)

// DecodeBase16 decodes a hex digit string, as produced by the lexer for
// Bytes (`0x...`) and Hash (`#...`) literal lexemes, which already arrive
// with their sigil stripped.
func DecodeBase16(hexDigits string) ([]byte, error) {
	data, err := hex.DecodeString(hexDigits)
	if err != nil {
		return nil, fmt.Errorf("encoding: invalid base16 literal %q: %w", hexDigits, err)
	}
	return data, nil
}

// EncodeBase16 renders data as lowercase hex, the inverse of DecodeBase16.
func EncodeBase16(data []byte) string {
	return hex.EncodeToString(data)
}

// EncodeStringDescription frames an inline string literal as an event's
// description bytes (spec §8 scenario 2: "description equal to the
// string-to-script encoding of ..."). The tag byte lets a reader of the
// description blob distinguish an inline string from an embedded script
// without re-parsing source.
func EncodeStringDescription(s string) []byte {
	out := make([]byte, 0, 1+len(s))
	out = append(out, byte(tagInlineString))
	out = append(out, s...)
	return out
}

// EncodeScriptDescription frames a description script's already-compiled
// bytecode as an event's description bytes (spec §4.5: description scripts
// are compiled eagerly so their bytecode can be embedded here).
func EncodeScriptDescription(compiled []byte) []byte {
	out := make([]byte, 0, 1+len(compiled))
	out = append(out, byte(tagScriptBytes))
	out = append(out, compiled...)
	return out
}
