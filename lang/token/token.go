// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package token defines the lexical token kinds for the Tomb language.
package token

import "fmt"

// Token is a single lexical token: kind, lexeme, and source position.
type Token struct {
	Kind   Kind
	Lexeme string
	Pos    Position
}

// Position tracks a 1-based source location for diagnostics.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Kind is the set of lexical token kinds (spec §3 Token).
type Kind int

const (
	// ILLEGAL and EOF are lexer bookkeeping kinds; they are not part of
	// spec's Token.kind enumeration but every hand-written scanner needs
	// them to signal end-of-input and malformed input to its caller.
	ILLEGAL Kind = iota
	EOF

	Identifier
	Number
	String
	Bool
	Address
	Hash
	Bytes
	Macro
	Type
	Operator
	Separator
	Selector
	Asm
)

var kindNames = [...]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",

	Identifier: "Identifier",
	Number:     "Number",
	String:     "String",
	Bool:       "Bool",
	Address:    "Address",
	Hash:       "Hash",
	Bytes:      "Bytes",
	Macro:      "Macro",
	Type:       "Type",
	Operator:   "Operator",
	Separator:  "Separator",
	Selector:   "Selector",
	Asm:        "Asm",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Keywords are lexed as Identifier tokens; the parser dispatches on the
// lexeme itself (spec §4.1). This set is exported so the parser and lexer
// agree on exactly which identifiers are reserved.
var Keywords = map[string]bool{
	"contract":    true,
	"script":      true,
	"description": true,
	"struct":      true,
	"const":       true,
	"global":      true,
	"import":      true,
	"event":       true,
	"constructor": true,
	"public":      true,
	"private":     true,
	"task":        true,
	"trigger":     true,
	"code":        true,
	"emit":        true,
	"return":      true,
	"throw":       true,
	"local":       true,
	"if":          true,
	"else":        true,
	"while":       true,
	"do":          true,
	"asm":         true,
}

// typeNames is the set of VarKind spellings recognized as Type tokens
// (case-insensitive), excluding the meta kinds that never appear as source
// syntax (spec §4.1).
var typeNames = map[string]bool{
	"number":       true,
	"bool":         true,
	"string":       true,
	"bytes":        true,
	"address":      true,
	"hash":         true,
	"struct":       false, // "struct" is a keyword, not a type spelling
	"storage_map":  true,
	"storage_list": true,
	"storage_set":  true,
}

// IsTypeName reports whether lexeme (case-insensitive) names a VarKind.
func IsTypeName(lexeme string) bool {
	return typeNames[lowerASCII(lexeme)]
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Operators recognized by the lexer, longest match first (spec §4.1).
var Operators = []string{
	":=", "==", "!=", "<=", ">=", "<<=", ">>=", "<<", ">>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"<", ">", "+", "-", "*", "/", "%", "&", "|", "^",
}

// AssignOps is the set of compound/simple assignment operators (spec §4.2
// grammar rule `assignOp`).
var AssignOps = map[string]bool{
	":=": true, "+=": true, "-=": true, "*=": true, "/=": true,
	"%=": true, "&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true,
}
