// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package sema

import "github.com/tombchain/tombc/lang/types"

// CustomBase is the first numeric value assigned to a contract's own
// events; values below it are reserved for host-runtime built-in events
// (spec §3 EventDeclaration.numeric_value = Custom_base + index).
const CustomBase = 1000

// EventDeclaration is a named, numbered, typed event with an optional
// human-readable description (spec §3 EventDeclaration).
type EventDeclaration struct {
	Name             string
	NumericValue     int
	PayloadType      *types.VarType
	DescriptionBytes []byte
}
