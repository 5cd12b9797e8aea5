// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package sema

import "github.com/tombchain/tombc/lang/types"

// PatchMap specializes a Generic-parameterized Map library to a concrete
// key/value pair (spec §4.2 "Generic-library patching"; spec §3 lifetime
// invariant "Library patches produce a derived LibraryDeclaration bound to
// a specific key/value pair; original library is unchanged"). A Generic
// parameter named "key" is substituted with key; every other Generic
// parameter or return type is substituted with value.
func PatchMap(lib *LibraryDeclaration, key, value *types.VarType) *LibraryDeclaration {
	return patch(lib, key, value)
}

// PatchList specializes a Generic-parameterized List library to a concrete
// element type.
func PatchList(lib *LibraryDeclaration, value *types.VarType) *LibraryDeclaration {
	return patch(lib, nil, value)
}

// PatchSet specializes a Generic-parameterized Set library to a concrete
// element type.
func PatchSet(lib *LibraryDeclaration, value *types.VarType) *LibraryDeclaration {
	return patch(lib, nil, value)
}

// patch builds a derived library: every method is cloned, and any
// parameter or return type that is exactly VarKind Generic is replaced with
// key (if the parameter is named "key" and key is non-nil) or value
// (everywhere else). The original library's methods are never mutated.
func patch(lib *LibraryDeclaration, key, value *types.VarType) *LibraryDeclaration {
	derived := NewLibrary(lib.Name)
	for _, m := range lib.Methods() {
		clone := m.Clone()
		clone.OwningLibrary = nil // Declare() below re-sets it to derived
		if clone.ReturnType != nil && clone.ReturnType.Kind == types.Generic {
			clone.ReturnType = value
		}
		for i, p := range clone.Parameters {
			if p.Type == nil || p.Type.Kind != types.Generic {
				continue
			}
			if key != nil && p.Name == "key" {
				clone.Parameters[i] = Param{Name: p.Name, Type: key}
			} else {
				clone.Parameters[i] = Param{Name: p.Name, Type: value}
			}
		}
		derived.Declare(clone)
	}
	return derived
}
