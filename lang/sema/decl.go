// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package sema

import "github.com/tombchain/tombc/lang/types"

// StorageKind is where a variable's value actually lives at runtime
// (spec §3 VarDecl.storage).
type StorageKind int

const (
	Local StorageKind = iota
	Global
	Argument
)

func (k StorageKind) String() string {
	switch k {
	case Local:
		return "local"
	case Global:
		return "global"
	case Argument:
		return "argument"
	default:
		return "unknown"
	}
}

// VarDecl is a variable binding (spec §3 VarDecl). Storage-collection
// variables use the three subtypes below, each embedding VarDecl.
type VarDecl struct {
	Scope   *Scope
	Name    string
	Type    *types.VarType
	Storage StorageKind
}

// MapDeclaration is a VarDecl of VarKind StorageMap.
type MapDeclaration struct {
	VarDecl
	KeyType   *types.VarType
	ValueType *types.VarType
}

// ListDeclaration is a VarDecl of VarKind StorageList.
type ListDeclaration struct {
	VarDecl
	ValueType *types.VarType
}

// SetDeclaration is a VarDecl of VarKind StorageSet.
type SetDeclaration struct {
	VarDecl
	ValueType *types.VarType
}

// ConstDeclaration is an immutable named literal (spec §3 ConstDeclaration).
type ConstDeclaration struct {
	Name    string
	Type    *types.VarType
	Literal interface{} // *uint256.Int, string, bool, or []byte depending on Type.Kind
}

// MethodKind distinguishes the four callable shapes a contract exposes
// (spec §3 MethodInterface.kind).
type MethodKind int

const (
	Constructor MethodKind = iota
	Method
	Task
	Trigger
)

func (k MethodKind) String() string {
	switch k {
	case Constructor:
		return "Constructor"
	case Method:
		return "Method"
	case Task:
		return "Task"
	case Trigger:
		return "Trigger"
	default:
		return "Unknown"
	}
}

// Param is one formal parameter of a MethodInterface.
type Param struct {
	Name string
	Type *types.VarType
}

// MethodInterface is a callable signature (spec §3 MethodInterface),
// either a user-declared contract method or an intrinsic library method.
type MethodInterface struct {
	OwningLibrary      *LibraryDeclaration // nil for contract-declared methods
	ImplementationType *types.VarType      // nil when not a type-bound method
	Name               string
	IsPublic           bool
	Kind               MethodKind
	ReturnType         *types.VarType // nil/None when the method returns nothing
	Parameters         []Param
}

// Clone returns a shallow copy, used by the generic-patching machinery to
// produce a derived MethodInterface without mutating the original library.
func (m *MethodInterface) Clone() *MethodInterface {
	c := *m
	c.Parameters = append([]Param(nil), m.Parameters...)
	return &c
}
