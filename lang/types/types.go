// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package types defines the Tomb language's value-type system: the VarKind
// tag set, the interned VarType value, and struct declarations (spec §3).
package types

import "fmt"

// VarKind is the primitive type tag (spec §3 VarKind).
type VarKind int

const (
	None VarKind = iota
	Any
	Unknown
	Generic
	Number
	Bool
	String
	Bytes
	Address
	Hash
	Struct
	StorageMap
	StorageList
	StorageSet
)

var kindNames = [...]string{
	None: "none", Any: "any", Unknown: "unknown", Generic: "generic",
	Number: "number", Bool: "bool", String: "string", Bytes: "bytes",
	Address: "address", Hash: "hash", Struct: "struct",
	StorageMap: "storage_map", StorageList: "storage_list", StorageSet: "storage_set",
}

func (k VarKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("VarKind(%d)", int(k))
}

// IsMeta reports whether the kind is never the source spelling of a type
// name (None/Any/Unknown/Generic exist only internally — spec §4.1 excludes
// them from the recognized `VarKind` type-name spellings).
func (k VarKind) IsMeta() bool {
	switch k {
	case None, Any, Unknown, Generic:
		return true
	default:
		return false
	}
}

// IsCollection reports whether the kind names a storage collection, the
// target of generic-library patching (spec §4.2).
func (k VarKind) IsCollection() bool {
	switch k {
	case StorageMap, StorageList, StorageSet:
		return true
	default:
		return false
	}
}

// StructField is one ordered field of a StructDeclaration.
type StructField struct {
	Name string
	Type *VarType
}

// StructDeclaration is a named, ordered field list (spec §3).
type StructDeclaration struct {
	Name   string
	Fields []StructField
}

// FieldType returns the declared type of a field by name, or nil.
func (s *StructDeclaration) FieldType(name string) *VarType {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return nil
}

// VarType is an interned type value. Two VarTypes describe the same type
// iff they are the same pointer — equality is by identity, never by field
// comparison (spec §3 "Equality is by identity of the interned value").
type VarType struct {
	Kind   VarKind
	Name   string              // struct name; empty for primitives
	Struct *StructDeclaration  // back-link, set only when Kind == Struct
	Key    *VarType            // element key type, set only for collection kinds
	Elem   *VarType            // element value type, set only for collection kinds
}

func (t *VarType) String() string {
	if t == nil {
		return "<nil>"
	}
	switch {
	case t.Kind == Struct:
		return t.Name
	case t.Kind.IsCollection() && t.Elem != nil:
		if t.Key != nil {
			return fmt.Sprintf("%s<%s,%s>", t.Kind, t.Key, t.Elem)
		}
		return fmt.Sprintf("%s<%s>", t.Kind, t.Elem)
	default:
		return t.Kind.String()
	}
}

// Equal reports identity equality, spelled out for readability at call
// sites that compare ResultTypes (spec §8 invariants reference this rule
// directly: "L.ResultType == R.ResultType").
func Equal(a, b *VarType) bool {
	return a == b
}

// Registry is the global interner for primitive and struct VarTypes (spec
// §2 step 2 "Type registry"). One Registry is constructed per compile.
type Registry struct {
	primitives map[VarKind]*VarType
	structs    map[string]*VarType
}

// NewRegistry creates a Registry with every primitive VarKind pre-interned.
func NewRegistry() *Registry {
	r := &Registry{
		primitives: make(map[VarKind]*VarType),
		structs:    make(map[string]*VarType),
	}
	for k := None; k <= Hash; k++ {
		r.primitives[k] = &VarType{Kind: k}
	}
	return r
}

// Primitive returns the interned VarType for a non-struct, non-collection
// VarKind (None, Any, Unknown, Generic, Number, Bool, String, Bytes,
// Address, Hash).
func (r *Registry) Primitive(k VarKind) *VarType {
	if v, ok := r.primitives[k]; ok {
		return v
	}
	v := &VarType{Kind: k}
	r.primitives[k] = v
	return v
}

// Collection interns a storage-collection VarType for the given key (nil
// for List/Set) and value element type. Each distinct (kind, key, elem)
// triple is interned exactly once so identity equality still holds between
// two variables declared with the same collection shape.
func (r *Registry) Collection(kind VarKind, key, elem *VarType) *VarType {
	sig := kind.String() + "<" + ptrKey(key) + "," + ptrKey(elem) + ">"
	if v, ok := r.structs[sig]; ok {
		return v
	}
	v := &VarType{Kind: kind, Key: key, Elem: elem}
	r.structs[sig] = v
	return v
}

func ptrKey(t *VarType) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%p", t)
}

// RegisterStruct interns a new struct type. Calling it twice with the same
// name returns the same VarType (redeclaration is left to the parser to
// reject, since only it has the source position for a good error message).
func (r *Registry) RegisterStruct(decl *StructDeclaration) *VarType {
	if v, ok := r.structs["struct:"+decl.Name]; ok {
		return v
	}
	v := &VarType{Kind: Struct, Name: decl.Name, Struct: decl}
	r.structs["struct:"+decl.Name] = v
	return v
}

// LookupStruct returns the interned VarType for a previously registered
// struct name, or nil.
func (r *Registry) LookupStruct(name string) *VarType {
	v, ok := r.structs["struct:"+name]
	if !ok {
		return nil
	}
	return v
}

// PrimitiveByName resolves a lowercase VarKind spelling (as produced by the
// lexer's Type token) to its VarKind, or (0, false) if unrecognized.
func PrimitiveByName(name string) (VarKind, bool) {
	switch name {
	case "number":
		return Number, true
	case "bool":
		return Bool, true
	case "string":
		return String, true
	case "bytes":
		return Bytes, true
	case "address":
		return Address, true
	case "hash":
		return Hash, true
	case "storage_map":
		return StorageMap, true
	case "storage_list":
		return StorageList, true
	case "storage_set":
		return StorageSet, true
	default:
		return None, false
	}
}
