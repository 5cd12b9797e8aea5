// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package sema holds the name/type resolution model shared between the
// parser and the code generator: lexical scopes, variable/constant/library
// declarations, method interfaces, event declarations, and generic-library
// patching (spec §3, §4.2).
package sema

import "fmt"

// Scope is a lexical frame (spec §3 Scope).
type Scope struct {
	Parent *Scope
	Method string  // name of the owning method, empty for non-method scopes
	Params []*VarDecl

	vars     map[string]*VarDecl
	varOrder []string
	consts   map[string]*ConstDeclaration

	// Libraries holds name -> LibraryDeclaration; only populated on a
	// module's root scope (spec §3 Scope: "Root scope of a module
	// additionally holds the name -> LibraryDecl map").
	Libraries map[string]*LibraryDeclaration
}

// NewRootScope creates a module's root scope.
func NewRootScope() *Scope {
	return &Scope{
		vars:      make(map[string]*VarDecl),
		consts:    make(map[string]*ConstDeclaration),
		Libraries: make(map[string]*LibraryDeclaration),
	}
}

// NewChildScope creates a nested lexical frame under parent.
func NewChildScope(parent *Scope) *Scope {
	return &Scope{
		Parent: parent,
		vars:   make(map[string]*VarDecl),
		consts: make(map[string]*ConstDeclaration),
	}
}

// IsRoot reports whether this is a module's root scope.
func (s *Scope) IsRoot() bool { return s.Parent == nil }

// Root walks up to the module's root scope.
func (s *Scope) Root() *Scope {
	cur := s
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// DeclareVar adds v to this scope's local map. Redeclaration of the same
// name within one scope is a ShapeError left for the caller to report with
// source position context.
func (s *Scope) DeclareVar(v *VarDecl) error {
	if _, exists := s.vars[v.Name]; exists {
		return fmt.Errorf("variable %q already declared in this scope", v.Name)
	}
	v.Scope = s
	s.vars[v.Name] = v
	s.varOrder = append(s.varOrder, v.Name)
	return nil
}

// DeclareConst adds c to this scope's local map.
func (s *Scope) DeclareConst(c *ConstDeclaration) error {
	if _, exists := s.consts[c.Name]; exists {
		return fmt.Errorf("constant %q already declared in this scope", c.Name)
	}
	s.consts[c.Name] = c
	return nil
}

// DeclareLibrary registers lib in the module's library map. Only valid on
// a root scope; calling it elsewhere is a programmer error in the compiler
// itself (InternalError territory, spec §7), since only module construction
// calls this.
func (s *Scope) DeclareLibrary(lib *LibraryDeclaration) {
	if !s.IsRoot() {
		panic("sema: DeclareLibrary called on a non-root scope")
	}
	s.Libraries[lib.Name] = lib
}

// FindVariable walks outward from s to the root looking for name.
func (s *Scope) FindVariable(name string) (*VarDecl, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// FindConst walks outward from s to the root looking for name.
func (s *Scope) FindConst(name string) (*ConstDeclaration, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if c, ok := cur.consts[name]; ok {
			return c, true
		}
	}
	return nil, false
}

// FindLibrary looks up name in the module's root library map.
func (s *Scope) FindLibrary(name string) (*LibraryDeclaration, bool) {
	lib, ok := s.Root().Libraries[name]
	return lib, ok
}

// Variables returns the scope's locally declared variables in declaration
// order (used by the code generator to bind each method parameter to its
// register).
func (s *Scope) Variables() []*VarDecl {
	out := make([]*VarDecl, 0, len(s.varOrder))
	for _, name := range s.varOrder {
		out = append(out, s.vars[name])
	}
	return out
}
