// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package sema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombchain/tombc/lang/sema"
	"github.com/tombchain/tombc/lang/types"
)

func TestScopeFindVariableWalksOutward(t *testing.T) {
	reg := types.NewRegistry()
	root := sema.NewRootScope()
	outer := &sema.VarDecl{Name: "owner", Type: reg.Primitive(types.Address), Storage: sema.Global}
	assert.NoError(t, root.DeclareVar(outer))

	child := sema.NewChildScope(root)
	inner := &sema.VarDecl{Name: "amount", Type: reg.Primitive(types.Number), Storage: sema.Local}
	assert.NoError(t, child.DeclareVar(inner))

	got, ok := child.FindVariable("owner")
	assert.True(t, ok)
	assert.Same(t, outer, got)

	_, ok = root.FindVariable("amount")
	assert.False(t, ok, "root scope must not see a child's locals")
}

func TestScopeRedeclarationInSameScopeFails(t *testing.T) {
	reg := types.NewRegistry()
	root := sema.NewRootScope()
	v := &sema.VarDecl{Name: "x", Type: reg.Primitive(types.Number)}
	assert.NoError(t, root.DeclareVar(v))
	err := root.DeclareVar(&sema.VarDecl{Name: "x", Type: reg.Primitive(types.Bool)})
	assert.Error(t, err)
}

func TestLibraryLookupOnlyFromRoot(t *testing.T) {
	root := sema.NewRootScope()
	lib := sema.NewLibrary("Map")
	root.DeclareLibrary(lib)

	child := sema.NewChildScope(root)
	got, ok := child.FindLibrary("Map")
	assert.True(t, ok)
	assert.Same(t, lib, got)
}

func TestPatchMapSpecializesGenericParameters(t *testing.T) {
	reg := types.NewRegistry()
	generic := reg.Primitive(types.Generic)
	anyT := reg.Primitive(types.Any)

	mapLib := sema.NewLibrary("Map")
	mapLib.Declare(&sema.MethodInterface{
		Name: "set",
		Parameters: []sema.Param{
			{Name: "name", Type: reg.Primitive(types.String)},
			{Name: "key", Type: generic},
			{Name: "value", Type: generic},
		},
		ReturnType: reg.Primitive(types.None),
	})
	mapLib.Declare(&sema.MethodInterface{
		Name:       "get",
		Parameters: []sema.Param{{Name: "name", Type: reg.Primitive(types.String)}, {Name: "key", Type: generic}},
		ReturnType: generic,
	})

	addr := reg.Primitive(types.Address)
	num := reg.Primitive(types.Number)
	patched := sema.PatchMap(mapLib, addr, num)

	set, ok := patched.Lookup("set")
	assert.True(t, ok)
	assert.Same(t, num, set.Parameters[2].Type, "value parameter should be patched to Number")

	get, ok := patched.Lookup("get")
	assert.True(t, ok)
	assert.Same(t, num, get.ReturnType, "patched PatchMap substitutes Generic with the value type everywhere")

	// Original library must be untouched.
	origSet, _ := mapLib.Lookup("set")
	assert.Same(t, generic, origSet.Parameters[2].Type)
	_ = anyT
}
