// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package compiler is the single entry point a driver (the tombc CLI, a
// test, an embedder) calls: Compile turns one source file into a list of
// module artifacts. It owns the one thing no lower package should own
// itself — constructing a fresh types.Registry and stdlib.Builtins per
// compile and wiring lang/codegen into lang/parser's Generator hook — so
// that two independent compiles never share interned types (spec §5
// "singleton ... must be reset before each compile"; here "reset" is
// simply "never shared" since each Compile call builds its own Registry).
package compiler

import (
	"github.com/tombchain/tombc/internal/glog"
	"github.com/tombchain/tombc/lang/ast"
	"github.com/tombchain/tombc/lang/codegen"
	"github.com/tombchain/tombc/lang/parser"
	"github.com/tombchain/tombc/lang/sema"
	"github.com/tombchain/tombc/lang/stdlib"
	"github.com/tombchain/tombc/lang/types"
)

var log = glog.Default.WithStage("compiler")

// MethodABI is one callable entry in an artifact's ABI table (spec §6
// "abi: {methods: [{name, kind, return_type, parameters, offset}]}").
type MethodABI struct {
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	ReturnType string     `json:"return_type"`
	Parameters []ParamABI `json:"parameters"`
	Offset     int        `json:"offset"`
}

// ParamABI names one parameter's declared type for ABI purposes.
type ParamABI struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EventABI is one declared event's signature (spec §6 "events?: [{name,
// value, payload_type, description: bytes}]").
type EventABI struct {
	Name        string `json:"name"`
	Value       int    `json:"value"`
	PayloadType string `json:"payload_type"`
	Description []byte `json:"description"`
}

// ABI is a module's callable surface (spec §6 "abi: {methods: [...],
// events?: [...]}").
type ABI struct {
	Methods []MethodABI `json:"methods"`
	Events  []EventABI  `json:"events,omitempty"`
}

// Artifact is one compiled module's complete output (spec §6 Program entry
// API: "Each artifact exposes name, kind, bytecode, abi, source_line_map").
type Artifact struct {
	Name          string      `json:"name"`
	Kind          string      `json:"kind"`
	Bytecode      []byte      `json:"bytecode"`
	Constants     []uint64    `json:"constants"`
	ABI           ABI         `json:"abi"`
	SourceLineMap map[int]int `json:"source_line_map,omitempty"`
}

// Compile parses and lowers every top-level module in source, returning one
// Artifact per successfully compiled Contract/Script/Description and every
// error encountered along the way (spec §4.2: a failing module does not
// abort the others). Struct declarations produce no artifact of their own
// (spec §4.5 "Structs are processed first... referenceable by subsequent
// modules"); description scripts are compiled eagerly by the parser itself
// via the Generator hook below, purely so a later `event ... = name;` can
// embed their bytecode — Compile still re-derives their full Output here to
// fill in the ABI/source-line-map fields the Generator's narrow
// `([]byte, error)` signature has no room for.
func Compile(filename, source string) ([]*Artifact, []error) {
	reg := types.NewRegistry()
	builtins := stdlib.New(reg)

	modules, errs := parser.Parse(filename, source, reg, builtins, codegen.Generate)
	log.Debug("%s: parsed %d module(s), %d error(s)", filename, len(modules), len(errs))

	var artifacts []*Artifact
	for _, m := range modules {
		a, err := compileModule(m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Trace("%s: generated artifact %q (%s, %d bytes)", filename, a.Name, a.Kind, len(a.Bytecode))
		artifacts = append(artifacts, a)
	}
	return artifacts, errs
}

func compileModule(m ast.Module) (*Artifact, error) {
	switch mod := m.(type) {
	case *ast.Contract:
		return compileContract(mod)
	case *ast.Script:
		return compileScript(mod)
	default:
		return nil, &codegen.Error{Category: codegen.InternalErrorCat, Message: "compiler: unsupported module kind"}
	}
}

func compileContract(c *ast.Contract) (*Artifact, error) {
	out, err := codegen.GenerateContract(c)
	if err != nil {
		return nil, err
	}

	methods := make([]MethodABI, 0, len(c.Methods))
	offsetByName := make(map[string]int, len(out.Methods))
	for _, mo := range out.Methods {
		offsetByName[mo.Name] = mo.Offset
	}
	for _, method := range c.Methods {
		methods = append(methods, methodABI(method.Interface, offsetByName[method.Interface.Name]))
	}

	events := make([]EventABI, 0, len(c.Events))
	for _, ev := range c.Events {
		events = append(events, EventABI{
			Name:        ev.Name,
			Value:       ev.NumericValue,
			PayloadType: ev.PayloadType.String(),
			Description: ev.DescriptionBytes,
		})
	}

	return &Artifact{
		Name:          c.Name,
		Kind:          ast.ContractKind.String(),
		Bytecode:      out.Bytecode,
		Constants:     out.Constants,
		ABI:           ABI{Methods: methods, Events: events},
		SourceLineMap: out.SourceLineMap,
	}, nil
}

func compileScript(s *ast.Script) (*Artifact, error) {
	out, err := codegen.GenerateScript(s)
	if err != nil {
		return nil, err
	}

	iface := &sema.MethodInterface{Name: "code", Kind: sema.Method, ReturnType: s.ReturnType, Parameters: s.Parameters}
	methods := []MethodABI{methodABI(iface, 0)}

	return &Artifact{
		Name:          s.Name,
		Kind:          s.ModuleKind().String(),
		Bytecode:      out.Bytecode,
		Constants:     out.Constants,
		ABI:           ABI{Methods: methods},
		SourceLineMap: out.SourceLineMap,
	}, nil
}

func methodABI(iface *sema.MethodInterface, offset int) MethodABI {
	params := make([]ParamABI, 0, len(iface.Parameters))
	for _, p := range iface.Parameters {
		params = append(params, ParamABI{Name: p.Name, Type: p.Type.String()})
	}
	return MethodABI{
		Name:       iface.Name,
		Kind:       iface.Kind.String(),
		ReturnType: iface.ReturnType.String(),
		Parameters: params,
		Offset:     offset,
	}
}
