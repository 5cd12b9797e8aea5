// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package parser implements a single-pass recursive-descent parser for the
// Tomb language, with semantic resolution interleaved into the same pass
// (spec §4.2): name resolution, generic-library patching, and type
// checking all happen as each construct is parsed, rather than as a
// separate tree-walking stage.
//
// Design overview:
//
//   - Declarations and statements are parsed with straightforward
//     recursive descent, one token of lookahead.
//   - Expressions are parsed right-recursively with no precedence table
//     (spec §4.2, §9 Open Questions): every binary operator is equal-
//     precedence and right-associative; parentheses are the only way to
//     override grouping. This is a deliberate divergence from a
//     conventional Pratt parser.
//   - Every error aborts the current top-level module (spec §7): the
//     parser panics with an *Error and recovers at the per-module
//     boundary, then resynchronizes to the next top-level keyword so the
//     driver can continue with the next module.
package parser

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/tombchain/tombc/lang/ast"
	"github.com/tombchain/tombc/lang/encoding"
	"github.com/tombchain/tombc/lang/lexer"
	"github.com/tombchain/tombc/lang/runtime"
	"github.com/tombchain/tombc/lang/sema"
	"github.com/tombchain/tombc/lang/stdlib"
	"github.com/tombchain/tombc/lang/token"
	"github.com/tombchain/tombc/lang/types"
)

// parseNumberLexeme converts a Number token's lexeme (grammar `-?[0-9]+`,
// unbounded precision) to a uint256.Int, matching the VM's 256-bit value
// domain rather than a native machine integer. A leading '-' is parsed as
// the 256-bit two's complement negation of the unsigned digits that follow,
// since uint256.Int has no signed representation of its own.
func parseNumberLexeme(lexeme string) (*uint256.Int, error) {
	digits := lexeme
	negative := false
	if strings.HasPrefix(digits, "-") {
		negative = true
		digits = digits[1:]
	}
	v := new(uint256.Int)
	if err := v.SetFromDecimal(digits); err != nil {
		return nil, err
	}
	if negative {
		v.Neg(v)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Error taxonomy (spec §7)
// ---------------------------------------------------------------------------

// Category is one of the four error kinds the parser itself can raise; Lex
// and Internal errors belong to the lexer and code generator respectively.
type Category string

const (
	SyntaxErrorCat     Category = "SyntaxError"
	ResolutionErrorCat Category = "ResolutionError"
	TypeErrorCat       Category = "TypeError"
	ShapeErrorCat      Category = "ShapeError"
)

// Error is a single parser-stage diagnostic, always carrying a source
// position (spec §7 "{line, column, message}").
type Error struct {
	Category Category
	Pos      token.Position
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Category, e.Message)
}

func fail(pos token.Position, cat Category, format string, args ...interface{}) {
	panic(&Error{Category: cat, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// ---------------------------------------------------------------------------
// Generator hook
// ---------------------------------------------------------------------------

// Generator lowers a fully-resolved module to bytecode. The parser calls it
// eagerly for description scripts (spec §4.5: description scripts are
// compiled eagerly so that a later event ... = <descName>; declaration can
// embed their bytecode). Injected by the compiler package rather than
// imported directly: lang/codegen depends on lang/ast and lang/sema the
// same way lang/parser does, so a direct parser -> codegen import would
// risk a cycle the moment codegen needed anything parser-shaped. A function
// value sidesteps that, and replaces a package-level "current compiler"
// singleton with an explicit dependency passed down at construction.
type Generator func(m ast.Module) ([]byte, error)

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser holds the mutable state for a single parse run over one source
// file, which may contain many top-level modules.
type Parser struct {
	lex *lexer.Lexer
	cur token.Token

	reg      *types.Registry
	builtins *stdlib.Builtins
	generate Generator

	descriptions map[string]*ast.Script // hidden scripts, by name, for `event ... = name;`

	errors []error
}

// Parse tokenizes and parses filename's source, returning every top-level
// Contract/Script module successfully parsed, plus any errors encountered.
// A parser error aborts only the module it occurred in (spec §4.2); parsing
// resumes at the next top-level keyword.
func Parse(filename, source string, reg *types.Registry, builtins *stdlib.Builtins, generate Generator) ([]ast.Module, []error) {
	p := &Parser{
		lex:          lexer.New(filename, source),
		reg:          reg,
		builtins:     builtins,
		generate:     generate,
		descriptions: make(map[string]*ast.Script),
	}
	p.advance()

	var modules []ast.Module
	for p.cur.Kind != token.EOF {
		if m, ok := p.parseTopLevelSafely(); ok && m != nil {
			modules = append(modules, m)
		}
	}
	if lerr := p.lex.Err(); lerr != nil {
		p.errors = append(p.errors, lerr)
	}
	return modules, p.errors
}

// parseTopLevelSafely parses one top-level declaration, recovering from any
// panic raised while parsing it and resynchronizing to the next top-level
// keyword. The bool result is false when the declaration produced no
// module artifact (a struct declaration, or a module that failed to parse).
func (p *Parser) parseTopLevelSafely() (m ast.Module, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err, isErr := r.(*Error)
			if !isErr {
				panic(r)
			}
			p.errors = append(p.errors, err)
			p.synchronize()
			m, ok = nil, false
		}
	}()

	switch {
	case p.curIsKeyword("struct"):
		p.parseStructDecl()
		return nil, false
	case p.curIsKeyword("contract"):
		return p.parseContract(), true
	case p.curIsKeyword("script"):
		return p.parseScript(false), true
	case p.curIsKeyword("description"):
		return p.parseScript(true), true
	default:
		fail(p.cur.Pos, SyntaxErrorCat, "unexpected token %q at top level", p.cur.Lexeme)
		return nil, false
	}
}

// synchronize advances past tokens until the next top-level keyword or EOF,
// so a failed module doesn't prevent the rest of the file from parsing.
func (p *Parser) synchronize() {
	for p.cur.Kind != token.EOF {
		if p.curIsKeyword("struct") || p.curIsKeyword("contract") ||
			p.curIsKeyword("script") || p.curIsKeyword("description") {
			return
		}
		p.advance()
	}
}

// ---------------------------------------------------------------------------
// Token navigation
// ---------------------------------------------------------------------------

func (p *Parser) advance() {
	p.cur = p.lex.NextToken()
}

func (p *Parser) curIsKeyword(word string) bool {
	return p.cur.Kind == token.Identifier && p.cur.Lexeme == word
}

func (p *Parser) curIsSeparator(s string) bool {
	return p.cur.Kind == token.Separator && p.cur.Lexeme == s
}

func (p *Parser) curIsOperator(s string) bool {
	return p.cur.Kind == token.Operator && p.cur.Lexeme == s
}

func (p *Parser) expectSeparator(s string) {
	if !p.curIsSeparator(s) {
		fail(p.cur.Pos, SyntaxErrorCat, "expected %q, got %q", s, p.cur.Lexeme)
	}
	p.advance()
}

func (p *Parser) expectOperator(s string) {
	if !p.curIsOperator(s) {
		fail(p.cur.Pos, SyntaxErrorCat, "expected %q, got %q", s, p.cur.Lexeme)
	}
	p.advance()
}

func (p *Parser) expectKeyword(word string) {
	if !p.curIsKeyword(word) {
		fail(p.cur.Pos, SyntaxErrorCat, "expected %q, got %q", word, p.cur.Lexeme)
	}
	p.advance()
}

func (p *Parser) expectIdentifierLexeme() string {
	if p.cur.Kind != token.Identifier {
		fail(p.cur.Pos, SyntaxErrorCat, "expected identifier, got %q", p.cur.Lexeme)
	}
	lex := p.cur.Lexeme
	p.advance()
	return lex
}

// ---------------------------------------------------------------------------
// Struct declarations
// ---------------------------------------------------------------------------

func (p *Parser) parseStructDecl() {
	p.expectKeyword("struct")
	name := p.expectIdentifierLexeme()
	p.expectSeparator("{")
	var fields []types.StructField
	for !p.curIsSeparator("}") {
		fname := p.expectIdentifierLexeme()
		p.expectSeparator(":")
		ftype := p.parseType()
		p.expectSeparator(";")
		fields = append(fields, types.StructField{Name: fname, Type: ftype})
	}
	p.expectSeparator("}")
	p.reg.RegisterStruct(&types.StructDeclaration{Name: name, Fields: fields})
}

// parseType parses a type name: a primitive, a generic storage collection
// (`storage_map<K,V>`, `storage_list<V>`, `storage_set<V>`), or a
// previously-declared struct name (spec §4.5 "structs are processed
// first"). The lexer tokenizes '<' and '>' as Operator regardless of
// whether they are being used as comparisons or generic brackets here;
// disambiguation is entirely the parser's job, by grammatical position.
func (p *Parser) parseType() *types.VarType {
	pos := p.cur.Pos
	if p.cur.Kind == token.Type {
		name := strings.ToLower(p.cur.Lexeme)
		switch name {
		case "storage_map":
			p.advance()
			p.expectOperator("<")
			key := p.parseType()
			p.expectSeparator(",")
			val := p.parseType()
			p.expectOperator(">")
			return p.reg.Collection(types.StorageMap, key, val)
		case "storage_list":
			p.advance()
			p.expectOperator("<")
			val := p.parseType()
			p.expectOperator(">")
			return p.reg.Collection(types.StorageList, nil, val)
		case "storage_set":
			p.advance()
			p.expectOperator("<")
			val := p.parseType()
			p.expectOperator(">")
			return p.reg.Collection(types.StorageSet, nil, val)
		default:
			kind, ok := types.PrimitiveByName(name)
			if !ok {
				fail(pos, SyntaxErrorCat, "expected type, got %q", p.cur.Lexeme)
			}
			p.advance()
			return p.reg.Primitive(kind)
		}
	}
	if p.cur.Kind == token.Identifier {
		name := p.cur.Lexeme
		st := p.reg.LookupStruct(name)
		if st == nil {
			fail(pos, ResolutionErrorCat, "unknown type %q", name)
		}
		p.advance()
		return st
	}
	fail(pos, SyntaxErrorCat, "expected type, got %q", p.cur.Lexeme)
	return nil
}

// ---------------------------------------------------------------------------
// Module-level declarations shared by contracts and scripts
// ---------------------------------------------------------------------------

func (p *Parser) installBuiltins(scope *sema.Scope) {
	for _, lib := range p.builtins.Libraries() {
		scope.DeclareLibrary(lib)
	}
}

func (p *Parser) parseConstDecl(scope *sema.Scope) *sema.ConstDeclaration {
	p.expectKeyword("const")
	name := p.expectIdentifierLexeme()
	p.expectSeparator(":")
	declType := p.parseType()
	p.expectSeparator("=")
	lit := p.parseLiteralValue(declType)
	pos := p.cur.Pos
	p.expectSeparator(";")
	cd := &sema.ConstDeclaration{Name: name, Type: declType, Literal: lit}
	if err := scope.DeclareConst(cd); err != nil {
		fail(pos, ShapeErrorCat, "%s", err)
	}
	return cd
}

// parseLiteralValue parses a single literal token whose kind must agree
// with want, returning its Go-native value (spec §4.2 const grammar
// `literal-of(type)`).
func (p *Parser) parseLiteralValue(want *types.VarType) interface{} {
	pos := p.cur.Pos
	switch want.Kind {
	case types.Number:
		if p.cur.Kind != token.Number {
			fail(pos, TypeErrorCat, "expected number literal, got %q", p.cur.Lexeme)
		}
		v, err := parseNumberLexeme(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "malformed number literal %q", p.cur.Lexeme)
		}
		p.advance()
		return v
	case types.Bool:
		if p.cur.Kind != token.Bool {
			fail(pos, TypeErrorCat, "expected bool literal, got %q", p.cur.Lexeme)
		}
		v := p.cur.Lexeme == "true"
		p.advance()
		return v
	case types.String:
		if p.cur.Kind != token.String {
			fail(pos, TypeErrorCat, "expected string literal, got %q", p.cur.Lexeme)
		}
		v := p.cur.Lexeme
		p.advance()
		return v
	case types.Bytes:
		if p.cur.Kind != token.Bytes {
			fail(pos, TypeErrorCat, "expected bytes literal, got %q", p.cur.Lexeme)
		}
		v, err := encoding.DecodeBase16(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "%s", err)
		}
		p.advance()
		return v
	case types.Address:
		if p.cur.Kind != token.Address {
			fail(pos, TypeErrorCat, "expected address literal, got %q", p.cur.Lexeme)
		}
		v := p.cur.Lexeme
		p.advance()
		return v
	case types.Hash:
		if p.cur.Kind != token.Hash {
			fail(pos, TypeErrorCat, "expected hash literal, got %q", p.cur.Lexeme)
		}
		v, err := encoding.DecodeBase16(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "%s", err)
		}
		p.advance()
		return v
	default:
		fail(pos, TypeErrorCat, "type %s has no literal form", want)
		return nil
	}
}

func (p *Parser) parseGlobalDecl(scope *sema.Scope) *sema.VarDecl {
	p.expectKeyword("global")
	name := p.expectIdentifierLexeme()
	p.expectSeparator(":")
	pos := p.cur.Pos
	declType := p.parseType()
	p.expectSeparator(";")
	return p.declareVar(scope, pos, name, declType, sema.Global)
}

// declareVar builds the correct VarDecl subtype for declType's kind and
// registers it in scope.
func (p *Parser) declareVar(scope *sema.Scope, pos token.Position, name string, declType *types.VarType, storage sema.StorageKind) *sema.VarDecl {
	base := sema.VarDecl{Name: name, Type: declType, Storage: storage}
	var target *sema.VarDecl
	switch declType.Kind {
	case types.StorageMap:
		md := &sema.MapDeclaration{VarDecl: base, KeyType: declType.Key, ValueType: declType.Elem}
		target = &md.VarDecl
	case types.StorageList:
		ld := &sema.ListDeclaration{VarDecl: base, ValueType: declType.Elem}
		target = &ld.VarDecl
	case types.StorageSet:
		sd := &sema.SetDeclaration{VarDecl: base, ValueType: declType.Elem}
		target = &sd.VarDecl
	default:
		v := base
		target = &v
	}
	if err := scope.DeclareVar(target); err != nil {
		fail(pos, ShapeErrorCat, "%s", err)
	}
	return target
}

func (p *Parser) parseImport(scope *sema.Scope) {
	p.expectKeyword("import")
	pos := p.cur.Pos
	name := p.expectIdentifierLexeme()
	p.expectSeparator(";")
	if _, ok := scope.FindLibrary(name); !ok {
		fail(pos, ResolutionErrorCat, "unknown library %q", name)
	}
}

func (p *Parser) parseEventDecl(c *ast.Contract, scope *sema.Scope) {
	p.expectKeyword("event")
	name := p.expectIdentifierLexeme()
	p.expectSeparator(":")
	payloadType := p.parseType()
	p.expectSeparator("=")

	pos := p.cur.Pos
	var descBytes []byte
	switch p.cur.Kind {
	case token.String:
		descBytes = encoding.EncodeStringDescription(p.cur.Lexeme)
		p.advance()
	case token.Bytes:
		raw, err := encoding.DecodeBase16(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "%s", err)
		}
		descBytes = encoding.EncodeScriptDescription(raw)
		p.advance()
	case token.Identifier:
		descName := p.cur.Lexeme
		script, ok := p.descriptions[descName]
		if !ok {
			fail(pos, ShapeErrorCat, "invalid event description: %q is not a description script", descName)
		}
		descBytes = encoding.EncodeScriptDescription(script.CompiledBytes)
		p.advance()
	default:
		fail(pos, ShapeErrorCat, "invalid event description")
	}
	p.expectSeparator(";")

	ev := &sema.EventDeclaration{
		Name:             name,
		NumericValue:     sema.CustomBase + len(c.Events),
		PayloadType:      payloadType,
		DescriptionBytes: descBytes,
	}
	c.Events = append(c.Events, ev)
}

// ---------------------------------------------------------------------------
// Parameters
// ---------------------------------------------------------------------------

func (p *Parser) parseParams(scope *sema.Scope) []sema.Param {
	p.expectSeparator("(")
	var params []sema.Param
	for !p.curIsSeparator(")") {
		if len(params) > 0 {
			p.expectSeparator(",")
		}
		pos := p.cur.Pos
		name := p.expectIdentifierLexeme()
		p.expectSeparator(":")
		pt := p.parseType()
		params = append(params, sema.Param{Name: name, Type: pt})
		if err := scope.DeclareVar(&sema.VarDecl{Name: name, Type: pt, Storage: sema.Argument}); err != nil {
			fail(pos, ShapeErrorCat, "%s", err)
		}
	}
	p.expectSeparator(")")
	return params
}

// ---------------------------------------------------------------------------
// Contract
// ---------------------------------------------------------------------------

func (p *Parser) parseContract() *ast.Contract {
	p.expectKeyword("contract")
	name := p.expectIdentifierLexeme()
	scope := sema.NewRootScope()
	p.installBuiltins(scope)
	c := &ast.Contract{Name: name, Scope: scope}

	p.expectSeparator("{")
	for !p.curIsSeparator("}") {
		p.parseContractItem(c, scope)
	}
	p.expectSeparator("}")
	return c
}

func (p *Parser) parseContractItem(c *ast.Contract, scope *sema.Scope) {
	switch {
	case p.curIsKeyword("const"):
		c.Consts = append(c.Consts, p.parseConstDecl(scope))
	case p.curIsKeyword("global"):
		c.Globals = append(c.Globals, p.parseGlobalDecl(scope))
	case p.curIsKeyword("import"):
		p.parseImport(scope)
	case p.curIsKeyword("event"):
		p.parseEventDecl(c, scope)
	case p.curIsKeyword("constructor"):
		c.Methods = append(c.Methods, p.parseConstructor(c, scope))
	case p.curIsKeyword("public"), p.curIsKeyword("private"):
		c.Methods = append(c.Methods, p.parseMethod(c, scope))
	case p.curIsKeyword("task"):
		c.Methods = append(c.Methods, p.parseTask(c, scope))
	case p.curIsKeyword("trigger"):
		c.Methods = append(c.Methods, p.parseTrigger(c, scope))
	default:
		fail(p.cur.Pos, SyntaxErrorCat, "unexpected %q in contract body", p.cur.Lexeme)
	}
}

func (p *Parser) parseConstructor(c *ast.Contract, scope *sema.Scope) *ast.Method {
	pos := p.cur.Pos
	p.expectKeyword("constructor")
	methodScope := sema.NewChildScope(scope)
	methodScope.Method = "Initialize"
	params := p.parseParams(methodScope)
	if len(params) != 1 || params[0].Type.Kind != types.Address {
		fail(pos, ShapeErrorCat, "constructor signature: must declare exactly one parameter of type address")
	}
	iface := &sema.MethodInterface{
		Name: "Initialize", IsPublic: true, Kind: sema.Constructor,
		ReturnType: p.reg.Primitive(types.None), Parameters: params,
	}
	body := p.parseBlock(methodScope, iface, c)
	return &ast.Method{Interface: iface, Body: body}
}

func (p *Parser) parseMethod(c *ast.Contract, scope *sema.Scope) *ast.Method {
	isPublic := p.curIsKeyword("public")
	if isPublic {
		p.expectKeyword("public")
	} else {
		p.expectKeyword("private")
	}
	name := p.expectIdentifierLexeme()
	methodScope := sema.NewChildScope(scope)
	methodScope.Method = name
	params := p.parseParams(methodScope)
	ret := p.reg.Primitive(types.None)
	if p.curIsSeparator(":") {
		p.advance()
		ret = p.parseType()
	}
	iface := &sema.MethodInterface{Name: name, IsPublic: isPublic, Kind: sema.Method, ReturnType: ret, Parameters: params}
	body := p.parseBlock(methodScope, iface, c)
	return &ast.Method{Interface: iface, Body: body}
}

func (p *Parser) parseTask(c *ast.Contract, scope *sema.Scope) *ast.Method {
	p.expectKeyword("task")
	name := p.expectIdentifierLexeme()
	methodScope := sema.NewChildScope(scope)
	methodScope.Method = name
	params := p.parseParams(methodScope)
	iface := &sema.MethodInterface{Name: name, IsPublic: true, Kind: sema.Task, ReturnType: p.reg.Primitive(types.None), Parameters: params}
	body := p.parseBlock(methodScope, iface, c)
	return &ast.Method{Interface: iface, Body: body}
}

func (p *Parser) parseTrigger(c *ast.Contract, scope *sema.Scope) *ast.Method {
	p.expectKeyword("trigger")
	pos := p.cur.Pos
	rawName := p.expectIdentifierLexeme()
	normalized := runtime.NormalizeTriggerName(rawName)
	if !runtime.ValidTriggerNames()[normalized] {
		fail(pos, ShapeErrorCat, "invalid trigger name %q", rawName)
	}
	methodScope := sema.NewChildScope(scope)
	methodScope.Method = normalized
	params := p.parseParams(methodScope)
	iface := &sema.MethodInterface{Name: normalized, IsPublic: true, Kind: sema.Trigger, ReturnType: p.reg.Primitive(types.None), Parameters: params}
	body := p.parseBlock(methodScope, iface, c)
	return &ast.Method{Interface: iface, Body: body}
}

// ---------------------------------------------------------------------------
// Script / Description
// ---------------------------------------------------------------------------

func (p *Parser) parseScript(hidden bool) *ast.Script {
	if hidden {
		p.expectKeyword("description")
	} else {
		p.expectKeyword("script")
	}
	name := p.expectIdentifierLexeme()
	scope := sema.NewRootScope()
	p.installBuiltins(scope)
	s := &ast.Script{Name: name, Hidden: hidden, Scope: scope, ReturnType: p.reg.Primitive(types.None)}

	p.expectSeparator("{")
	sawCode := false
	for !p.curIsSeparator("}") {
		switch {
		case p.curIsKeyword("const"):
			p.parseConstDecl(scope)
		case p.curIsKeyword("global"):
			p.parseGlobalDecl(scope)
		case p.curIsKeyword("import"):
			p.parseImport(scope)
		case p.curIsKeyword("code"):
			if sawCode {
				fail(p.cur.Pos, ShapeErrorCat, "a script may declare only one code block")
			}
			sawCode = true
			p.parseCode(s, scope)
		default:
			// A script has no method/event/trigger surface: it carries no
			// ABI, only a single runnable code block (spec §3 "Script").
			fail(p.cur.Pos, SyntaxErrorCat, "unexpected %q in script body", p.cur.Lexeme)
		}
	}
	closePos := p.cur.Pos
	p.expectSeparator("}")
	if !sawCode {
		fail(closePos, ShapeErrorCat, "script %q is missing a code block", name)
	}

	if p.generate != nil {
		bc, err := p.generate(s)
		if err != nil {
			fail(closePos, ShapeErrorCat, "%s", err)
		}
		s.CompiledBytes = bc
	}
	if hidden {
		p.descriptions[name] = s
	}
	return s
}

func (p *Parser) parseCode(s *ast.Script, scope *sema.Scope) {
	p.expectKeyword("code")
	params := p.parseParams(scope)
	ret := p.reg.Primitive(types.None)
	if p.curIsSeparator(":") {
		p.advance()
		ret = p.parseType()
	}
	iface := &sema.MethodInterface{Name: "code", Kind: sema.Method, ReturnType: ret, Parameters: params}
	body := p.parseBlock(scope, iface, nil)
	s.Parameters = params
	s.Body = body
	s.ReturnType = ret
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlock(parent *sema.Scope, method *sema.MethodInterface, contract *ast.Contract) *ast.StatementBlock {
	scope := sema.NewChildScope(parent)
	p.expectSeparator("{")
	var stmts []ast.Statement
	for !p.curIsSeparator("}") {
		if st := p.parseStatement(scope, method, contract); st != nil {
			stmts = append(stmts, st)
		}
	}
	p.expectSeparator("}")
	return &ast.StatementBlock{Scope: scope, Statements: stmts}
}

func (p *Parser) parseStatement(scope *sema.Scope, method *sema.MethodInterface, contract *ast.Contract) ast.Statement {
	switch {
	case p.curIsKeyword("return"):
		return p.parseReturn(scope, method)
	case p.curIsKeyword("throw"):
		return p.parseThrow(scope)
	case p.curIsKeyword("emit"):
		return p.parseEmit(scope, contract)
	case p.curIsKeyword("asm"):
		return p.parseAsmBlock(scope)
	case p.curIsKeyword("local"):
		return p.parseLocal(scope)
	case p.curIsKeyword("if"):
		return p.parseIf(scope, method, contract)
	case p.curIsKeyword("while"):
		return p.parseWhile(scope, method, contract)
	case p.curIsKeyword("do"):
		return p.parseDoWhile(scope, method, contract)
	case p.cur.Kind == token.Identifier:
		return p.parseIdentStatement(scope)
	default:
		fail(p.cur.Pos, SyntaxErrorCat, "unexpected token %q", p.cur.Lexeme)
		return nil
	}
}

func (p *Parser) parseReturn(scope *sema.Scope, method *sema.MethodInterface) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("return")
	var expr ast.Expression
	if !p.curIsSeparator(";") {
		expr = p.parseExpr(scope)
	}
	p.expectSeparator(";")

	wantNone := method.ReturnType == nil || method.ReturnType.Kind == types.None
	if expr == nil && !wantNone {
		fail(pos, TypeErrorCat, "method %q must return a value of type %s", method.Name, method.ReturnType)
	}
	if expr != nil {
		if wantNone {
			fail(pos, TypeErrorCat, "method %q does not return a value", method.Name)
		}
		if !types.Equal(expr.ResultType(), method.ReturnType) {
			fail(pos, TypeErrorCat, "return type mismatch: got %s, want %s", expr.ResultType(), method.ReturnType)
		}
	}
	return &ast.ReturnStmt{Position: pos, Scope: scope, Method: method, Expr: expr}
}

func (p *Parser) parseThrow(scope *sema.Scope) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("throw")
	if p.cur.Kind != token.String {
		fail(p.cur.Pos, SyntaxErrorCat, "expected string literal after throw")
	}
	msg := p.cur.Lexeme
	p.advance()
	p.expectSeparator(";")
	return &ast.ThrowStmt{Position: pos, Scope: scope, Message: msg}
}

func (p *Parser) parseEmit(scope *sema.Scope, contract *ast.Contract) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("emit")
	if contract == nil {
		fail(pos, ShapeErrorCat, "emit is only valid inside a contract")
	}
	name := p.expectIdentifierLexeme()
	var ev *sema.EventDeclaration
	for _, e := range contract.Events {
		if e.Name == name {
			ev = e
			break
		}
	}
	if ev == nil {
		fail(pos, ResolutionErrorCat, "unknown event %q", name)
	}
	p.expectSeparator("(")
	addr := p.parseExpr(scope)
	p.expectSeparator(",")
	value := p.parseExpr(scope)
	p.expectSeparator(")")
	p.expectSeparator(";")

	if addr.ResultType().Kind != types.Address {
		fail(pos, TypeErrorCat, "emit %q: first argument must be address", name)
	}
	if !types.Equal(value.ResultType(), ev.PayloadType) {
		fail(pos, TypeErrorCat, "emit %q: second argument must be %s", name, ev.PayloadType)
	}
	return &ast.EmitStmt{Position: pos, Scope: scope, Event: ev, Addr: addr, Value: value}
}

// parseAsmBlock reads a raw VM-assembly block verbatim (spec §3
// "AsmBlock(lines)"). The lexer exposes ReadAsmBody specifically so this
// can bypass ordinary tokenization for the block's contents; the parser
// must not pre-fetch a token past the opening '{' before calling it, since
// that would tokenize the first line of assembly as if it were Tomb source.
func (p *Parser) parseAsmBlock(scope *sema.Scope) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("asm")
	if !p.curIsSeparator("{") {
		fail(p.cur.Pos, SyntaxErrorCat, "expected '{' after asm")
	}
	raw := p.lex.ReadAsmBody()
	var lines []string
	for _, line := range strings.Split(raw.Lexeme, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		lines = append(lines, trimmed)
	}
	p.advance() // fetches the '}' the lexer left ReadAsmBody positioned at
	p.expectSeparator("}")
	return &ast.AsmBlockStmt{Position: pos, Scope: scope, Lines: lines}
}

func (p *Parser) parseLocal(scope *sema.Scope) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("local")
	name := p.expectIdentifierLexeme()
	p.expectSeparator(":")
	declType := p.parseType()
	decl := p.declareVar(scope, pos, name, declType, sema.Local)

	if !p.curIsOperator(":=") {
		p.expectSeparator(";")
		return nil
	}
	p.advance()
	expr := p.parseExpr(scope)
	p.expectSeparator(";")
	if !types.Equal(expr.ResultType(), decl.Type) {
		fail(pos, TypeErrorCat, "cannot initialize %s with %s", decl.Type, expr.ResultType())
	}
	return &ast.AssignStmt{Position: pos, Scope: scope, Target: decl, Expr: expr}
}

func (p *Parser) parseIf(scope *sema.Scope, method *sema.MethodInterface, contract *ast.Contract) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("if")
	p.expectSeparator("(")
	cond := p.parseExpr(scope)
	p.expectSeparator(")")
	if cond.ResultType().Kind != types.Bool {
		fail(pos, TypeErrorCat, "if condition must have boolean type")
	}
	body := p.parseBlock(scope, method, contract)
	var elseBlock *ast.StatementBlock
	if p.curIsKeyword("else") {
		p.advance()
		elseBlock = p.parseBlock(scope, method, contract)
	}
	return &ast.IfStmt{Position: pos, Scope: scope, Cond: cond, Body: body, Else: elseBlock}
}

func (p *Parser) parseWhile(scope *sema.Scope, method *sema.MethodInterface, contract *ast.Contract) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("while")
	p.expectSeparator("(")
	cond := p.parseExpr(scope)
	p.expectSeparator(")")
	if cond.ResultType().Kind != types.Bool {
		fail(pos, TypeErrorCat, "while condition must have boolean type")
	}
	body := p.parseBlock(scope, method, contract)
	return &ast.WhileStmt{Position: pos, Scope: scope, Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile(scope *sema.Scope, method *sema.MethodInterface, contract *ast.Contract) ast.Statement {
	pos := p.cur.Pos
	p.expectKeyword("do")
	body := p.parseBlock(scope, method, contract)
	p.expectKeyword("while")
	p.expectSeparator("(")
	cond := p.parseExpr(scope)
	p.expectSeparator(")")
	p.expectSeparator(";")
	if cond.ResultType().Kind != types.Bool {
		fail(pos, TypeErrorCat, "do-while condition must have boolean type")
	}
	return &ast.DoWhileStmt{Position: pos, Scope: scope, Body: body, Cond: cond}
}

// parseIdentStatement handles the two statement shapes that start with a
// bare identifier: assignment (`Ident assignOp expr ;`) and a method call
// used for effect (`Ident '.' methodCall ;`).
func (p *Parser) parseIdentStatement(scope *sema.Scope) ast.Statement {
	pos := p.cur.Pos
	name := p.cur.Lexeme
	p.advance()

	if p.cur.Kind == token.Selector {
		call := p.parseCallTail(scope, pos, name)
		p.expectSeparator(";")
		return &ast.MethodCallStmt{Position: pos, Scope: scope, Call: call}
	}

	if p.cur.Kind == token.Operator && token.AssignOps[p.cur.Lexeme] {
		op := p.cur.Lexeme
		p.advance()

		decl, ok := scope.FindVariable(name)
		if !ok {
			if _, isConst := scope.FindConst(name); isConst {
				fail(pos, ShapeErrorCat, "cannot assign to constant %q", name)
			}
			fail(pos, ResolutionErrorCat, "unknown identifier %q", name)
		}
		rhs := p.parseExpr(scope)
		p.expectSeparator(";")

		var expr ast.Expression
		if op == ":=" {
			expr = rhs
		} else {
			// Compound assignment expands to `var := var op rhs` (spec §4.2).
			binOp := strings.TrimSuffix(op, "=")
			expr = p.buildBinary(pos, binOp, &ast.VarExpr{Position: pos, Name: name, Decl: decl}, rhs)
		}
		if !types.Equal(expr.ResultType(), decl.Type) {
			fail(pos, TypeErrorCat, "cannot assign %s to %s", expr.ResultType(), decl.Type)
		}
		return &ast.AssignStmt{Position: pos, Scope: scope, Target: decl, Expr: expr}
	}

	fail(p.cur.Pos, SyntaxErrorCat, "expected assignment or method call after %q", name)
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpr implements the right-recursive, equal-precedence grammar of
// spec §4.2/§9: parse one primary, then optionally one operator followed by
// a full recursive parseExpr for the right-hand side. There is no
// precedence climbing; every operator binds the same and associates right.
func (p *Parser) parseExpr(scope *sema.Scope) ast.Expression {
	var left ast.Expression
	if p.curIsSeparator("(") {
		p.advance()
		left = p.parseExpr(scope)
		p.expectSeparator(")")
	} else {
		left = p.parsePrimary(scope)
	}

	if p.cur.Kind == token.Operator {
		op := p.cur.Lexeme
		pos := p.cur.Pos
		p.advance()
		right := p.parseExpr(scope)
		return p.buildBinary(pos, op, left, right)
	}
	return left
}

func (p *Parser) buildBinary(pos token.Position, op string, l, r ast.Expression) ast.Expression {
	if op == "!=" {
		eq := p.buildBinary(pos, "==", l, r)
		return &ast.NegationExpr{Position: pos, Inner: eq, Type: p.reg.Primitive(types.Bool)}
	}

	lt, rt := l.ResultType(), r.ResultType()
	if lt.Kind == types.String && op == "+" && !types.Equal(lt, rt) {
		r = &ast.CastExpr{Position: pos, To: lt, Inner: r}
		rt = lt
	}
	if !types.Equal(lt, rt) {
		fail(pos, TypeErrorCat, "type mismatch: %s %s %s", lt, op, rt)
	}

	resultType := lt
	switch op {
	case "==", "<", "<=", ">", ">=":
		resultType = p.reg.Primitive(types.Bool)
	}
	return &ast.BinaryExpr{Position: pos, Op: op, L: l, R: r, Type: resultType}
}

// parsePrimary parses one atom (spec §4.2 grammar `atom`), or an
// identifier-led method call.
func (p *Parser) parsePrimary(scope *sema.Scope) ast.Expression {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case token.Number:
		v, err := parseNumberLexeme(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "malformed number literal %q", p.cur.Lexeme)
		}
		p.advance()
		return &ast.Literal{Position: pos, Type: p.reg.Primitive(types.Number), Value: v}
	case token.String:
		v := p.cur.Lexeme
		p.advance()
		return &ast.Literal{Position: pos, Type: p.reg.Primitive(types.String), Value: v}
	case token.Bool:
		v := p.cur.Lexeme == "true"
		p.advance()
		return &ast.Literal{Position: pos, Type: p.reg.Primitive(types.Bool), Value: v}
	case token.Address:
		v := p.cur.Lexeme
		p.advance()
		return &ast.Literal{Position: pos, Type: p.reg.Primitive(types.Address), Value: v}
	case token.Hash:
		v, err := encoding.DecodeBase16(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "%s", err)
		}
		p.advance()
		return &ast.Literal{Position: pos, Type: p.reg.Primitive(types.Hash), Value: v}
	case token.Bytes:
		v, err := encoding.DecodeBase16(p.cur.Lexeme)
		if err != nil {
			fail(pos, SyntaxErrorCat, "%s", err)
		}
		p.advance()
		return &ast.Literal{Position: pos, Type: p.reg.Primitive(types.Bytes), Value: v}
	case token.Macro:
		name := p.cur.Lexeme
		p.advance()
		return &ast.MacroExpr{Position: pos, Name: name, Expanded: p.expandMacro(pos, name, scope)}
	case token.Identifier:
		return p.parseIdentExpr(scope)
	default:
		fail(pos, SyntaxErrorCat, "unexpected token %q", p.cur.Lexeme)
		return nil
	}
}

// parseIdentExpr resolves a bare identifier per spec §4.2's resolution
// order: constant, then variable, then library (a library identifier only
// ever appears as the receiver of a method call; used bare as a value it is
// a compile error, per spec §9's Open Question decision recorded in
// DESIGN.md).
func (p *Parser) parseIdentExpr(scope *sema.Scope) ast.Expression {
	pos := p.cur.Pos
	name := p.cur.Lexeme
	p.advance()

	if cd, ok := scope.FindConst(name); ok {
		return &ast.ConstExpr{Position: pos, Name: name, Decl: cd}
	}
	if decl, ok := scope.FindVariable(name); ok {
		if p.cur.Kind == token.Selector {
			return p.parseMethodCallTail(scope, pos, name, decl)
		}
		return &ast.VarExpr{Position: pos, Name: name, Decl: decl}
	}
	if lib, ok := scope.FindLibrary(name); ok {
		if p.cur.Kind != token.Selector {
			fail(pos, ResolutionErrorCat, "library %q cannot be used as a value", name)
		}
		return p.parseLibraryCallTail(scope, pos, lib)
	}
	fail(pos, ResolutionErrorCat, "unknown identifier %q", name)
	return nil
}

// parseCallTail resolves name per the same order parseIdentExpr uses
// (variable, then library) and parses the `.methodName(args)` tail against
// whichever it resolves to. Shared by parseIdentStatement, whose
// method-call-used-as-statement form must accept a bare library receiver
// (e.g. `Call.invoke(...)`) exactly like the expression form does.
func (p *Parser) parseCallTail(scope *sema.Scope, pos token.Position, name string) *ast.MethodExpr {
	if decl, ok := scope.FindVariable(name); ok {
		return p.parseMethodCallTail(scope, pos, name, decl)
	}
	if lib, ok := scope.FindLibrary(name); ok {
		return p.parseLibraryCallTail(scope, pos, lib)
	}
	fail(pos, ResolutionErrorCat, "unknown identifier %q", name)
	return nil
}

// parseMethodCallTail parses `.methodName(args)` on an identifier already
// known to be a variable, dispatching to collection-patching logic when the
// variable is a storage collection.
func (p *Parser) parseMethodCallTail(scope *sema.Scope, pos token.Position, varName string, decl *sema.VarDecl) *ast.MethodExpr {
	if !decl.Type.Kind.IsCollection() {
		fail(pos, ShapeErrorCat, "%q is not a generic collection: '.' requires one", varName)
	}

	p.advance() // consume '.'
	methodName := p.expectIdentifierLexeme()
	args := p.parseArgList(scope)

	lib := p.collectionLibraryFor(decl.Type.Kind)
	patched := p.patchCollectionLibrary(lib, decl.Type)
	method, ok := patched.Lookup(methodName)
	if !ok {
		fail(pos, ResolutionErrorCat, "unknown method %q on %s", methodName, decl.Type)
	}
	p.checkArity(pos, patched, method, args)
	return &ast.MethodExpr{Position: pos, Library: patched, Method: method, Args: args, VariableName: varName}
}

func (p *Parser) collectionLibraryFor(kind types.VarKind) *sema.LibraryDeclaration {
	switch kind {
	case types.StorageMap:
		return p.builtins.Map
	case types.StorageList:
		return p.builtins.List
	case types.StorageSet:
		return p.builtins.Set
	default:
		panic("parser: collectionLibraryFor called with non-collection kind")
	}
}

func (p *Parser) patchCollectionLibrary(lib *sema.LibraryDeclaration, varType *types.VarType) *sema.LibraryDeclaration {
	switch varType.Kind {
	case types.StorageMap:
		return sema.PatchMap(lib, varType.Key, varType.Elem)
	case types.StorageList:
		return sema.PatchList(lib, varType.Elem)
	case types.StorageSet:
		return sema.PatchSet(lib, varType.Elem)
	default:
		panic("parser: patchCollectionLibrary called with non-collection kind")
	}
}

// parseLibraryCallTail parses `.methodName(args)` against a non-collection
// library invoked directly by name (e.g. `Runtime.caller()`).
func (p *Parser) parseLibraryCallTail(scope *sema.Scope, pos token.Position, lib *sema.LibraryDeclaration) *ast.MethodExpr {
	p.advance() // consume '.'
	methodName := p.expectIdentifierLexeme()
	args := p.parseArgList(scope)

	method, ok := lib.Lookup(methodName)
	if !ok {
		fail(pos, ResolutionErrorCat, "unknown method %q on library %q", methodName, lib.Name)
	}
	p.checkArity(pos, lib, method, args)
	return &ast.MethodExpr{Position: pos, Library: lib, Method: method, Args: args}
}

func (p *Parser) parseArgList(scope *sema.Scope) []ast.Expression {
	p.expectSeparator("(")
	var args []ast.Expression
	for !p.curIsSeparator(")") {
		if len(args) > 0 {
			p.expectSeparator(",")
		}
		args = append(args, p.parseExpr(scope))
	}
	p.expectSeparator(")")
	return args
}

// checkArity enforces spec §4.2's argument rule: the Call library has
// variable arity and is exempt; every other library enforces exact arity
// and per-parameter type equality, with Any-typed parameters exempt from
// the type check.
func (p *Parser) checkArity(pos token.Position, lib *sema.LibraryDeclaration, method *sema.MethodInterface, args []ast.Expression) {
	if lib.Name == "Call" {
		return
	}
	if len(args) != len(method.Parameters) {
		fail(pos, TypeErrorCat, "%s.%s expects %d argument(s), got %d", lib.Name, method.Name, len(method.Parameters), len(args))
	}
	for i, param := range method.Parameters {
		if param.Type.Kind == types.Any {
			continue
		}
		if !types.Equal(args[i].ResultType(), param.Type) {
			fail(pos, TypeErrorCat, "%s.%s argument %d: expected %s, got %s", lib.Name, method.Name, i+1, param.Type, args[i].ResultType())
		}
	}
}

// expandMacro unfolds a `$NAME` token into a concrete expression (spec
// §4.2 "Macros"). Every recognized macro reads host/block context that the
// Runtime library's methods already expose, so expansion just builds the
// equivalent MethodExpr rather than inventing a separate opcode path.
func (p *Parser) expandMacro(pos token.Position, name string, scope *sema.Scope) ast.Expression {
	runtimeLib, ok := scope.FindLibrary("Runtime")
	if !ok {
		fail(pos, ResolutionErrorCat, "unknown macro %q", name)
	}
	var methodName string
	switch name {
	case "THIS_ADDRESS":
		methodName = "caller"
	case "BLOCK_NUMBER":
		methodName = "blockNumber"
	case "BLOCK_TIME":
		methodName = "blockTime"
	default:
		fail(pos, ResolutionErrorCat, "unknown macro %q", name)
	}
	method, _ := runtimeLib.Lookup(methodName)
	return &ast.MethodExpr{Position: pos, Library: runtimeLib, Method: method}
}
