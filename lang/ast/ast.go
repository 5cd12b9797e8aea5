// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package ast defines the Tomb language's abstract syntax tree: modules,
// statements, and expressions, each a tagged variant per spec §3/§4.3.
package ast

import (
	"github.com/tombchain/tombc/lang/sema"
	"github.com/tombchain/tombc/lang/token"
	"github.com/tombchain/tombc/lang/types"
)

// Node is the common interface of every AST entity: it always knows the
// source position it was parsed from (spec §4.2 "Emits AST nodes
// annotated with source line").
type Node interface {
	Pos() token.Position
}

// ---------------------------------------------------------------------------
// Expressions (spec §3 Expression)
// ---------------------------------------------------------------------------

// Expression is a tagged-variant value-producing node. ResultType is always
// known without further inference: types flow bottom-up from literals,
// declarations, and method return types (spec §4.3).
type Expression interface {
	Node
	ResultType() *types.VarType
	expressionNode()
}

// Literal is a constant value fixed at parse time.
type Literal struct {
	Position token.Position
	Type     *types.VarType
	Value    interface{} // *uint256.Int, string, bool, or []byte depending on Type.Kind
}

func (e *Literal) Pos() token.Position        { return e.Position }
func (e *Literal) ResultType() *types.VarType { return e.Type }
func (*Literal) expressionNode()              {}

// VarExpr references a previously declared variable.
type VarExpr struct {
	Position token.Position
	Name     string
	Decl     *sema.VarDecl
}

func (e *VarExpr) Pos() token.Position        { return e.Position }
func (e *VarExpr) ResultType() *types.VarType { return e.Decl.Type }
func (*VarExpr) expressionNode()              {}

// ConstExpr references a previously declared constant.
type ConstExpr struct {
	Position token.Position
	Name     string
	Decl     *sema.ConstDeclaration
}

func (e *ConstExpr) Pos() token.Position        { return e.Position }
func (e *ConstExpr) ResultType() *types.VarType { return e.Decl.Type }
func (*ConstExpr) expressionNode()              {}

// BinaryExpr is a two-operand operator application (spec §3
// "Binary(op, L, R)"). Per spec §4.2 the expression grammar is
// right-recursive with no precedence table: every BinaryExpr's R may
// itself be a BinaryExpr, and that is the only source of nesting.
type BinaryExpr struct {
	Position token.Position
	Op       string
	L, R     Expression
	Type     *types.VarType
}

func (e *BinaryExpr) Pos() token.Position        { return e.Position }
func (e *BinaryExpr) ResultType() *types.VarType { return e.Type }
func (*BinaryExpr) expressionNode()              {}

// NegationExpr is logical/bitwise negation of Inner (spec §3 "Negation
// (inner)"). `!=` is lowered to NegationExpr{Inner: BinaryExpr{Op:"=="}}
// per spec §9's Open Question decision (see DESIGN.md).
type NegationExpr struct {
	Position token.Position
	Inner    Expression
	Type     *types.VarType
}

func (e *NegationExpr) Pos() token.Position        { return e.Position }
func (e *NegationExpr) ResultType() *types.VarType { return e.Type }
func (*NegationExpr) expressionNode()              {}

// CastExpr converts Inner to type To; legal only between String and any
// primitive (spec §4.3).
type CastExpr struct {
	Position token.Position
	To       *types.VarType
	Inner    Expression
}

func (e *CastExpr) Pos() token.Position        { return e.Position }
func (e *CastExpr) ResultType() *types.VarType { return e.To }
func (*CastExpr) expressionNode()              {}

// MethodExpr is a resolved call against a (possibly patched) library
// method (spec §3 "Method(callee, args...)"; §4.2 generic-library
// patching and implicit-first-argument lowering).
type MethodExpr struct {
	Position token.Position
	Library  *sema.LibraryDeclaration
	Method   *sema.MethodInterface
	Args     []Expression

	// VariableName is set only when this call is against a storage-
	// collection variable (spec §4.2 "Implicit first argument for
	// collection methods"): the generator prepends a string Literal of
	// this name ahead of Args when lowering the call, matching the VM's
	// calling convention without the parser needing to fabricate a fake
	// Literal node for type-checking purposes.
	VariableName string
}

func (e *MethodExpr) Pos() token.Position { return e.Position }
func (e *MethodExpr) ResultType() *types.VarType {
	if e.Method == nil {
		return nil
	}
	return e.Method.ReturnType
}
func (*MethodExpr) expressionNode() {}

// MacroExpr is the fully-expanded form of a `$NAME` token (spec §4.2
// "Macros. ExpectExpression unfolds macros into concrete expressions
// before returning"). The AST retains the macro's name for diagnostics and
// disassembly even though Expanded is what the generator actually lowers.
type MacroExpr struct {
	Position token.Position
	Name     string
	Expanded Expression
}

func (e *MacroExpr) Pos() token.Position        { return e.Position }
func (e *MacroExpr) ResultType() *types.VarType { return e.Expanded.ResultType() }
func (*MacroExpr) expressionNode()              {}

// ---------------------------------------------------------------------------
// Statements (spec §3 Statement)
// ---------------------------------------------------------------------------

// Statement is a tagged-variant effectful node, each scoped to a Scope
// (spec §3 "each scoped to a Scope").
type Statement interface {
	Node
	ScopeOf() *sema.Scope
	statementNode()
}

// AssignStmt assigns Expr's value to Target (spec §3 "Assign(var, expr)").
// Compound assignment operators are expanded to this shape during parsing
// (spec §4.2).
type AssignStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Target   *sema.VarDecl
	Expr     Expression
}

func (s *AssignStmt) Pos() token.Position      { return s.Position }
func (s *AssignStmt) ScopeOf() *sema.Scope      { return s.Scope }
func (*AssignStmt) statementNode()              {}

// IfStmt is a conditional with an optional else body (spec §3
// "If(cond, body, else?)").
type IfStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Cond     Expression
	Body     *StatementBlock
	Else     *StatementBlock // nil when absent
}

func (s *IfStmt) Pos() token.Position { return s.Position }
func (s *IfStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*IfStmt) statementNode()         {}

// WhileStmt is a pre-tested loop (spec §3 "While(cond, body)").
type WhileStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Cond     Expression
	Body     *StatementBlock
}

func (s *WhileStmt) Pos() token.Position { return s.Position }
func (s *WhileStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*WhileStmt) statementNode()         {}

// DoWhileStmt is a post-tested loop (spec §3 "DoWhile(body, cond)").
type DoWhileStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Body     *StatementBlock
	Cond     Expression
}

func (s *DoWhileStmt) Pos() token.Position { return s.Position }
func (s *DoWhileStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*DoWhileStmt) statementNode()         {}

// ReturnStmt carries a back-reference to the enclosing MethodInterface so
// the generator and resolver can check the expression's type against the
// method's declared return type (spec §4.3 "ReturnStatement carries a
// back-reference to the enclosing MethodInterface").
type ReturnStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Method   *sema.MethodInterface
	Expr     Expression // nil iff Method.ReturnType.Kind == types.None
}

func (s *ReturnStmt) Pos() token.Position { return s.Position }
func (s *ReturnStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*ReturnStmt) statementNode()         {}

// ThrowStmt aborts execution with a message (spec §3 "Throw(msg)").
type ThrowStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Message  string
}

func (s *ThrowStmt) Pos() token.Position { return s.Position }
func (s *ThrowStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*ThrowStmt) statementNode()         {}

// EmitStmt raises a declared event (spec §3 "Emit(event, addr, value)").
type EmitStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Event    *sema.EventDeclaration
	Addr     Expression
	Value    Expression
}

func (s *EmitStmt) Pos() token.Position { return s.Position }
func (s *EmitStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*EmitStmt) statementNode()         {}

// AsmBlockStmt splices raw VM assembly lines verbatim into the generator
// output (spec §3 "AsmBlock(lines)"; §4.4 "lines are appended verbatim to
// the generator output, trimmed of leading whitespace").
type AsmBlockStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Lines    []string
}

func (s *AsmBlockStmt) Pos() token.Position { return s.Position }
func (s *AsmBlockStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*AsmBlockStmt) statementNode()         {}

// MethodCallStmt is a method call used for its side effect, with its
// result (if any) discarded (spec §3 "MethodCall(expr)").
type MethodCallStmt struct {
	Position token.Position
	Scope    *sema.Scope
	Call     *MethodExpr
}

func (s *MethodCallStmt) Pos() token.Position { return s.Position }
func (s *MethodCallStmt) ScopeOf() *sema.Scope { return s.Scope }
func (*MethodCallStmt) statementNode()         {}

// StatementBlock owns its child Scope; variables declared within die at
// the closing brace (spec §4.3 "StatementBlock owns its child Scope").
type StatementBlock struct {
	Scope      *sema.Scope
	Statements []Statement
}

// ---------------------------------------------------------------------------
// Modules (spec §3 Module)
// ---------------------------------------------------------------------------

// Kind distinguishes the three module shapes an artifact can be compiled
// from (spec §6 "kind: Contract | Script | Description").
type Kind int

const (
	ContractKind Kind = iota
	ScriptKind
	DescriptionKind
)

func (k Kind) String() string {
	switch k {
	case ContractKind:
		return "Contract"
	case ScriptKind:
		return "Script"
	case DescriptionKind:
		return "Description"
	default:
		return "Unknown"
	}
}

// Module is the common interface of Contract and Script (spec §3 "Module.
// One of: Contract | Script").
type Module interface {
	ModuleName() string
	ModuleKind() Kind
}

// Method is a single callable member of a Contract, pairing its resolved
// signature with its lowered body.
type Method struct {
	Interface *sema.MethodInterface
	Body      *StatementBlock
}

// Contract is a persistent on-chain module (spec §3 Module.Contract;
// Glossary "Contract").
type Contract struct {
	Name    string
	Scope   *sema.Scope
	Structs []*types.StructDeclaration
	Consts  []*sema.ConstDeclaration
	Globals []*sema.VarDecl
	Events  []*sema.EventDeclaration
	Methods []*Method
}

func (c *Contract) ModuleName() string { return c.Name }
func (c *Contract) ModuleKind() Kind   { return ContractKind }

// Script is a transient module: a script proper, or (when Hidden) an event
// description script whose compiled bytecode is embedded as the payload's
// human-readable rendering (spec §3 Module.Script; Glossary "Script",
// "Description").
type Script struct {
	Name          string
	Hidden        bool
	Scope         *sema.Scope
	Parameters    []sema.Param
	Body          *StatementBlock
	ReturnType    *types.VarType
	CompiledBytes []byte
}

func (s *Script) ModuleName() string { return s.Name }
func (s *Script) ModuleKind() Kind {
	if s.Hidden {
		return DescriptionKind
	}
	return ScriptKind
}
