// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package codegen lowers a resolved Tomb AST to VM bytecode: a virtual-
// register pool with alloc/dealloc/alias discipline, post-order statement
// and expression lowering into vm.Instruction values, and the method-offset
// bookkeeping a contract's ABI table needs.
package codegen

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tombchain/tombc/lang/ast"
	"github.com/tombchain/tombc/lang/sema"
	"github.com/tombchain/tombc/lang/stdlib"
	"github.com/tombchain/tombc/lang/token"
	"github.com/tombchain/tombc/lang/types"
	"github.com/tombchain/tombc/lang/vm"
)

// ---------------------------------------------------------------------------
// Error taxonomy (the two categories code generation can itself raise;
// Lex/Syntax/Resolution/Type errors all belong to earlier pipeline stages).
// ---------------------------------------------------------------------------

type Category string

const (
	ShapeErrorCat    Category = "ShapeError"
	InternalErrorCat Category = "InternalError"
)

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
// Register pool (spec §4.4 "Virtual-register pool")
// ---------------------------------------------------------------------------

// Register is a handle to one live pool slot.
type Register struct {
	Index uint8
	Alias string
}

type slot struct {
	free  bool
	owner interface{}
	alias string
}

// RegisterPool is the fixed-size `slots[1..N]` array spec §4.4 describes;
// index 0 is reserved by the VM and never handed out.
type RegisterPool struct {
	slots [vm.DefaultRegisterCount]slot
}

// NewRegisterPool returns a pool with every slot but 0 free.
func NewRegisterPool() *RegisterPool {
	p := &RegisterPool{}
	for i := 1; i < len(p.slots); i++ {
		p.slots[i].free = true
	}
	return p
}

// Alloc scans 1..N for the first free slot and claims it. A non-empty alias
// is checked for uniqueness across every live slot first; a collision is a
// ShapeError (spec §8 "Allocating two distinct live slots with the same
// alias must raise ShapeError: alias already exists"), not an internal
// fault, since it is directly caused by user source (two locals aliasing
// the same name while both live).
func (p *RegisterPool) Alloc(pos token.Position, owner interface{}, alias string) *Register {
	if alias != "" {
		for i := 1; i < len(p.slots); i++ {
			if !p.slots[i].free && p.slots[i].alias == alias {
				fail(pos, ShapeErrorCat, "alias already exists: %q (register r%d)", alias, i)
			}
		}
	}
	for i := 1; i < len(p.slots); i++ {
		if p.slots[i].free {
			p.slots[i] = slot{owner: owner, alias: alias}
			return &Register{Index: uint8(i), Alias: alias}
		}
	}
	fail(pos, InternalErrorCat, "register pool exhausted (N=%d)", vm.DefaultRegisterCount-1)
	return nil
}

// Dealloc frees r's slot and nulls the caller's handle, preventing reuse of
// a stale Register value (spec §4.4 "nulls the caller's handle, preventing
// double-free"). Deallocating an already-free slot, or a nil handle, is an
// InternalError: it can only happen from a code generator bug, never from
// user source.
func (p *RegisterPool) Dealloc(pos token.Position, r **Register) {
	if r == nil || *r == nil {
		fail(pos, InternalErrorCat, "double free: nil register handle")
	}
	idx := (*r).Index
	if p.slots[idx].free {
		fail(pos, InternalErrorCat, "double free: register r%d", idx)
	}
	p.slots[idx] = slot{free: true}
	*r = nil
}

// AllocContiguous claims n consecutive free slots as one block, for the
// handful of native opcodes whose calling convention needs adjacent
// registers (OpFalcon512Verify/OpMLDSAVerify/OpSLHDSAVerify's implicit
// pubkey operand, documented in lang/vm/opcodes.go as "register d = next
// reg"). None of the returned registers carry an alias.
func (p *RegisterPool) AllocContiguous(pos token.Position, owner interface{}, n int) []*Register {
	for i := 1; i+n-1 < len(p.slots); i++ {
		ok := true
		for j := 0; j < n; j++ {
			if !p.slots[i+j].free {
				ok = false
				break
			}
		}
		if ok {
			regs := make([]*Register, n)
			for j := 0; j < n; j++ {
				p.slots[i+j] = slot{owner: owner}
				regs[j] = &Register{Index: uint8(i + j)}
			}
			return regs
		}
	}
	fail(pos, InternalErrorCat, "register pool exhausted allocating %d contiguous registers", n)
	return nil
}

// VerifyRegisters requires every slot be free; called once at the end of
// each method (spec §4.4 "After emitting every method, verify_registers()
// requires all slots free; a leak is a fatal compile error").
func (p *RegisterPool) VerifyRegisters(pos token.Position) {
	for i := 1; i < len(p.slots); i++ {
		if !p.slots[i].free {
			fail(pos, InternalErrorCat, "register r%d not deallocated", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// MethodOffset records one method's entry point in the combined bytecode,
// the raw material for a contract artifact's ABI table (spec §6 "abi:
// {methods: [{name, kind, return_type, parameters, offset}], ...}").
type MethodOffset struct {
	Name   string
	Offset int
}

// Output is everything a single module's code generation produces.
type Output struct {
	Bytecode      []byte
	Constants     []uint64
	SourceLineMap map[int]int
	Methods       []MethodOffset
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// binaryOpcodes maps a BinaryExpr's operator lexeme to the VM opcode that
// implements it (spec §4.4 "Binary: lower L, lower R, emit the VM
// instruction with dst = L.reg").
var binaryOpcodes = map[string]vm.Opcode{
	"+": vm.OpAdd, "-": vm.OpSub, "*": vm.OpMul, "/": vm.OpDiv, "%": vm.OpMod,
	"&": vm.OpAnd, "|": vm.OpOr, "^": vm.OpXor, "<<": vm.OpShl, ">>": vm.OpShr,
	"==": vm.OpEq, "<": vm.OpLt, "<=": vm.OpLte, ">": vm.OpGt, ">=": vm.OpGte,
}

// intrinsicID assigns a stable function-table index to every library method
// with no dedicated native opcode (every Map/List/Set method, Call's two
// methods, and Runtime.origin). The generic calling convention pushes
// arguments left to right and calls this index via OpCall (spec §4.4
// "push arguments left-to-right into consecutive registers matching the
// intrinsic's calling convention, then emit the library call opcode"); the
// VM resolves the index against its own host-intrinsic table rather than a
// compiled function, which is why these never appear in Output.Methods.
var intrinsicID = map[string]uint16{
	"Map.get": 1, "Map.set": 2, "Map.has": 3, "Map.remove": 4,
	"List.get": 5, "List.push": 6, "List.pop": 7, "List.len": 8,
	"Set.add": 9, "Set.has": 10, "Set.remove": 11, "Set.len": 12,
	"Runtime.origin": 13,
	"Call.invoke":    14, "Call.send": 15,
}

// generator holds the per-method lowering state. A fresh generator (and
// fresh register pool) is used for each method, per spec §4.4 "Each method
// is lowered independently".
type generator struct {
	pool        *RegisterPool
	asm         *vm.Assembler
	labelPrefix string
	labelSeq    int

	// vars maps a variable's declaration to its long-lived, alias-bound
	// register, allocated at first use (spec §4.4 "Var: if local, the
	// variable is mapped to a long-lived register allocated at first use
	// in its scope, aliased with the variable name; reads reuse that
	// register"). This map is per-method (a fresh one per generator), so a
	// `global` behaves, within one method body, exactly like a local: its
	// register is part of the same pool VerifyRegisters empties at the end
	// of the method. True cross-call persistence of global storage needs a
	// runtime-provided memory segment and base-pointer convention the VM
	// collaborator interface doesn't expose yet; see DESIGN.md.
	vars map[*sema.VarDecl]*Register

	// byteLen tracks the known compile-time length of a memory-backed
	// register (one produced by loadBytes), keyed by register index. It
	// lets Crypto.sha3/shake256 emit the native hashing opcode for a
	// variable reference without re-deriving its length; an entry is
	// copied whenever a register's value is reassigned to a variable.
	byteLen map[uint8]int
}

// newGenerator starts a fresh register pool (each method verifies its own)
// while sharing asm across every method of a contract, so OpCall/OpJump
// targets live in one contiguous instruction stream. labelPrefix keeps one
// method's "loop_1" from colliding with another's in that shared label
// namespace.
func newGenerator(asm *vm.Assembler, labelPrefix string) *generator {
	return &generator{
		pool:        NewRegisterPool(),
		asm:         asm,
		labelPrefix: labelPrefix,
		vars:        make(map[*sema.VarDecl]*Register),
		byteLen:     make(map[uint8]int),
	}
}

func (g *generator) allocLabel(prefix string) string {
	g.labelSeq++
	return fmt.Sprintf("%s_%s_%d", g.labelPrefix, prefix, g.labelSeq)
}

func (g *generator) emit(in vm.Instruction) { g.asm.Emit(in) }

func (g *generator) alloc(pos token.Position, owner interface{}, alias string) *Register {
	return g.pool.Alloc(pos, owner, alias)
}

func (g *generator) free(pos token.Position, r *Register) *Register {
	delete(g.byteLen, r.Index)
	g.pool.Dealloc(pos, &r)
	return r // always nil; lets callers write `reg = g.free(pos, reg)`
}

// ---------------------------------------------------------------------------
// Module entry points
// ---------------------------------------------------------------------------

// GenerateContract lowers every method of c independently and concatenates
// their bytecode, recording each method's starting offset for the ABI
// table.
func GenerateContract(c *ast.Contract) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			if cgErr, ok := r.(*Error); ok {
				err = cgErr
				return
			}
			panic(r)
		}
	}()

	asm := vm.NewAssembler()
	var methods []MethodOffset
	for _, m := range c.Methods {
		offset := asm.Len()
		methods = append(methods, MethodOffset{Name: m.Interface.Name, Offset: offset})

		g := newGenerator(asm, m.Interface.Name)
		g.bindParameters(m.Body.Scope.Parent, m.Interface.Parameters)
		g.lowerBlock(m.Body, m.Interface)
		g.pool.VerifyRegisters(token.Position{})
	}

	code, consts, lineMap, aerr := asm.Finish()
	if aerr != nil {
		return nil, aerr
	}
	return &Output{Bytecode: code, Constants: consts, SourceLineMap: lineMap, Methods: methods}, nil
}

// GenerateScript lowers a script or description's single code block.
func GenerateScript(s *ast.Script) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			if cgErr, ok := r.(*Error); ok {
				err = cgErr
				return
			}
			panic(r)
		}
	}()

	asm := vm.NewAssembler()
	g := newGenerator(asm, "code")
	iface := &sema.MethodInterface{Name: "code", Kind: sema.Method, ReturnType: s.ReturnType, Parameters: s.Parameters}
	g.bindParameters(s.Body.Scope.Parent, s.Parameters)
	g.lowerBlock(s.Body, iface)
	g.pool.VerifyRegisters(token.Position{})

	code, consts, lineMap, aerr := g.asm.Finish()
	if aerr != nil {
		return nil, aerr
	}
	return &Output{
		Bytecode: code, Constants: consts, SourceLineMap: lineMap,
		Methods: []MethodOffset{{Name: "code", Offset: 0}},
	}, nil
}

// Generate adapts GenerateContract/GenerateScript to parser.Generator's
// signature, used for description scripts' eager codegen (spec §4.5); only
// the raw bytecode is needed there; ABI offsets are derived independently by
// the compiler package when it builds a full Contract artifact.
func Generate(m ast.Module) ([]byte, error) {
	switch mod := m.(type) {
	case *ast.Contract:
		out, err := GenerateContract(mod)
		if err != nil {
			return nil, err
		}
		return out.Bytecode, nil
	case *ast.Script:
		out, err := GenerateScript(mod)
		if err != nil {
			return nil, err
		}
		return out.Bytecode, nil
	default:
		return nil, fmt.Errorf("codegen: unsupported module kind %T", m)
	}
}

// bindParameters pre-allocates a long-lived, name-aliased register for each
// parameter, mirroring the calling convention's guarantee that arguments
// already sit in registers on method entry.
func (g *generator) bindParameters(paramScope *sema.Scope, params []sema.Param) {
	if paramScope == nil {
		return
	}
	decls := paramScope.Variables()
	for i, p := range params {
		if i >= len(decls) {
			break
		}
		reg := g.alloc(token.Position{}, nil, p.Name)
		g.vars[decls[i]] = reg
	}
}

// ---------------------------------------------------------------------------
// Statement lowering
// ---------------------------------------------------------------------------

func (g *generator) lowerBlock(b *ast.StatementBlock, m *sema.MethodInterface) {
	for _, st := range b.Statements {
		g.lowerStmt(st, m)
	}
}

func (g *generator) lowerStmt(s ast.Statement, m *sema.MethodInterface) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		g.lowerAssign(st)
	case *ast.IfStmt:
		g.lowerIf(st, m)
	case *ast.WhileStmt:
		g.lowerWhile(st, m)
	case *ast.DoWhileStmt:
		g.lowerDoWhile(st, m)
	case *ast.ReturnStmt:
		g.lowerReturn(st)
	case *ast.ThrowStmt:
		g.lowerThrow(st)
	case *ast.EmitStmt:
		g.lowerEmit(st)
	case *ast.AsmBlockStmt:
		g.lowerAsmBlock(st)
	case *ast.MethodCallStmt:
		reg := g.lowerMethodExpr(st.Call)
		if reg != nil {
			reg = g.free(st.Position, reg)
		}
	default:
		fail(s.Pos(), InternalErrorCat, "unsupported statement type %T", s)
	}
}

func (g *generator) lowerAssign(s *ast.AssignStmt) {
	line := s.Position.Line
	val := g.lowerExpr(s.Expr)

	reg, ok := g.vars[s.Target]
	if !ok {
		reg = g.alloc(s.Position, s.Target, s.Target.Name)
		g.vars[s.Target] = reg
	}
	if n, tracked := g.byteLen[val.Index]; tracked {
		g.byteLen[reg.Index] = n
	}
	// val.Index can equal reg.Index when the RHS is a bare reference to the
	// same variable (e.g. `x := x;`), since lowerVar hands back the
	// variable's own long-lived register rather than a fresh temporary; in
	// that case there is nothing to copy and the register must not be
	// freed out from under the variable it's bound to.
	if reg.Index != val.Index {
		g.emit(vm.Instruction{Op: vm.OpCopy, A: reg.Index, B: val.Index, Line: line})
		val = g.free(s.Position, val)
	}
}

func (g *generator) lowerIf(s *ast.IfStmt, m *sema.MethodInterface) {
	line := s.Position.Line
	cond := g.lowerExpr(s.Cond)
	elseLabel := g.allocLabel("else")
	endLabel := g.allocLabel("endif")

	g.emit(vm.Instruction{Op: vm.OpJumpIfNot, A: cond.Index, Label: elseLabel, Line: line})
	cond = g.free(s.Position, cond)

	g.lowerBlock(s.Body, m)
	if s.Else != nil {
		g.emit(vm.Instruction{Op: vm.OpJump, Label: endLabel, Line: line})
		g.asm.Label(elseLabel)
		g.lowerBlock(s.Else, m)
		g.asm.Label(endLabel)
	} else {
		g.asm.Label(elseLabel)
	}
}

func (g *generator) lowerWhile(s *ast.WhileStmt, m *sema.MethodInterface) {
	line := s.Position.Line
	loopLabel := g.allocLabel("loop")
	endLabel := g.allocLabel("endloop")

	g.asm.Label(loopLabel)
	cond := g.lowerExpr(s.Cond)
	g.emit(vm.Instruction{Op: vm.OpJumpIfNot, A: cond.Index, Label: endLabel, Line: line})
	cond = g.free(s.Position, cond)

	g.lowerBlock(s.Body, m)
	g.emit(vm.Instruction{Op: vm.OpJump, Label: loopLabel, Line: line})
	g.asm.Label(endLabel)
}

func (g *generator) lowerDoWhile(s *ast.DoWhileStmt, m *sema.MethodInterface) {
	line := s.Position.Line
	loopLabel := g.allocLabel("doloop")

	g.asm.Label(loopLabel)
	g.lowerBlock(s.Body, m)
	cond := g.lowerExpr(s.Cond)
	g.emit(vm.Instruction{Op: vm.OpJumpIf, A: cond.Index, Label: loopLabel, Line: line})
	cond = g.free(s.Position, cond)
}

func (g *generator) lowerReturn(s *ast.ReturnStmt) {
	line := s.Position.Line
	if s.Expr == nil {
		g.emit(vm.Instruction{Op: vm.OpReturn, A: 0, Line: line})
		return
	}
	reg := g.lowerExpr(s.Expr)
	g.emit(vm.Instruction{Op: vm.OpReturn, A: reg.Index, Line: line})
	reg = g.free(s.Position, reg)
}

// lowerThrow reuses OpHalt as the abort mechanism: the opcode set has no
// dedicated THROW instruction, and a halt carrying the message's memory
// address in R[a] is indistinguishable, from the generator's point of view,
// from any other abnormal-exit signal the VM defines.
func (g *generator) lowerThrow(s *ast.ThrowStmt) {
	line := s.Position.Line
	reg := g.loadBytes(s.Position, []byte(s.Message), nil)
	g.emit(vm.Instruction{Op: vm.OpHalt, A: reg.Index, Line: line})
	reg = g.free(s.Position, reg)
}

// lowerEmit implements spec §4.4 "Emit: lowers to two argument pushes and
// the EMIT opcode with the event's numeric value": address and payload are
// pushed, then the event's numeric tag is pushed as a third value so EMIT's
// single operand slot only has to carry the stack-based calling convention
// marker (register 0), not three independent operand fields.
func (g *generator) lowerEmit(s *ast.EmitStmt) {
	line := s.Position.Line

	addr := g.lowerExpr(s.Addr)
	g.emit(vm.Instruction{Op: vm.OpPush, A: addr.Index, Line: line})
	addr = g.free(s.Position, addr)

	val := g.lowerExpr(s.Value)
	g.emit(vm.Instruction{Op: vm.OpPush, A: val.Index, Line: line})
	val = g.free(s.Position, val)

	tag := g.alloc(s.Position, s, "")
	g.emit(vm.Instruction{Op: vm.OpLoadConst, A: tag.Index, Imm16: g.asm.Const(uint64(s.Event.NumericValue)), Line: line})
	g.emit(vm.Instruction{Op: vm.OpPush, A: tag.Index, Line: line})
	tag = g.free(s.Position, tag)

	g.emit(vm.Instruction{Op: vm.OpEmit, A: 0, Line: line})
}

func (g *generator) lowerAsmBlock(s *ast.AsmBlockStmt) {
	for _, line := range s.Lines {
		if err := g.asm.EmitRaw(line); err != nil {
			fail(s.Position, ShapeErrorCat, "%s", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Expression lowering
// ---------------------------------------------------------------------------

func (g *generator) lowerExpr(e ast.Expression) *Register {
	switch ex := e.(type) {
	case *ast.Literal:
		return g.lowerLiteral(ex)
	case *ast.VarExpr:
		return g.lowerVar(ex)
	case *ast.ConstExpr:
		return g.lowerConst(ex)
	case *ast.BinaryExpr:
		return g.lowerBinary(ex)
	case *ast.NegationExpr:
		return g.lowerNegation(ex)
	case *ast.CastExpr:
		return g.lowerCast(ex)
	case *ast.MethodExpr:
		reg := g.lowerMethodExpr(ex)
		if reg == nil {
			fail(e.Pos(), InternalErrorCat, "method %s.%s used as a value returns nothing", ex.Library.Name, ex.Method.Name)
		}
		return reg
	case *ast.MacroExpr:
		return g.lowerExpr(ex.Expanded)
	default:
		fail(e.Pos(), InternalErrorCat, "unsupported expression type %T", e)
		return nil
	}
}

func (g *generator) lowerLiteral(e *ast.Literal) *Register {
	switch e.Type.Kind {
	case types.Number:
		reg := g.alloc(e.Position, e, "")
		// The constant pool word is 64 bits; folding happens in the full
		// 256-bit domain above, and only the low word survives into the
		// register machine (lang/vm's registers are 64 bits wide).
		g.emit(vm.Instruction{Op: vm.OpLoadConst, A: reg.Index, Imm16: g.asm.Const(e.Value.(*uint256.Int).Uint64()), Line: e.Position.Line})
		return reg
	case types.Bool:
		reg := g.alloc(e.Position, e, "")
		op := vm.OpLoadFalse
		if e.Value.(bool) {
			op = vm.OpLoadTrue
		}
		g.emit(vm.Instruction{Op: op, A: reg.Index, Line: e.Position.Line})
		return reg
	case types.String, types.Address:
		return g.loadBytes(e.Position, []byte(e.Value.(string)), e)
	case types.Bytes, types.Hash:
		return g.loadBytes(e.Position, e.Value.([]byte), e)
	default:
		fail(e.Position, InternalErrorCat, "literal of type %s has no lowering", e.Type)
		return nil
	}
}

// loadBytes materializes data verbatim in VM memory and returns a register
// holding its base address, recording the length for later native-opcode
// calls (Crypto.sha3/shake256) that need it. The per-store byte offset is an
// unsigned byte (spec's OpStoreMem "c field carries the byte offset
// (0-255)"), so data longer than 256 bytes cannot be represented this way;
// that bound comfortably covers addresses, hashes, and event messages, the
// only byte-valued literals the grammar admits.
func (g *generator) loadBytes(pos token.Position, data []byte, owner ast.Node) *Register {
	if len(data) > 256 {
		fail(pos, InternalErrorCat, "literal of %d bytes exceeds the 256-byte memory-store addressing limit", len(data))
	}
	size := g.alloc(pos, owner, "")
	g.emit(vm.Instruction{Op: vm.OpLoadConst, A: size.Index, Imm16: g.asm.Const(uint64(len(data))), Line: pos.Line})
	base := g.alloc(pos, owner, "")
	g.emit(vm.Instruction{Op: vm.OpAlloc, A: base.Index, B: size.Index, Line: pos.Line})
	size = g.free(pos, size)

	for off := 0; off < len(data); off += 8 {
		end := off + 8
		if end > len(data) {
			end = len(data)
		}
		var word [8]byte
		copy(word[:], data[off:end])
		chunkVal := uint64(word[0]) | uint64(word[1])<<8 | uint64(word[2])<<16 | uint64(word[3])<<24 |
			uint64(word[4])<<32 | uint64(word[5])<<40 | uint64(word[6])<<48 | uint64(word[7])<<56
		chunk := g.alloc(pos, owner, "")
		g.emit(vm.Instruction{Op: vm.OpLoadConst, A: chunk.Index, Imm16: g.asm.Const(chunkVal), Line: pos.Line})
		g.emit(vm.Instruction{Op: vm.OpStoreMem, A: base.Index, B: chunk.Index, C: uint8(off), Line: pos.Line})
		chunk = g.free(pos, chunk)
	}
	g.byteLen[base.Index] = len(data)
	return base
}

func (g *generator) lowerVar(e *ast.VarExpr) *Register {
	if reg, ok := g.vars[e.Decl]; ok {
		return reg
	}
	reg := g.alloc(e.Position, e, e.Name)
	g.vars[e.Decl] = reg
	return reg
}

// lowerConst materializes a constant the same way a literal of its type
// would be; constants are not re-interned across uses within a method
// beyond what the assembler's constant pool already dedups.
func (g *generator) lowerConst(e *ast.ConstExpr) *Register {
	lit := &ast.Literal{Position: e.Position, Type: e.Decl.Type, Value: e.Decl.Literal}
	return g.lowerLiteral(lit)
}

func (g *generator) lowerBinary(e *ast.BinaryExpr) *Register {
	// Fold arithmetic and bitwise operators over two number literals at compile time
	// (spec Non-goals: "optimization passes... trivial constant literals").
	if ll, ok := e.L.(*ast.Literal); ok {
		if rl, ok := e.R.(*ast.Literal); ok && ll.Type.Kind == types.Number && rl.Type.Kind == types.Number {
			if folded, ok := foldNumberBinary(e.Op, ll.Value.(*uint256.Int), rl.Value.(*uint256.Int)); ok {
				return g.lowerLiteral(&ast.Literal{Position: e.Position, Type: e.Type, Value: folded})
			}
		}
	}

	l := g.lowerExpr(e.L)
	r := g.lowerExpr(e.R)
	op, ok := binaryOpcodes[e.Op]
	if !ok {
		fail(e.Position, InternalErrorCat, "no opcode for binary operator %q", e.Op)
	}
	g.emit(vm.Instruction{Op: op, A: l.Index, B: l.Index, C: r.Index, Line: e.Position.Line})
	r = g.free(e.Position, r)
	return l
}

// foldNumberBinary evaluates op over two 256-bit operands when op produces a
// Number result; comparison operators are left for the VM since their
// result type is Bool and ast.Literal's Value encoding differs by Kind.
// Folding in the full uint256 domain (rather than the 64-bit register word
// the value eventually lowers to) matches source-level arithmetic exactly,
// so a literal expression folds to the same value a non-folded one would
// produce if the VM's register domain were ever widened.
func foldNumberBinary(op string, l, r *uint256.Int) (interface{}, bool) {
	z := new(uint256.Int)
	switch op {
	case "+":
		return z.Add(l, r), true
	case "-":
		return z.Sub(l, r), true
	case "*":
		return z.Mul(l, r), true
	case "/":
		if r.IsZero() {
			return nil, false
		}
		return z.Div(l, r), true
	case "%":
		if r.IsZero() {
			return nil, false
		}
		return z.Mod(l, r), true
	case "&":
		return z.And(l, r), true
	case "|":
		return z.Or(l, r), true
	case "^":
		return z.Xor(l, r), true
	case "<<":
		return z.Lsh(l, uint(r.Uint64())), true
	case ">>":
		return z.Rsh(l, uint(r.Uint64())), true
	default:
		return nil, false
	}
}

// lowerNegation special-cases the parser's `!=` → Negation(Equal(L,R))
// lowering back into the VM's native NEQ opcode instead of emitting EQ
// followed by a bitwise NOT: the AST shape exists to make `!=`'s type rule
// reuse `==`'s, not to force two VM instructions where the VM already has
// one.
func (g *generator) lowerNegation(e *ast.NegationExpr) *Register {
	if bin, ok := e.Inner.(*ast.BinaryExpr); ok && bin.Op == "==" {
		l := g.lowerExpr(bin.L)
		r := g.lowerExpr(bin.R)
		g.emit(vm.Instruction{Op: vm.OpNeq, A: l.Index, B: l.Index, C: r.Index, Line: e.Position.Line})
		r = g.free(e.Position, r)
		return l
	}
	reg := g.lowerExpr(e.Inner)
	g.emit(vm.Instruction{Op: vm.OpNot, A: reg.Index, B: reg.Index, Line: e.Position.Line})
	return reg
}

// lowerCast lowers String<->primitive conversion; the VM treats a String
// register as a memory base address regardless of the logical source type,
// so a cast to String only has runtime meaning for non-String operands,
// which here is limited to the `String + number` coercion the parser
// inserts: the compiler renders the cast operand's own literal form.
func (g *generator) lowerCast(e *ast.CastExpr) *Register {
	if lit, ok := e.Inner.(*ast.Literal); ok {
		val := lit.Value
		if e.To.Kind == types.String {
			switch v := val.(type) {
			case *uint256.Int:
				if v.Sign() < 0 {
					val = "-" + new(uint256.Int).Neg(v).ToBig().String()
				} else {
					val = v.ToBig().String()
				}
			case bool:
				val = fmt.Sprint(v)
			case []byte:
				val = fmt.Sprintf("%x", v)
			}
		}
		return g.lowerLiteral(&ast.Literal{Position: e.Position, Type: e.To, Value: val})
	}
	// A cast of a non-literal operand has no defined bit-level
	// transformation in this register model; fall through to the
	// uncast value, matching the VM's "everything is a 64-bit word"
	// treatment of registers.
	return g.lowerExpr(e.Inner)
}

func (g *generator) lowerMethodExpr(e *ast.MethodExpr) *Register {
	key := e.Library.Name + "." + e.Method.Name
	switch key {
	case "Runtime.caller":
		return g.emitNoArgOpcode(e, vm.OpCaller)
	case "Runtime.blockNumber":
		return g.emitNoArgOpcode(e, vm.OpBlockNum)
	case "Runtime.blockTime":
		return g.emitNoArgOpcode(e, vm.OpBlockTime)
	case "Runtime.balance":
		return g.emitUnaryOpcode(e, vm.OpBalance)
	case "Runtime.transfer":
		return g.lowerTransfer(e)
	case "Crypto.sha3":
		return g.lowerHash(e, vm.OpSHA3, 32)
	case "Crypto.shake256":
		return g.lowerShake(e)
	case "Crypto.falcon512Verify":
		return g.lowerPQCVerify(e, vm.OpFalcon512Verify)
	case "Crypto.mldsaVerify":
		return g.lowerPQCVerify(e, vm.OpMLDSAVerify)
	case "Crypto.slhdsaVerify":
		return g.lowerPQCVerify(e, vm.OpSLHDSAVerify)
	case "Crypto.secp256k1Recover":
		return g.lowerSecp256k1Recover(e)
	default:
		return g.lowerIntrinsicCall(e, key)
	}
}

func (g *generator) emitNoArgOpcode(e *ast.MethodExpr, op vm.Opcode) *Register {
	reg := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: op, A: reg.Index, Line: e.Position.Line})
	return reg
}

func (g *generator) emitUnaryOpcode(e *ast.MethodExpr, op vm.Opcode) *Register {
	arg := g.lowerExpr(e.Args[0])
	dst := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: op, A: dst.Index, B: arg.Index, Line: e.Position.Line})
	arg = g.free(e.Position, arg)
	return dst
}

func (g *generator) lowerTransfer(e *ast.MethodExpr) *Register {
	from := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: vm.OpCaller, A: from.Index, Line: e.Position.Line})
	to := g.lowerExpr(e.Args[0])
	amount := g.lowerExpr(e.Args[1])
	g.emit(vm.Instruction{Op: vm.OpTransfer, A: from.Index, B: to.Index, C: amount.Index, Line: e.Position.Line})
	from = g.free(e.Position, from)
	to = g.free(e.Position, to)
	amount = g.free(e.Position, amount)
	return nil
}

// lowerHash folds Crypto.sha3 over a literal argument at compile time using
// stdlib.SHA3, mirroring the same class of constant folding lowerBinary
// performs for arithmetic. A non-literal argument falls back to the native
// opcode, using the tracked byte length from loadBytes/lowerAssign's
// bookkeeping.
func (g *generator) lowerHash(e *ast.MethodExpr, op vm.Opcode, outLen int) *Register {
	if lit, ok := e.Args[0].(*ast.Literal); ok {
		data := literalBytes(lit)
		digest := stdlib.SHA3(data)
		return g.loadBytes(e.Position, digest[:], e)
	}
	return g.emitHashOpcode(e, op, outLen)
}

func (g *generator) lowerShake(e *ast.MethodExpr) *Register {
	if lit, ok := e.Args[0].(*ast.Literal); ok {
		lenLit, ok := e.Args[1].(*ast.Literal)
		if ok {
			data := literalBytes(lit)
			digest := stdlib.SHAKE256(data, int(lenLit.Value.(*uint256.Int).Uint64()))
			return g.loadBytes(e.Position, digest, e)
		}
	}
	return g.emitHashOpcode(e, vm.OpSHAKE256, 0)
}

func literalBytes(lit *ast.Literal) []byte {
	switch v := lit.Value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

func (g *generator) emitHashOpcode(e *ast.MethodExpr, op vm.Opcode, outLen int) *Register {
	data := g.lowerExpr(e.Args[0])
	n, ok := g.byteLen[data.Index]
	if !ok {
		fail(e.Position, InternalErrorCat, "cannot determine byte length of %s.%s argument at compile time", e.Library.Name, e.Method.Name)
	}
	if outLen == 0 {
		if len(e.Args) > 1 {
			if lenLit, ok := e.Args[1].(*ast.Literal); ok {
				outLen = int(lenLit.Value.(*uint256.Int).Uint64())
			}
		}
	}
	lenReg := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: vm.OpLoadConst, A: lenReg.Index, Imm16: g.asm.Const(uint64(n)), Line: e.Position.Line})

	sizeReg := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: vm.OpLoadConst, A: sizeReg.Index, Imm16: g.asm.Const(uint64(outLen)), Line: e.Position.Line})
	dst := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: vm.OpAlloc, A: dst.Index, B: sizeReg.Index, Line: e.Position.Line})
	sizeReg = g.free(e.Position, sizeReg)

	g.emit(vm.Instruction{Op: op, A: dst.Index, B: data.Index, C: lenReg.Index, Line: e.Position.Line})
	lenReg = g.free(e.Position, lenReg)
	data = g.free(e.Position, data)
	g.byteLen[dst.Index] = outLen
	return dst
}

// lowerPQCVerify lowers Crypto.falcon512Verify/mldsaVerify/slhdsaVerify. All
// three have no compile-time fallback (signature verification is the host's
// job); the sig and pubkey pointers are copied into a contiguous register
// pair first since the opcode's pubkey operand is implicit: "register d =
// next reg for pubkey" (lang/vm/opcodes.go), not a fourth operand field.
func (g *generator) lowerPQCVerify(e *ast.MethodExpr, op vm.Opcode) *Register {
	msg := g.lowerExpr(e.Args[0])
	sig := g.lowerExpr(e.Args[1])
	pub := g.lowerExpr(e.Args[2])

	block := g.pool.AllocContiguous(e.Position, e, 2)
	g.emit(vm.Instruction{Op: vm.OpCopy, A: block[0].Index, B: sig.Index, Line: e.Position.Line})
	g.emit(vm.Instruction{Op: vm.OpCopy, A: block[1].Index, B: pub.Index, Line: e.Position.Line})
	sig = g.free(e.Position, sig)
	pub = g.free(e.Position, pub)

	dst := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: op, A: dst.Index, B: msg.Index, C: block[0].Index, Line: e.Position.Line})
	msg = g.free(e.Position, msg)
	g.pool.Dealloc(e.Position, &block[0])
	g.pool.Dealloc(e.Position, &block[1])
	return dst
}

func (g *generator) lowerSecp256k1Recover(e *ast.MethodExpr) *Register {
	hash := g.lowerExpr(e.Args[0])
	sig := g.lowerExpr(e.Args[1])
	dst := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: vm.OpSecp256k1Recover, A: dst.Index, B: hash.Index, C: sig.Index, Line: e.Position.Line})
	hash = g.free(e.Position, hash)
	sig = g.free(e.Position, sig)
	return dst
}

// lowerIntrinsicCall implements the generic library calling convention
// (spec §4.4: push arguments left-to-right, then the library call opcode)
// for every method with no dedicated native opcode.
func (g *generator) lowerIntrinsicCall(e *ast.MethodExpr, key string) *Register {
	id, ok := intrinsicID[key]
	if !ok {
		fail(e.Position, InternalErrorCat, "no intrinsic id registered for %s", key)
	}

	if e.VariableName != "" {
		nameReg := g.loadBytes(e.Position, []byte(e.VariableName), e)
		g.emit(vm.Instruction{Op: vm.OpPush, A: nameReg.Index, Line: e.Position.Line})
		nameReg = g.free(e.Position, nameReg)
	}
	for _, arg := range e.Args {
		a := g.lowerExpr(arg)
		g.emit(vm.Instruction{Op: vm.OpPush, A: a.Index, Line: e.Position.Line})
		a = g.free(e.Position, a)
	}

	if e.Method.ReturnType == nil || e.Method.ReturnType.Kind == types.None {
		g.emit(vm.Instruction{Op: vm.OpCall, A: 0, Imm16: id, Line: e.Position.Line})
		return nil
	}
	dst := g.alloc(e.Position, e, "")
	g.emit(vm.Instruction{Op: vm.OpCall, A: dst.Index, Imm16: id, Line: e.Position.Line})
	return dst
}
