// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package codegen

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/tombchain/tombc/lang/ast"
	"github.com/tombchain/tombc/lang/sema"
	"github.com/tombchain/tombc/lang/token"
	"github.com/tombchain/tombc/lang/types"
	"github.com/tombchain/tombc/lang/vm"
)

// ---------------------------------------------------------------------------
// Register pool
// ---------------------------------------------------------------------------

func TestRegisterPoolAllocFirstFit(t *testing.T) {
	p := NewRegisterPool()
	r1 := p.Alloc(token.Position{}, nil, "")
	r2 := p.Alloc(token.Position{}, nil, "")
	if r1.Index != 1 || r2.Index != 2 {
		t.Fatalf("expected registers 1, 2; got %d, %d", r1.Index, r2.Index)
	}
	p.Dealloc(token.Position{}, &r1)
	if r1 != nil {
		t.Fatal("Dealloc should null the caller's handle")
	}
	r3 := p.Alloc(token.Position{}, nil, "")
	if r3.Index != 1 {
		t.Fatalf("expected freed slot 1 to be reused, got %d", r3.Index)
	}
}

func TestRegisterPoolAliasCollisionIsShapeError(t *testing.T) {
	p := NewRegisterPool()
	p.Alloc(token.Position{}, nil, "total")
	defer func() {
		r := recover()
		cgErr, ok := r.(*Error)
		if !ok {
			t.Fatalf("expected *Error panic, got %v", r)
		}
		if cgErr.Category != ShapeErrorCat {
			t.Errorf("expected ShapeErrorCat, got %s", cgErr.Category)
		}
	}()
	p.Alloc(token.Position{}, nil, "total")
}

func TestRegisterPoolDoubleFreeIsInternalError(t *testing.T) {
	p := NewRegisterPool()
	r := p.Alloc(token.Position{}, nil, "")
	p.Dealloc(token.Position{}, &r)
	defer func() {
		rec := recover()
		cgErr, ok := rec.(*Error)
		if !ok {
			t.Fatalf("expected *Error panic, got %v", rec)
		}
		if cgErr.Category != InternalErrorCat {
			t.Errorf("expected InternalErrorCat, got %s", cgErr.Category)
		}
	}()
	stale := &Register{Index: 1}
	p.Dealloc(token.Position{}, &stale)
}

func TestVerifyRegistersCatchesLeak(t *testing.T) {
	p := NewRegisterPool()
	p.Alloc(token.Position{}, nil, "leaked")
	defer func() {
		rec := recover()
		cgErr, ok := rec.(*Error)
		if !ok {
			t.Fatalf("expected *Error panic, got %v", rec)
		}
		if cgErr.Category != InternalErrorCat {
			t.Errorf("expected InternalErrorCat, got %s", cgErr.Category)
		}
	}()
	p.VerifyRegisters(token.Position{})
}

func TestRegisterPoolAllocContiguous(t *testing.T) {
	p := NewRegisterPool()
	held := p.Alloc(token.Position{}, nil, "")
	block := p.AllocContiguous(token.Position{}, nil, 2)
	if block[1].Index != block[0].Index+1 {
		t.Fatalf("expected contiguous block, got %d then %d", block[0].Index, block[1].Index)
	}
	_ = held
}

// ---------------------------------------------------------------------------
// Test fixtures: a minimal resolved AST is built by hand, the way a
// finished parser/resolver pass would hand it to codegen.
// ---------------------------------------------------------------------------

func numLit(v int64, reg *types.Registry) *ast.Literal {
	return &ast.Literal{Type: reg.Primitive(types.Number), Value: uint256.NewInt(uint64(v))}
}

// ---------------------------------------------------------------------------
// Statement/expression lowering
// ---------------------------------------------------------------------------

func TestGenerateContractAddMethod(t *testing.T) {
	reg := types.NewRegistry()
	numberT := reg.Primitive(types.Number)

	paramScope := sema.NewChildScope(sema.NewRootScope())
	declA := &sema.VarDecl{Name: "a", Type: numberT, Storage: sema.Argument}
	declB := &sema.VarDecl{Name: "b", Type: numberT, Storage: sema.Argument}
	paramScope.DeclareVar(declA)
	paramScope.DeclareVar(declB)
	blockScope := sema.NewChildScope(paramScope)

	iface := &sema.MethodInterface{
		Name: "add", Kind: sema.Method, ReturnType: numberT,
		Parameters: []sema.Param{{Name: "a", Type: numberT}, {Name: "b", Type: numberT}},
	}
	body := &ast.StatementBlock{
		Scope: blockScope,
		Statements: []ast.Statement{
			&ast.ReturnStmt{
				Scope:  blockScope,
				Method: iface,
				Expr: &ast.BinaryExpr{
					Op: "+", Type: numberT,
					L: &ast.VarExpr{Name: "a", Decl: declA},
					R: &ast.VarExpr{Name: "b", Decl: declB},
				},
			},
		},
	}

	c := &ast.Contract{Name: "Adder", Methods: []*ast.Method{{Interface: iface, Body: body}}}
	out, err := GenerateContract(c)
	if err != nil {
		t.Fatalf("GenerateContract failed: %v", err)
	}
	if len(out.Methods) != 1 || out.Methods[0].Name != "add" {
		t.Fatalf("expected one method offset named add, got %+v", out.Methods)
	}
	if len(out.Bytecode) != 8 {
		t.Fatalf("expected ADD + RETURN (8 bytes), got %d", len(out.Bytecode))
	}
	if vm.Opcode(out.Bytecode[0]) != vm.OpAdd {
		t.Errorf("expected first opcode ADD, got %s", vm.Opcode(out.Bytecode[0]))
	}
	if vm.Opcode(out.Bytecode[4]) != vm.OpReturn {
		t.Errorf("expected second opcode RETURN, got %s", vm.Opcode(out.Bytecode[4]))
	}

	if errs := Verify(out); len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("verify: %v", e)
		}
	}
}

func TestGenerateConstantFoldsNumberLiterals(t *testing.T) {
	reg := types.NewRegistry()
	numberT := reg.Primitive(types.Number)
	blockScope := sema.NewChildScope(sema.NewRootScope())
	iface := &sema.MethodInterface{Name: "const42", Kind: sema.Method, ReturnType: numberT}
	body := &ast.StatementBlock{
		Scope: blockScope,
		Statements: []ast.Statement{
			&ast.ReturnStmt{Scope: blockScope, Method: iface, Expr: &ast.BinaryExpr{
				Op: "+", Type: numberT, L: numLit(40, reg), R: numLit(2, reg),
			}},
		},
	}
	s := &ast.Script{Name: "const42", Body: body, ReturnType: numberT}
	out, err := GenerateScript(s)
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if len(out.Constants) != 1 || out.Constants[0] != 42 {
		t.Fatalf("expected the fold to produce one constant 42, got %v", out.Constants)
	}
	if vm.Opcode(out.Bytecode[0]) != vm.OpLoadConst {
		t.Errorf("expected LOAD_CONST as the first instruction, got %s", vm.Opcode(out.Bytecode[0]))
	}
}

func TestGenerateNotEqualFoldsToNativeNeq(t *testing.T) {
	reg := types.NewRegistry()
	numberT := reg.Primitive(types.Number)
	boolT := reg.Primitive(types.Bool)
	blockScope := sema.NewChildScope(sema.NewRootScope())
	iface := &sema.MethodInterface{Name: "neq", Kind: sema.Method, ReturnType: boolT}

	declX := &sema.VarDecl{Name: "x", Type: numberT, Storage: sema.Local}
	body := &ast.StatementBlock{
		Scope: blockScope,
		Statements: []ast.Statement{
			&ast.AssignStmt{Scope: blockScope, Target: declX, Expr: numLit(1, reg)},
			&ast.ReturnStmt{Scope: blockScope, Method: iface, Expr: &ast.NegationExpr{
				Type: boolT,
				Inner: &ast.BinaryExpr{
					Op: "==", Type: boolT,
					L: &ast.VarExpr{Name: "x", Decl: declX},
					R: numLit(2, reg),
				},
			}},
		},
	}
	s := &ast.Script{Name: "neq", Body: body, ReturnType: boolT}
	out, err := GenerateScript(s)
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	foundNeq := false
	for off := 0; off+4 <= len(out.Bytecode); off += 4 {
		if vm.Opcode(out.Bytecode[off]) == vm.OpNeq {
			foundNeq = true
		}
		if vm.Opcode(out.Bytecode[off]) == vm.OpEq {
			t.Error("!= should never lower through OpEq")
		}
	}
	if !foundNeq {
		t.Error("expected a native NEQ instruction")
	}
}

func TestGenerateIfEmitsJump(t *testing.T) {
	reg := types.NewRegistry()
	boolT := reg.Primitive(types.Bool)
	noneT := reg.Primitive(types.None)
	blockScope := sema.NewChildScope(sema.NewRootScope())
	iface := &sema.MethodInterface{Name: "branch", Kind: sema.Method, ReturnType: noneT}

	body := &ast.StatementBlock{
		Scope: blockScope,
		Statements: []ast.Statement{
			&ast.IfStmt{
				Scope: blockScope,
				Cond:  &ast.Literal{Type: boolT, Value: true},
				Body:  &ast.StatementBlock{Scope: blockScope, Statements: []ast.Statement{&ast.ReturnStmt{Scope: blockScope, Method: iface}}},
			},
			&ast.ReturnStmt{Scope: blockScope, Method: iface},
		},
	}
	s := &ast.Script{Name: "branch", Body: body, ReturnType: noneT}
	out, err := GenerateScript(s)
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	hasJump := false
	for off := 0; off+4 <= len(out.Bytecode); off += 4 {
		op := vm.Opcode(out.Bytecode[off])
		if op == vm.OpJump || op == vm.OpJumpIf || op == vm.OpJumpIfNot {
			hasJump = true
		}
	}
	if !hasJump {
		t.Error("expected at least one jump instruction for an if statement")
	}
	if errs := Verify(out); len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("verify: %v", e)
		}
	}
}

func TestGenerateAsmBlockSplicesRawInstructions(t *testing.T) {
	reg := types.NewRegistry()
	noneT := reg.Primitive(types.None)
	blockScope := sema.NewChildScope(sema.NewRootScope())
	iface := &sema.MethodInterface{Name: "raw", Kind: sema.Method, ReturnType: noneT}
	body := &ast.StatementBlock{
		Scope: blockScope,
		Statements: []ast.Statement{
			&ast.AsmBlockStmt{Scope: blockScope, Lines: []string{"LOAD_CONST r1 $5", "RETURN r0"}},
		},
	}
	s := &ast.Script{Name: "raw", Body: body, ReturnType: noneT}
	out, err := GenerateScript(s)
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if len(out.Bytecode) != 8 {
		t.Fatalf("expected 2 raw instructions (8 bytes), got %d", len(out.Bytecode))
	}
	if vm.Opcode(out.Bytecode[0]) != vm.OpLoadConst {
		t.Errorf("expected LOAD_CONST, got %s", vm.Opcode(out.Bytecode[0]))
	}
}

func TestGenerateAsmBlockUnknownMnemonicIsShapeError(t *testing.T) {
	reg := types.NewRegistry()
	noneT := reg.Primitive(types.None)
	blockScope := sema.NewChildScope(sema.NewRootScope())
	body := &ast.StatementBlock{
		Scope:      blockScope,
		Statements: []ast.Statement{&ast.AsmBlockStmt{Scope: blockScope, Lines: []string{"NOT_A_REAL_OP r1"}}},
	}
	s := &ast.Script{Name: "bad", Body: body, ReturnType: noneT}
	_, err := GenerateScript(s)
	if err == nil {
		t.Fatal("expected an error for an unknown asm mnemonic")
	}
	cgErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if cgErr.Category != ShapeErrorCat {
		t.Errorf("expected ShapeErrorCat, got %s", cgErr.Category)
	}
}

func TestGenerateCryptoPQCVerifyUsesContiguousRegisterPair(t *testing.T) {
	reg := types.NewRegistry()
	bytesT := reg.Primitive(types.Bytes)
	boolT := reg.Primitive(types.Bool)
	blockScope := sema.NewChildScope(sema.NewRootScope())

	lib := sema.NewLibrary("Crypto")
	callIface := &sema.MethodInterface{
		Name: "falcon512Verify", Kind: sema.Method, ReturnType: boolT,
		Parameters: []sema.Param{{Name: "msg", Type: bytesT}, {Name: "sig", Type: bytesT}, {Name: "pubkey", Type: bytesT}},
	}
	lib.Declare(callIface)

	call := &ast.MethodExpr{
		Library: lib, Method: callIface,
		Args: []ast.Expression{
			&ast.Literal{Type: bytesT, Value: []byte("msg")},
			&ast.Literal{Type: bytesT, Value: []byte("sig")},
			&ast.Literal{Type: bytesT, Value: []byte("pubkey")},
		},
	}
	methodIface := &sema.MethodInterface{Name: "verify", Kind: sema.Method, ReturnType: boolT}
	body := &ast.StatementBlock{
		Scope: blockScope,
		Statements: []ast.Statement{
			&ast.ReturnStmt{Scope: blockScope, Method: methodIface, Expr: call},
		},
	}

	c := &ast.Contract{Name: "Verifier", Methods: []*ast.Method{{Interface: methodIface, Body: body}}}
	out, err := GenerateContract(c)
	if err != nil {
		t.Fatalf("GenerateContract failed: %v", err)
	}
	if errs := Verify(out); len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("verify: %v", e)
		}
	}

	var sawVerify bool
	var copies int
	for off := 0; off+4 <= len(out.Bytecode); off += 4 {
		switch vm.Opcode(out.Bytecode[off]) {
		case vm.OpFalcon512Verify:
			sawVerify = true
			if out.Bytecode[off+2] == 0 {
				t.Error("expected OpFalcon512Verify's msg operand to be a real register")
			}
		case vm.OpCopy:
			copies++
		}
	}
	if !sawVerify {
		t.Fatal("expected OpFalcon512Verify in generated bytecode")
	}
	if copies != 2 {
		t.Errorf("expected 2 OpCopy instructions building the contiguous sig/pubkey register pair, got %d", copies)
	}
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerifyInvalidConstant(t *testing.T) {
	out := &Output{
		Bytecode:  []byte{byte(vm.OpLoadConst), 0, 0xFF, 0xFF, byte(vm.OpReturn), 0, 0, 0},
		Constants: []uint64{42},
		Methods:   []MethodOffset{{Name: "m", Offset: 0}},
	}
	errs := Verify(out)
	if len(errs) == 0 {
		t.Error("expected verification errors for out-of-bounds constant")
	}
}

func TestVerifyTruncatedInstruction(t *testing.T) {
	out := &Output{Bytecode: []byte{byte(vm.OpAdd), 0, 1}}
	errs := Verify(out)
	if len(errs) == 0 {
		t.Error("expected a verification error for a truncated instruction")
	}
}

func TestVerifyMissingTerminator(t *testing.T) {
	out := &Output{
		Bytecode: []byte{byte(vm.OpAdd), 1, 2, 3},
		Methods:  []MethodOffset{{Name: "m", Offset: 0}},
	}
	errs := Verify(out)
	if len(errs) == 0 {
		t.Error("expected a verification error for a method not ending in RETURN/HALT")
	}
}
