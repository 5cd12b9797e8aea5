// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package parser

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/tombchain/tombc/lang/ast"
	"github.com/tombchain/tombc/lang/stdlib"
	"github.com/tombchain/tombc/lang/types"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestEnv() (*types.Registry, *stdlib.Builtins) {
	reg := types.NewRegistry()
	return reg, stdlib.New(reg)
}

// mustParse asserts that src parses without errors and returns the modules.
func mustParse(t *testing.T, src string) []ast.Module {
	t.Helper()
	reg, builtins := newTestEnv()
	mods, errs := Parse("test.tomb", src, reg, builtins, nil)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		t.Fatalf("unexpected parse errors:\n%s", strings.Join(msgs, "\n"))
	}
	return mods
}

// parseWithErrors parses src and expects at least one error, returning both
// the (partial) module set and the error slice.
func parseWithErrors(t *testing.T, src string) ([]ast.Module, []error) {
	t.Helper()
	reg, builtins := newTestEnv()
	mods, errs := Parse("test.tomb", src, reg, builtins, nil)
	if len(errs) == 0 {
		t.Fatal("expected at least one parse error, got none")
	}
	return mods, errs
}

func errCategory(t *testing.T, err error) Category {
	t.Helper()
	perr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error is not *parser.Error: %#v", err)
	}
	return perr.Category
}

// ---------------------------------------------------------------------------
// Struct + contract shape
// ---------------------------------------------------------------------------

func TestParseEmptyContract(t *testing.T) {
	mods := mustParse(t, `contract Empty { }`)
	if len(mods) != 1 {
		t.Fatalf("got %d modules, want 1", len(mods))
	}
	c, ok := mods[0].(*ast.Contract)
	if !ok {
		t.Fatalf("module is %T, want *ast.Contract", mods[0])
	}
	if c.Name != "Empty" {
		t.Errorf("contract name = %q, want Empty", c.Name)
	}
	if c.ModuleKind() != ast.ContractKind {
		t.Errorf("ModuleKind() = %v, want ContractKind", c.ModuleKind())
	}
}

func TestParseStructThenContractUsingIt(t *testing.T) {
	src := `
struct Point {
	x: number;
	y: number;
}

contract Geometry {
	global origin: Point;
}
`
	mods := mustParse(t, src)
	if len(mods) != 1 {
		t.Fatalf("got %d modules, want 1 (struct decl produces none)", len(mods))
	}
	c := mods[0].(*ast.Contract)
	if len(c.Globals) != 1 {
		t.Fatalf("got %d globals, want 1", len(c.Globals))
	}
	if c.Globals[0].Type.Kind != types.Struct || c.Globals[0].Type.Name != "Point" {
		t.Errorf("global type = %s, want struct Point", c.Globals[0].Type)
	}
}

func TestParseConstructorRequiresSingleAddressParam(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract Bad {
	constructor(owner: number) { }
}
`)
	if errCategory(t, errs[0]) != ShapeErrorCat {
		t.Errorf("category = %s, want ShapeError", errCategory(t, errs[0]))
	}
}

func TestParseConstructorValid(t *testing.T) {
	mods := mustParse(t, `
contract Wallet {
	constructor(owner: address) { }
}
`)
	c := mods[0].(*ast.Contract)
	if len(c.Methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(c.Methods))
	}
	if c.Methods[0].Interface.Name != "Initialize" {
		t.Errorf("constructor lowers to %q, want Initialize", c.Methods[0].Interface.Name)
	}
}

// ---------------------------------------------------------------------------
// Globals, consts, storage collections
// ---------------------------------------------------------------------------

func TestParseGlobalStorageMap(t *testing.T) {
	mods := mustParse(t, `
contract Token {
	global balances: storage_map<address, number>;
}
`)
	c := mods[0].(*ast.Contract)
	g := c.Globals[0]
	if g.Type.Kind != types.StorageMap {
		t.Fatalf("global kind = %s, want storage_map", g.Type.Kind)
	}
	if g.Type.Key.Kind != types.Address || g.Type.Elem.Kind != types.Number {
		t.Errorf("global key/elem = %s/%s, want address/number", g.Type.Key, g.Type.Elem)
	}
}

func TestParseConstDecl(t *testing.T) {
	mods := mustParse(t, `
contract C {
	const MAX: number = 100;
}
`)
	c := mods[0].(*ast.Contract)
	if len(c.Consts) != 1 || c.Consts[0].Literal.(*uint256.Int).Cmp(uint256.NewInt(100)) != 0 {
		t.Fatalf("const not parsed as expected: %+v", c.Consts)
	}
}

func TestParseDuplicateGlobalIsShapeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	global x: number;
	global x: number;
}
`)
	if errCategory(t, errs[0]) != ShapeErrorCat {
		t.Errorf("category = %s, want ShapeError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestParseEventWithStringDescription(t *testing.T) {
	mods := mustParse(t, `
contract C {
	event Transfer: number = "transfer occurred";

	public emitIt() {
		emit Transfer(@deadbeef, 1);
	}
}
`)
	c := mods[0].(*ast.Contract)
	if len(c.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(c.Events))
	}
	if c.Events[0].NumericValue != 1000 {
		t.Errorf("numeric value = %d, want 1000 (CustomBase)", c.Events[0].NumericValue)
	}
}

func TestParseSecondEventNumericValueIncrements(t *testing.T) {
	mods := mustParse(t, `
contract C {
	event A: number = "a";
	event B: number = "b";
}
`)
	c := mods[0].(*ast.Contract)
	if c.Events[0].NumericValue != 1000 || c.Events[1].NumericValue != 1001 {
		t.Errorf("numeric values = %d, %d, want 1000, 1001", c.Events[0].NumericValue, c.Events[1].NumericValue)
	}
}

func TestParseEmitUnknownEventIsResolutionError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	public f() {
		emit NoSuchEvent(@deadbeef, 1);
	}
}
`)
	if errCategory(t, errs[0]) != ResolutionErrorCat {
		t.Errorf("category = %s, want ResolutionError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Expressions: right-recursive, equal precedence
// ---------------------------------------------------------------------------

func TestExpressionIsRightRecursive(t *testing.T) {
	// 1 + 2 + 3 must parse as Binary(+, 1, Binary(+, 2, 3)), never the
	// left-associative shape a precedence-climbing parser would produce.
	mods := mustParse(t, `
contract C {
	public f(): number {
		return 1 + 2 + 3;
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	top, ok := ret.Expr.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("top expr is %T, want *ast.BinaryExpr", ret.Expr)
	}
	if _, leftIsBinary := top.L.(*ast.BinaryExpr); leftIsBinary {
		t.Fatal("expression associated left; grammar requires right-recursion")
	}
	right, ok := top.R.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("right side is %T, want nested *ast.BinaryExpr", top.R)
	}
	if right.Op != "+" {
		t.Errorf("nested op = %q, want +", right.Op)
	}
}

func TestNotEqualLowersToNegationOfEqual(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f(): bool {
		return 1 != 2;
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	neg, ok := ret.Expr.(*ast.NegationExpr)
	if !ok {
		t.Fatalf("!= did not lower to NegationExpr, got %T", ret.Expr)
	}
	inner, ok := neg.Inner.(*ast.BinaryExpr)
	if !ok || inner.Op != "==" {
		t.Fatalf("negation inner = %#v, want Binary(==)", neg.Inner)
	}
}

func TestStringConcatCoercesRightOperand(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f(): string {
		return "count: " + 5;
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	bin := ret.Expr.(*ast.BinaryExpr)
	cast, ok := bin.R.(*ast.CastExpr)
	if !ok {
		t.Fatalf("right operand is %T, want *ast.CastExpr", bin.R)
	}
	if cast.To.Kind != types.String {
		t.Errorf("cast target = %s, want string", cast.To)
	}
}

func TestBinaryTypeMismatchIsTypeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	public f(): number {
		return 1 + true;
	}
}
`)
	if errCategory(t, errs[0]) != TypeErrorCat {
		t.Errorf("category = %s, want TypeError", errCategory(t, errs[0]))
	}
}

func TestComparisonProducesBoolType(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f(): bool {
		return 1 < 2;
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	if ret.Expr.ResultType().Kind != types.Bool {
		t.Errorf("comparison result type = %s, want bool", ret.Expr.ResultType())
	}
}

// ---------------------------------------------------------------------------
// Storage collection methods: generic patching + implicit variable name
// ---------------------------------------------------------------------------

func TestMapMethodCallPatchesGenericAndRecordsVariableName(t *testing.T) {
	mods := mustParse(t, `
contract Token {
	global balances: storage_map<address, number>;

	public get(who: address): number {
		return balances.get(who);
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	call, ok := ret.Expr.(*ast.MethodExpr)
	if !ok {
		t.Fatalf("expr is %T, want *ast.MethodExpr", ret.Expr)
	}
	if call.VariableName != "balances" {
		t.Errorf("VariableName = %q, want balances", call.VariableName)
	}
	if call.Method.ReturnType.Kind != types.Number {
		t.Errorf("patched return type = %s, want number", call.Method.ReturnType)
	}
	if len(call.Args) != 1 {
		t.Fatalf("got %d args, want 1 (implicit name is not counted)", len(call.Args))
	}
}

func TestMapMethodCallArityMismatchIsTypeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract Token {
	global balances: storage_map<address, number>;

	public bad(who: address) {
		balances.set(who);
	}
}
`)
	if errCategory(t, errs[0]) != TypeErrorCat {
		t.Errorf("category = %s, want TypeError", errCategory(t, errs[0]))
	}
}

func TestNonCollectionDotCallIsShapeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	global total: number;

	public bad() {
		total.set(1);
	}
}
`)
	if errCategory(t, errs[0]) != ShapeErrorCat {
		t.Errorf("category = %s, want ShapeError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Intrinsic libraries: Runtime, Call's variable arity
// ---------------------------------------------------------------------------

func TestRuntimeLibraryCall(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public whoCalled(): address {
		return Runtime.caller();
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	call := ret.Expr.(*ast.MethodExpr)
	if call.Library.Name != "Runtime" || call.Method.Name != "caller" {
		t.Errorf("call = %s.%s, want Runtime.caller", call.Library.Name, call.Method.Name)
	}
}

func TestCallLibraryAcceptsVariableArity(t *testing.T) {
	// invoke(target, args) is declared with two parameters, but checkArity
	// skips the Call library by name, so a third argument is accepted.
	mods := mustParse(t, `
contract C {
	public proxy(target: address) {
		Call.invoke(target, 1, 2);
	}
}
`)
	c := mods[0].(*ast.Contract)
	stmt := c.Methods[0].Body.Statements[0].(*ast.MethodCallStmt)
	if stmt.Call.Library.Name != "Call" {
		t.Errorf("library = %q, want Call", stmt.Call.Library.Name)
	}
}

func TestBareLibraryNameAsValueIsResolutionError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	public f() {
		local x: number;
		x := Runtime;
	}
}
`)
	if errCategory(t, errs[0]) != ResolutionErrorCat {
		t.Errorf("category = %s, want ResolutionError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Triggers
// ---------------------------------------------------------------------------

func TestTriggerNameNormalization(t *testing.T) {
	mods := mustParse(t, `
contract C {
	trigger receive(from: address) { }
}
`)
	c := mods[0].(*ast.Contract)
	if c.Methods[0].Interface.Name != "onreceive" {
		t.Errorf("trigger name = %q, want onreceive", c.Methods[0].Interface.Name)
	}
}

func TestUnknownTriggerNameIsShapeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	trigger nonsense(x: number) { }
}
`)
	if errCategory(t, errs[0]) != ShapeErrorCat {
		t.Errorf("category = %s, want ShapeError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Statements: asm, local, if/while/do-while, compound assignment
// ---------------------------------------------------------------------------

func TestAsmBlockCapturedVerbatimAsStatement(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f() {
		asm {
LOAD r1 $0
ADD r1 r1 r1
}
	}
}
`)
	c := mods[0].(*ast.Contract)
	asm, ok := c.Methods[0].Body.Statements[0].(*ast.AsmBlockStmt)
	if !ok {
		t.Fatalf("statement is %T, want *ast.AsmBlockStmt", c.Methods[0].Body.Statements[0])
	}
	if len(asm.Lines) != 2 || asm.Lines[0] != "LOAD r1 $0" || asm.Lines[1] != "ADD r1 r1 r1" {
		t.Errorf("asm lines = %#v", asm.Lines)
	}
}

func TestAsmBlockFollowedByMoreStatements(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f(): number {
		asm {
NOP
}
		return 1;
	}
}
`)
	c := mods[0].(*ast.Contract)
	if len(c.Methods[0].Body.Statements) != 2 {
		t.Fatalf("got %d statements, want 2 (asm block must not swallow input)", len(c.Methods[0].Body.Statements))
	}
}

func TestCompoundAssignmentExpandsToBinary(t *testing.T) {
	mods := mustParse(t, `
contract C {
	global total: number;

	public add(n: number) {
		total += n;
	}
}
`)
	c := mods[0].(*ast.Contract)
	assign := c.Methods[0].Body.Statements[0].(*ast.AssignStmt)
	bin, ok := assign.Expr.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expr is %T, want *ast.BinaryExpr", assign.Expr)
	}
	if bin.Op != "+" {
		t.Errorf("op = %q, want +", bin.Op)
	}
	if _, isVar := bin.L.(*ast.VarExpr); !isVar {
		t.Errorf("left operand is %T, want *ast.VarExpr referencing total", bin.L)
	}
}

func TestIfConditionMustBeBool(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	public f() {
		if (1) { }
	}
}
`)
	if errCategory(t, errs[0]) != TypeErrorCat {
		t.Errorf("category = %s, want TypeError", errCategory(t, errs[0]))
	}
}

func TestWhileAndDoWhileParse(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f() {
		local i: number := 0;
		while (i < 10) {
			i += 1;
		}
		do {
			i -= 1;
		} while (i > 0);
	}
}
`)
	c := mods[0].(*ast.Contract)
	stmts := c.Methods[0].Body.Statements
	if len(stmts) != 3 {
		t.Fatalf("got %d statements, want 3", len(stmts))
	}
	if _, ok := stmts[1].(*ast.WhileStmt); !ok {
		t.Errorf("stmt[1] is %T, want *ast.WhileStmt", stmts[1])
	}
	if _, ok := stmts[2].(*ast.DoWhileStmt); !ok {
		t.Errorf("stmt[2] is %T, want *ast.DoWhileStmt", stmts[2])
	}
}

func TestAssignToConstantIsShapeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	const MAX: number = 10;

	public f() {
		MAX := 20;
	}
}
`)
	if errCategory(t, errs[0]) != ShapeErrorCat {
		t.Errorf("category = %s, want ShapeError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Scripts and descriptions
// ---------------------------------------------------------------------------

func TestParseStandaloneScript(t *testing.T) {
	mods := mustParse(t, `
script Setup {
	code() {
		local x: number := 1;
	}
}
`)
	if len(mods) != 1 {
		t.Fatalf("got %d modules, want 1", len(mods))
	}
	s, ok := mods[0].(*ast.Script)
	if !ok {
		t.Fatalf("module is %T, want *ast.Script", mods[0])
	}
	if s.ModuleKind() != ast.ScriptKind {
		t.Errorf("ModuleKind() = %v, want ScriptKind", s.ModuleKind())
	}
}

func TestDescriptionScriptTriggersEagerCodegen(t *testing.T) {
	reg, builtins := newTestEnv()
	var generated []ast.Module
	gen := func(m ast.Module) ([]byte, error) {
		generated = append(generated, m)
		return []byte{0xAA, 0xBB}, nil
	}
	mods, errs := Parse("test.tomb", `
description RenderTransfer {
	code() {
		local n: number := 1;
	}
}
`, reg, builtins, gen)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(generated) != 1 {
		t.Fatalf("generator invoked %d times, want 1 (eager codegen at end of parse)", len(generated))
	}
	s := mods[0].(*ast.Script)
	if s.ModuleKind() != ast.DescriptionKind {
		t.Errorf("ModuleKind() = %v, want DescriptionKind", s.ModuleKind())
	}
	if string(s.CompiledBytes) != string([]byte{0xAA, 0xBB}) {
		t.Errorf("CompiledBytes = %v, want the generator's output", s.CompiledBytes)
	}
}

func TestEventDescriptionReferencingDescriptionScript(t *testing.T) {
	reg, builtins := newTestEnv()
	gen := func(m ast.Module) ([]byte, error) { return []byte{0x01}, nil }
	src := `
description RenderTransfer {
	code() {
		local n: number := 1;
	}
}

contract C {
	event Transfer: number = RenderTransfer;
}
`
	_, errs := Parse("test.tomb", src, reg, builtins, gen)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestEventReferencingUnknownDescriptionIsShapeError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	event Transfer: number = NoSuchScript;
}
`)
	if errCategory(t, errs[0]) != ShapeErrorCat {
		t.Errorf("category = %s, want ShapeError", errCategory(t, errs[0]))
	}
}

func TestScriptRejectsMethodDeclaration(t *testing.T) {
	_, errs := parseWithErrors(t, `
script S {
	public notAllowed() { }
}
`)
	if errCategory(t, errs[0]) != SyntaxErrorCat {
		t.Errorf("category = %s, want SyntaxError", errCategory(t, errs[0]))
	}
}

// ---------------------------------------------------------------------------
// Error recovery across top-level modules
// ---------------------------------------------------------------------------

func TestParserErrorAbortsOnlyOneModule(t *testing.T) {
	src := `
contract Broken {
	public f() {
		if (1) { }
	}
}

contract Fine {
	public g(): number {
		return 42;
	}
}
`
	mods, errs := parseWithErrors(t, src)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if len(mods) != 1 {
		t.Fatalf("got %d surviving modules, want 1 (Fine should still parse)", len(mods))
	}
	if mods[0].ModuleName() != "Fine" {
		t.Errorf("surviving module = %q, want Fine", mods[0].ModuleName())
	}
}

// ---------------------------------------------------------------------------
// Macros
// ---------------------------------------------------------------------------

func TestThisAddressMacroExpandsToRuntimeCaller(t *testing.T) {
	mods := mustParse(t, `
contract C {
	public f(): address {
		return $THIS_ADDRESS;
	}
}
`)
	c := mods[0].(*ast.Contract)
	ret := c.Methods[0].Body.Statements[0].(*ast.ReturnStmt)
	macro, ok := ret.Expr.(*ast.MacroExpr)
	if !ok {
		t.Fatalf("expr is %T, want *ast.MacroExpr", ret.Expr)
	}
	expanded, ok := macro.Expanded.(*ast.MethodExpr)
	if !ok || expanded.Library.Name != "Runtime" || expanded.Method.Name != "caller" {
		t.Fatalf("macro expanded to %#v, want Runtime.caller", macro.Expanded)
	}
}

func TestUnknownMacroIsResolutionError(t *testing.T) {
	_, errs := parseWithErrors(t, `
contract C {
	public f() {
		local x: number := $NOT_A_MACRO;
	}
}
`)
	if errCategory(t, errs[0]) != ResolutionErrorCat {
		t.Errorf("category = %s, want ResolutionError", errCategory(t, errs[0]))
	}
}
