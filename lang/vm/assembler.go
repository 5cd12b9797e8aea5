// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultRegisterCount is N in spec §3's register pool: the VM's default
// register count. Register 0 is reserved (the VM's hardwired zero
// register), leaving indices 1..255 available to the code generator's
// allocator.
const DefaultRegisterCount = 256

// Instruction is one emitted line of VM assembly before label resolution
// (spec §4.4 "emitting VM assembly lines"; §6 "textual line-oriented"
// syntax). Alias, when non-empty, records that this instruction was
// preceded by an `ALIAS rK $name` directive for disassembly purposes.
type Instruction struct {
	Op    Opcode
	A, B, C uint8
	Imm16 uint16
	Label string // unresolved jump target; set only for jump-family ops
	Alias string // human-readable register alias, if any (debug only)
	Line  int    // source line this instruction was lowered from
}

// String renders the instruction in the VM's textual assembly syntax
// (spec §6: "OP r1 r2", "LOAD rK $literal", "JMPIF rK label", "ALIAS rK $name").
func (in Instruction) String() string {
	prefix := ""
	if in.Alias != "" {
		prefix = fmt.Sprintf("ALIAS r%d $%s\n", in.A, in.Alias)
	}
	if in.Label != "" {
		return fmt.Sprintf("%s%s r%d %s", prefix, in.Op, in.A, in.Label)
	}
	if in.Op.IsWideImmediate() {
		return fmt.Sprintf("%s%s r%d $%d", prefix, in.Op, in.A, in.Imm16)
	}
	switch in.Op.Operands() {
	case 0:
		return prefix + in.Op.String()
	case 1:
		return fmt.Sprintf("%s%s r%d", prefix, in.Op, in.A)
	case 2:
		return fmt.Sprintf("%s%s r%d r%d", prefix, in.Op, in.A, in.B)
	default:
		return fmt.Sprintf("%s%s r%d r%d r%d", prefix, in.Op, in.A, in.B, in.C)
	}
}

// Assembler resolves a sequence of Instructions (emitted in source order by
// the code generator) to VM bytecode, a constant pool, and a
// bytecode-offset-to-source-line map (spec §6 "An assembler that translates
// emitted text lines to bytes and resolves labels"; §6 Program entry API
// "source_line_map").
type Assembler struct {
	code      []byte
	constants []uint64
	constIdx  map[uint64]int
	labels    map[string]int
	lineMap   map[int]int
	patches   []patch
}

// patch records a forward reference to a label that must be resolved once
// every label in the method has been seen.
type patch struct {
	offset int
	label  string
}

// NewAssembler creates an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		constIdx: make(map[uint64]int),
		labels:   make(map[string]int),
		lineMap:  make(map[int]int),
	}
}

// Label marks the current code offset as the target of name. Call this
// before emitting the instruction a label should point to.
func (a *Assembler) Label(name string) {
	a.labels[name] = len(a.code)
}

// Const interns v into the constant pool and returns its index, reusing an
// existing slot for an identical value (so two identical literals in the
// same module share one pool entry).
func (a *Assembler) Const(v uint64) uint16 {
	if idx, ok := a.constIdx[v]; ok {
		return uint16(idx)
	}
	idx := len(a.constants)
	a.constants = append(a.constants, v)
	a.constIdx[v] = idx
	return uint16(idx)
}

// Emit appends one instruction, encoding it immediately except for the
// 16-bit immediate of a label-targeted jump, which is patched in Finish
// once every label has been seen.
func (a *Assembler) Emit(in Instruction) {
	offset := len(a.code)
	if in.Line != 0 {
		a.lineMap[offset] = in.Line
	}

	if in.Label != "" {
		a.code = append(a.code, byte(in.Op), in.A, 0, 0)
		a.patches = append(a.patches, patch{offset: offset, label: in.Label})
		return
	}

	if in.Op.IsWideImmediate() {
		a.code = append(a.code, byte(in.Op), in.A, byte(in.Imm16), byte(in.Imm16>>8))
		return
	}
	a.code = append(a.code, byte(in.Op), in.A, in.B, in.C)
}

// Len returns the number of bytes emitted so far, the offset the next
// instruction will be written at.
func (a *Assembler) Len() int {
	return len(a.code)
}

// mnemonicTable inverts opcodeTable for EmitRaw's text-to-instruction pass.
var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op := Opcode(0); int(op) < len(opcodeTable); op++ {
		m[opcodeTable[op].name] = op
	}
	return m
}()

// EmitRaw assembles one line of hand-written Tomb VM assembly (the body of
// an `asm { ... }` block) straight to bytecode, in the syntax Instruction's
// String method renders: "OP r1 r2 r3", "LOAD_CONST r1 $5", "JUMP label",
// or "ALIAS r1 $name". An ALIAS line is a disassembly annotation only and
// emits no bytecode of its own.
func (a *Assembler) EmitRaw(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if fields[0] == "ALIAS" {
		return nil
	}

	op, ok := mnemonicTable[fields[0]]
	if !ok {
		return fmt.Errorf("vm: unknown mnemonic %q in asm block", fields[0])
	}
	operands := fields[1:]

	in := Instruction{Op: op}
	if len(operands) > 0 {
		first := operands[0]
		reg, isReg := parseRegOperand(first)
		switch {
		case op.IsWideImmediate() && isReg && len(operands) > 1 && strings.HasPrefix(operands[1], "$"):
			n, err := strconv.ParseUint(strings.TrimPrefix(operands[1], "$"), 10, 16)
			if err != nil {
				return fmt.Errorf("vm: bad immediate %q in asm block", operands[1])
			}
			in.A, in.Imm16 = reg, uint16(n)
		case op.IsWideImmediate() && isReg:
			in.A, in.Label = reg, operands[1]
		case op.IsWideImmediate():
			in.Label = first
		default:
			regs := make([]uint8, 0, 3)
			for _, tok := range operands {
				r, ok := parseRegOperand(tok)
				if !ok {
					return fmt.Errorf("vm: bad register operand %q in asm block", tok)
				}
				regs = append(regs, r)
			}
			if len(regs) > 0 {
				in.A = regs[0]
			}
			if len(regs) > 1 {
				in.B = regs[1]
			}
			if len(regs) > 2 {
				in.C = regs[2]
			}
		}
	}
	a.Emit(in)
	return nil
}

func parseRegOperand(tok string) (uint8, bool) {
	if !strings.HasPrefix(tok, "r") {
		return 0, false
	}
	n, err := strconv.ParseUint(tok[1:], 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// Finish resolves all label references and returns the final bytecode,
// constant pool, and source line map. An unresolved label is returned as a
// plain error naming the label (the generator never emits one unless a
// control-flow statement forgot to call Label).
func (a *Assembler) Finish() ([]byte, []uint64, map[int]int, error) {
	for _, p := range a.patches {
		target, ok := a.labels[p.label]
		if !ok {
			return nil, nil, nil, fmt.Errorf("vm: undefined label %q", p.label)
		}
		a.code[p.offset+2] = byte(target / 4)
		a.code[p.offset+3] = byte((target / 4) >> 8)
	}
	return a.code, a.constants, a.lineMap, nil
}
