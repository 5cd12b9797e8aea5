// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Verify performs a second, independent pass over already-generated
// bytecode: it catches a code generator bug even if RegisterPool's own
// alloc/dealloc bookkeeping missed it, the same "don't trust a single
// check" posture spec §4.4 takes toward register leaks. It never runs
// during a normal compile — Generate{Contract,Script} already enforce
// register discipline as they emit — but is exercised by codegen's own
// tests and available to a caller that wants to re-validate an Output
// produced elsewhere (e.g. after a hand-edited `asm` block).
package codegen

import (
	"fmt"

	"github.com/tombchain/tombc/lang/vm"
)

// VerifyError describes a bytecode verification failure.
type VerifyError struct {
	Offset  int
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error at offset %d: %s", e.Offset, e.Message)
}

// Verify checks out.Bytecode for:
//  1. unknown opcodes
//  2. LOAD_CONST indices within the constant pool
//  3. jump targets landing on an instruction boundary within the bytecode
//  4. every method ending in RETURN or HALT
//
// It does not re-check register usage: that is RegisterPool's job, already
// done at generation time with a Position to report, which this whole-
// bytecode pass no longer has once Output exists as plain bytes.
func Verify(out *Output) []VerifyError {
	var errs []VerifyError
	code := out.Bytecode
	if len(code) == 0 {
		return errs
	}
	if len(code)%4 != 0 {
		errs = append(errs, VerifyError{Offset: len(code) - len(code)%4, Message: "trailing partial instruction"})
	}

	for offset := 0; offset+4 <= len(code); offset += 4 {
		op := vm.Opcode(code[offset])
		if op.String() == "UNKNOWN" {
			errs = append(errs, VerifyError{Offset: offset, Message: fmt.Sprintf("unknown opcode: %d", op)})
			continue
		}

		if op == vm.OpLoadConst {
			idx := int(uint16(code[offset+2]) | uint16(code[offset+3])<<8)
			if idx >= len(out.Constants) {
				errs = append(errs, VerifyError{Offset: offset, Message: fmt.Sprintf("constant index %d out of bounds (pool size %d)", idx, len(out.Constants))})
			}
		}

		if op == vm.OpJump || op == vm.OpJumpIf || op == vm.OpJumpIfNot {
			target := int(uint16(code[offset+2])|uint16(code[offset+3])<<8) * 4
			if target < 0 || target >= len(code) {
				errs = append(errs, VerifyError{Offset: offset, Message: fmt.Sprintf("jump target %d out of bounds", target)})
			}
		}
	}

	errs = append(errs, verifyTerminators(out)...)
	return errs
}

// verifyTerminators requires each method's final instruction (the one
// immediately before the next method's offset, or the end of the bytecode
// for the last method) to be RETURN or HALT, mirroring spec §4.4's
// guarantee that every method body lowers to a function that always
// returns or aborts.
func verifyTerminators(out *Output) []VerifyError {
	var errs []VerifyError
	if len(out.Methods) == 0 {
		return errs
	}
	for i, m := range out.Methods {
		end := len(out.Bytecode)
		if i+1 < len(out.Methods) {
			end = out.Methods[i+1].Offset
		}
		if end-m.Offset < 4 {
			errs = append(errs, VerifyError{Offset: m.Offset, Message: fmt.Sprintf("method %q is empty", m.Name)})
			continue
		}
		lastOp := vm.Opcode(out.Bytecode[end-4])
		if lastOp != vm.OpReturn && lastOp != vm.OpHalt {
			errs = append(errs, VerifyError{Offset: end - 4, Message: fmt.Sprintf("method %q does not end with RETURN or HALT", m.Name)})
		}
	}
	return errs
}
