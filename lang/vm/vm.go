// Copyright 2024 The Tomb Authors
// This file is part of Tomb.
//
// Tomb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Tomb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Tomb. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"encoding/binary"
	"fmt"
)

// Disassemble returns a human-readable listing of bytecode produced by the
// code generator. Execution itself is the host chain's responsibility; the
// compiler's contract with that host ends at the opcode table, the
// assembler, and this listing.
func Disassemble(code []byte) string {
	out := ""
	for i := 0; i+4 <= len(code); i += 4 {
		word := binary.LittleEndian.Uint32(code[i:])
		op := Opcode(word & 0xFF)
		a := (word >> 8) & 0xFF
		b := (word >> 16) & 0xFF
		c := (word >> 24) & 0xFF
		imm16 := b | (c << 8)

		instrIdx := i / 4
		if op.IsWideImmediate() {
			out += fmt.Sprintf("[%04d] %-20s R%d, %d\n", instrIdx, op, a, imm16)
		} else {
			switch op.Operands() {
			case 1:
				out += fmt.Sprintf("[%04d] %-20s R%d\n", instrIdx, op, a)
			case 2:
				out += fmt.Sprintf("[%04d] %-20s R%d, R%d\n", instrIdx, op, a, b)
			case 3:
				out += fmt.Sprintf("[%04d] %-20s R%d, R%d, R%d\n", instrIdx, op, a, b, c)
			default:
				out += fmt.Sprintf("[%04d] %-20s\n", instrIdx, op)
			}
		}
	}
	return out
}
