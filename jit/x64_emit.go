/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package jit

import (
	"encoding/binary"
	"fmt"
)

// Reg is an x86-64 general purpose register in hardware encoding.
type Reg uint8

const (
	RegRAX Reg = 0
	RegRCX Reg = 1
	RegRDX Reg = 2
	RegRBX Reg = 3
	RegRSP Reg = 4
	RegRBP Reg = 5
	RegRSI Reg = 6
	RegRDI Reg = 7
	RegR8  Reg = 8
	RegR9  Reg = 9
	RegR10 Reg = 10
	RegR11 Reg = 11
	RegR12 Reg = 12
	RegR13 Reg = 13
	RegR14 Reg = 14
	RegR15 Reg = 15
)

// x64Writer appends machine code to a growable buffer.
type x64Writer struct {
	buf []byte
}

func (w *x64Writer) emitByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *x64Writer) emitBytes(bs ...byte) {
	w.buf = append(w.buf, bs...)
}

// emitU32 appends a little-endian uint32.
func (w *x64Writer) emitU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// emitMovRegReg emits MOV dst, src (64-bit)
func (w *x64Writer) emitMovRegReg(dst, src Reg) {
	rex := byte(0x48)
	if src >= 8 {
		rex |= 0x04 // REX.R
	}
	if dst >= 8 {
		rex |= 0x01 // REX.B
	}
	modrm := byte(0xC0) | (byte(src&7) << 3) | byte(dst&7)
	w.emitBytes(rex, 0x89, modrm) // MOV r/m64, r64
}

// emitRegMemOp emits REX.W <opcode> reg, [base + disp] choosing the
// shortest displacement form.
func (w *x64Writer) emitRegMemOp(opcode byte, reg, base Reg, disp int32) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04 // REX.R
	}
	if base >= 8 {
		rex |= 0x01 // REX.B
	}
	w.emitModRM(rex, []byte{opcode}, byte(reg&7), base, disp)
}

// emitModRM writes prefix, opcode and the memory operand [base + disp]
// with field as the ModRM reg field (register or opcode extension).
func (w *x64Writer) emitModRM(rex byte, opcode []byte, field byte, base Reg, disp int32) {
	baseEnc := byte(base & 7)
	if rex != 0 {
		w.emitByte(rex)
	}
	w.emitBytes(opcode...)

	if disp == 0 && baseEnc != 5 { // RBP/R13 always needs disp
		modrm := (field << 3) | baseEnc
		if baseEnc == 4 { // RSP/R12 needs SIB
			w.emitBytes(modrm, 0x24)
		} else {
			w.emitByte(modrm)
		}
	} else if disp >= -128 && disp <= 127 {
		modrm := 0x40 | (field << 3) | baseEnc
		if baseEnc == 4 {
			w.emitBytes(modrm, 0x24, byte(int8(disp)))
		} else {
			w.emitBytes(modrm, byte(int8(disp)))
		}
	} else {
		modrm := 0x80 | (field << 3) | baseEnc
		if baseEnc == 4 {
			w.emitBytes(modrm, 0x24)
		} else {
			w.emitByte(modrm)
		}
		w.emitU32(uint32(disp))
	}
}

// emitMovRegMem emits MOV dst, [base + disp] (load 64-bit from memory)
func (w *x64Writer) emitMovRegMem(dst, base Reg, disp int32) {
	w.emitRegMemOp(0x8B, dst, base, disp)
}

// emitMovMemReg emits MOV [base + disp], src (store 64-bit to memory)
func (w *x64Writer) emitMovMemReg(base Reg, disp int32, src Reg) {
	w.emitRegMemOp(0x89, src, base, disp)
}

// emitAdjustRSP emits SUB/ADD RSP, imm
func (w *x64Writer) emitAdjustRSP(delta int32) {
	ext := byte(0xC4) // ADD /0
	if delta < 0 {
		ext = 0xEC // SUB /5
		delta = -delta
	}
	if delta <= 127 {
		w.emitBytes(0x48, 0x83, ext, byte(delta))
	} else {
		w.emitBytes(0x48, 0x81, ext)
		w.emitU32(uint32(delta))
	}
}

// emitCallMem emits CALL [base + disp]
func (w *x64Writer) emitCallMem(base Reg, disp int32) {
	var rex byte
	if base >= 8 {
		rex = 0x41
	}
	w.emitModRM(rex, []byte{0xFF}, 2, base, disp)
}

// emitJmpReg emits JMP reg
func (w *x64Writer) emitJmpReg(r Reg) {
	if r >= 8 {
		w.emitByte(0x41)
	}
	w.emitBytes(0xFF, 0xE0|byte(r&7))
}

func (w *x64Writer) emitRet() {
	w.emitByte(0xC3) // RET
}

func x64Reg(r Register) Reg {
	if r.Num < 0 || r.Num > 15 {
		panic(fmt.Sprintf("jit: %v is not an x64 register", r))
	}
	return Reg(r.Num)
}

func encodeX64(t *Target, instrs []Instr) ([]byte, error) {
	w := &x64Writer{buf: make([]byte, 0, len(instrs)*5)}
	for _, in := range instrs {
		switch in.Op {
		case OpLoad:
			w.emitMovRegMem(x64Reg(in.Dst), x64Reg(in.Addr.Base), in.Addr.Offset)
		case OpStore:
			w.emitMovMemReg(x64Reg(in.Addr.Base), in.Addr.Offset, x64Reg(in.Src))
		case OpMove:
			if in.Dst.Num != in.Src.Num {
				w.emitMovRegReg(x64Reg(in.Dst), x64Reg(in.Src))
			}
		case OpAdjustSP:
			w.emitAdjustRSP(in.Imm)
		case OpCall:
			w.emitCallMem(x64Reg(in.Addr.Base), in.Addr.Offset)
		case OpJump:
			w.emitJmpReg(x64Reg(in.Src))
		case OpRet:
			w.emitRet()
		default:
			return nil, fmt.Errorf("jit: %s cannot encode %v", t.Name, in)
		}
	}
	return w.buf, nil
}
