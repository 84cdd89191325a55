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
	"fmt"
	"strings"
)

// Assembler is the part of the instruction encoder this layer emits
// through. All loads and stores are one machine word wide.
type Assembler interface {
	Load(dst Register, src Address)
	Store(src Register, dst Address)
	Move(dst, src Register)
	AdjustSP(delta int32) // negative allocates
	CallIndirect(target Address)
	JumpReg(r Register)
	Ret()
}

// Op is the kind of a recorded instruction.
type Op uint8

const (
	OpLoad Op = iota
	OpStore
	OpMove
	OpAdjustSP
	OpCall
	OpJump
	OpRet
)

// Instr is one target-neutral instruction. Which fields are set depends on Op.
type Instr struct {
	Op   Op
	Dst  Register
	Src  Register
	Addr Address
	Imm  int32
}

func (in Instr) String() string {
	switch in.Op {
	case OpLoad:
		return fmt.Sprintf("load   %s, %s", in.Dst, in.Addr)
	case OpStore:
		return fmt.Sprintf("store  %s, %s", in.Src, in.Addr)
	case OpMove:
		return fmt.Sprintf("mov    %s, %s", in.Dst, in.Src)
	case OpAdjustSP:
		if in.Imm < 0 {
			return fmt.Sprintf("sp    -= %d", -in.Imm)
		}
		return fmt.Sprintf("sp    += %d", in.Imm)
	case OpCall:
		return fmt.Sprintf("call   %s", in.Addr)
	case OpJump:
		return fmt.Sprintf("jump   %s", in.Src)
	case OpRet:
		return "ret"
	}
	return fmt.Sprintf("op(%d)", in.Op)
}

// Listing records instructions; targets lower it to bytes in Encode.
type Listing struct {
	Instrs []Instr
}

func (l *Listing) Load(dst Register, src Address) {
	l.Instrs = append(l.Instrs, Instr{Op: OpLoad, Dst: dst, Addr: src})
}

func (l *Listing) Store(src Register, dst Address) {
	l.Instrs = append(l.Instrs, Instr{Op: OpStore, Src: src, Addr: dst})
}

func (l *Listing) Move(dst, src Register) {
	l.Instrs = append(l.Instrs, Instr{Op: OpMove, Dst: dst, Src: src})
}

func (l *Listing) AdjustSP(delta int32) {
	if delta == 0 {
		return
	}
	l.Instrs = append(l.Instrs, Instr{Op: OpAdjustSP, Imm: delta})
}

func (l *Listing) CallIndirect(target Address) {
	l.Instrs = append(l.Instrs, Instr{Op: OpCall, Addr: target})
}

func (l *Listing) JumpReg(r Register) {
	l.Instrs = append(l.Instrs, Instr{Op: OpJump, Src: r})
}

func (l *Listing) Ret() {
	l.Instrs = append(l.Instrs, Instr{Op: OpRet})
}

// Len is the number of recorded instructions; used as a position mark.
func (l *Listing) Len() int {
	return len(l.Instrs)
}

// Since returns the instructions recorded after mark.
func (l *Listing) Since(mark int) []Instr {
	return l.Instrs[mark:]
}

func (l *Listing) String() string {
	var b strings.Builder
	for i, in := range l.Instrs {
		fmt.Fprintf(&b, "%4d  %s\n", i, in)
	}
	return b.String()
}

// Encode lowers the listing to machine code for t.
func (l *Listing) Encode(t *Target) ([]byte, error) {
	if len(l.Instrs) == 0 {
		return nil, nil
	}
	return t.encode(t, l.Instrs)
}
