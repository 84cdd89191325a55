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
	"sync"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
)

// golang-asm keeps global state while assembling; one Assemble at a time.
var aarch64Mutex sync.Mutex

// all 64 bit loads and stores are MOVD in Go assembler syntax
func a64Reg(r Register) int16 {
	if r.Num == 31 {
		return arm64.REGSP
	}
	return arm64.REG_R0 + r.Num
}

type aarch64Builder struct {
	b       *asm.Builder
	scratch int16
}

func (c *aarch64Builder) add(p *obj.Prog) {
	c.b.AddInstruction(p)
}

func (c *aarch64Builder) memToReg(base int16, offset int64, dst int16) {
	p := c.b.NewProg()
	p.As = arm64.AMOVD
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = base
	p.From.Offset = offset
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	c.add(p)
}

func (c *aarch64Builder) regToMem(src, base int16, offset int64) {
	p := c.b.NewProg()
	p.As = arm64.AMOVD
	p.From.Type = obj.TYPE_REG
	p.From.Reg = src
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = base
	p.To.Offset = offset
	c.add(p)
}

func (c *aarch64Builder) regToReg(as obj.As, src, dst int16) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = src
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	c.add(p)
}

func (c *aarch64Builder) constToReg(as obj.As, value int64, dst int16) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	c.add(p)
}

// branch emits BR/BLR/RET style instructions to a register.
func (c *aarch64Builder) branch(as obj.As, target int16) {
	p := c.b.NewProg()
	p.As = as
	if as == obj.ARET {
		p.To.Type = obj.TYPE_REG
	} else {
		p.To.Type = obj.TYPE_MEM
	}
	p.To.Reg = target
	c.add(p)
}

func (c *aarch64Builder) emit(in Instr) {
	switch in.Op {
	case OpLoad:
		c.memToReg(a64Reg(in.Addr.Base), int64(in.Addr.Offset), a64Reg(in.Dst))
	case OpStore:
		c.regToMem(a64Reg(in.Src), a64Reg(in.Addr.Base), int64(in.Addr.Offset))
	case OpMove:
		c.regToReg(arm64.AMOVD, a64Reg(in.Src), a64Reg(in.Dst))
	case OpAdjustSP:
		if in.Imm < 0 {
			c.constToReg(arm64.ASUB, int64(-in.Imm), arm64.REGSP)
		} else {
			c.constToReg(arm64.AADD, int64(in.Imm), arm64.REGSP)
		}
	case OpCall:
		// ldr scratch, [addr]; blr scratch
		c.memToReg(a64Reg(in.Addr.Base), int64(in.Addr.Offset), c.scratch)
		c.branch(obj.ACALL, c.scratch)
	case OpJump:
		c.branch(obj.AJMP, a64Reg(in.Src))
	case OpRet:
		c.branch(obj.ARET, arm64.REGLINK)
	default:
		panic(fmt.Sprintf("jit: aarch64 cannot encode %v", in))
	}
}

func encodeAArch64(t *Target, instrs []Instr) (code []byte, err error) {
	aarch64Mutex.Lock()
	defer aarch64Mutex.Unlock()
	defer func() {
		if r := recover(); r != nil {
			code, err = nil, fmt.Errorf("jit: aarch64 assembler: %v", r)
		}
	}()

	b, err := asm.NewBuilder("arm64", len(instrs)+16)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	c := &aarch64Builder{b: b, scratch: a64Reg(t.Scratch)}
	// the assembler treats the first prog as TEXT and skips it
	nop := b.NewProg()
	nop.As = obj.ANOP
	c.add(nop)
	words := 0
	for _, in := range instrs {
		c.emit(in)
		words += aarch64Words(in)
	}
	code = b.Assemble()
	// drop the zero padding up to the function alignment
	if n := words * 4; len(code) > n {
		code = code[:n]
	}
	return code, nil
}

// aarch64Words is the number of instruction words emit produces for in.
func aarch64Words(in Instr) int {
	if in.Op == OpCall {
		return 2 // ldr + blr
	}
	return 1
}
