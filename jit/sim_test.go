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
	"testing"
)

// machine executes recorded instructions on an abstract register file and
// word-addressed memory. Helper calls clobber every caller-saved register;
// relocating helpers move the value stack.
type machine struct {
	t     *testing.T
	tgt   *Target
	p     *Provider
	regs  map[int16]uint64
	mem   map[uint64]uint64
	calls []string
	jumps []uint64
	rets  int

	stateAddr uint64
	moves     int
}

const (
	simStack    = 0x7fff0000
	simState    = 0x10000
	simCI       = 0x11000
	simFunc     = 0x12000
	simClosure  = 0x13000
	simProto    = 0x14000
	simNative   = 0x15000
	simBase     = 0x100000
	simCode     = 0x400000
	simConsts   = 0x500000
	simHelper   = 0x900000
	simRelocate = 0x100000 // distance the value stack moves per relocation
)

func newMachine(t *testing.T, tgt *Target, p *Provider) *machine {
	m := &machine{t: t, tgt: tgt, p: p, regs: map[int16]uint64{}, mem: map[uint64]uint64{}, stateAddr: simState}
	l := p.Layout
	m.mem[simState+uint64(l.Base)] = simBase
	m.mem[simState+uint64(l.CallInfo)] = simCI
	m.mem[simCI+uint64(l.CallInfoFunc)] = simFunc
	m.mem[simFunc+uint64(l.ValueGC)] = simClosure
	m.mem[simClosure+uint64(l.ClosureProto)] = simProto
	m.mem[simProto+uint64(l.ProtoConstants)] = simConsts
	m.mem[simProto+uint64(l.ProtoCode)] = simCode
	for _, h := range p.Helpers.All() {
		m.mem[simNative+uint64(h.Slot)] = simHelper + uint64(h.Slot)
	}
	// caller's values in every register
	for _, r := range tgt.Registers {
		m.regs[r.Num] = 0xca11e7000 + uint64(r.Num)
	}
	m.regs[tgt.SP().Num] = simStack
	m.regs[tgt.EntryState.Num] = simState
	m.regs[tgt.EntryProto.Num] = simProto
	m.regs[tgt.EntryCode.Num] = simCode
	m.regs[tgt.EntryNativeContext.Num] = simNative
	return m
}

func (m *machine) reg(r Register) uint64 {
	return m.regs[r.Num]
}

func (m *machine) addr(a Address) uint64 {
	return m.regs[a.Base.Num] + uint64(int64(a.Offset))
}

func (m *machine) base() uint64 {
	return m.mem[m.stateAddr+uint64(m.p.Layout.Base)]
}

func (m *machine) helperAt(target uint64) Helper {
	for _, h := range m.p.Helpers.All() {
		if simHelper+uint64(h.Slot) == target {
			return h
		}
	}
	m.t.Fatalf("call to unknown address %#x", target)
	return Helper{}
}

// relocate moves the value stack and updates the canonical base field.
func (m *machine) relocate() {
	old := m.base()
	moved := old + simRelocate
	for a, v := range m.mem {
		if a >= old && a < old+0x10000 {
			m.mem[a-old+moved] = v
			m.mem[a] = 0xdead
		}
	}
	m.mem[m.stateAddr+uint64(m.p.Layout.Base)] = moved
	m.moves++
}

func (m *machine) run(instrs []Instr) {
	for _, in := range instrs {
		switch in.Op {
		case OpLoad:
			m.regs[in.Dst.Num] = m.mem[m.addr(in.Addr)]
		case OpStore:
			m.mem[m.addr(in.Addr)] = m.regs[in.Src.Num]
		case OpMove:
			m.regs[in.Dst.Num] = m.regs[in.Src.Num]
		case OpAdjustSP:
			sp := m.tgt.SP().Num
			m.regs[sp] = uint64(int64(m.regs[sp]) + int64(in.Imm))
		case OpCall:
			h := m.helperAt(m.mem[m.addr(in.Addr)])
			m.calls = append(m.calls, h.Name)
			for _, r := range m.tgt.Registers {
				if r.Class.CallerSaved() {
					m.regs[r.Num] = 0xbad0000 + uint64(r.Num)
				}
			}
			if h.RelocatesStack {
				m.relocate()
			}
		case OpJump:
			m.jumps = append(m.jumps, m.regs[in.Src.Num])
		case OpRet:
			m.rets++
		default:
			panic(fmt.Sprintf("machine: %v", in))
		}
	}
}

// runFrom executes everything f recorded since mark.
func (m *machine) runFrom(f *Function, mark int) int {
	m.run(f.Listing().Since(mark))
	return f.Listing().Len()
}
