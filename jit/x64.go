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

// System V AMD64 register file in hardware encoding order.
var x64Regs = []Register{
	{"rax", int16(RegRAX), ClassArgument}, // return value
	{"rcx", int16(RegRCX), ClassArgument},
	{"rdx", int16(RegRDX), ClassArgument},
	{"rbx", int16(RegRBX), ClassNonVolatile},
	{"rsp", int16(RegRSP), ClassReserved},
	{"rbp", int16(RegRBP), ClassNonVolatile},
	{"rsi", int16(RegRSI), ClassArgument},
	{"rdi", int16(RegRDI), ClassArgument},
	{"r8", int16(RegR8), ClassArgument},
	{"r9", int16(RegR9), ClassArgument},
	{"r10", int16(RegR10), ClassVolatile},
	{"r11", int16(RegR11), ClassVolatile},
	{"r12", int16(RegR12), ClassNonVolatile},
	{"r13", int16(RegR13), ClassNonVolatile},
	{"r14", int16(RegR14), ClassNonVolatile},
	{"r15", int16(RegR15), ClassNonVolatile},
}

func newX64() *Target {
	r := func(n Reg) Register { return x64Regs[n] }
	// there are only six callee-saved registers, so rbp holds the
	// bytecode pointer and native code runs without a frame pointer
	roles := MustRoleTable(
		Binding{Role: RoleState, Reg: r(RegR15), Tier: TierConstant},
		Binding{Role: RoleNativeContext, Reg: r(RegR13), Tier: TierConstant},
		Binding{Role: RoleConstants, Reg: r(RegR12), Tier: TierFrame},
		Binding{Role: RoleClosure, Reg: r(RegRBX), Tier: TierFrame},
		Binding{Role: RoleCode, Reg: r(RegRBP), Tier: TierFrame},
		Binding{Role: RoleBase, Reg: r(RegR14), Tier: TierFrame, ReloadOnRelocation: true},
	)
	frame := MustFrameLayout(FrameSpec{
		Stash:              6,
		Spill:              13,
		Temp:               2,
		WordSize:           8,
		Align:              16,
		ReturnAddressBytes: 8, // pushed by CALL
		SP:                 r(RegRSP),
	})
	return &Target{
		Name:               "x64",
		Registers:          x64Regs,
		Roles:              roles,
		Frame:              frame,
		Scratch:            r(RegR11),
		EntryState:         r(RegRDI),
		EntryProto:         r(RegRSI),
		EntryCode:          r(RegRDX),
		EntryNativeContext: r(RegRCX),
		encode:             encodeX64,
	}
}
