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

import "fmt"

// arm64 AAPCS64 register file. Num 31 is sp in every load/store we emit.
var aarch64Regs = func() []Register {
	regs := make([]Register, 0, 32)
	for i := int16(0); i <= 30; i++ {
		class := ClassNonVolatile
		switch {
		case i <= 7:
			class = ClassArgument
		case i <= 15:
			class = ClassVolatile // x8 indirect result, x9-x15 scratch
		case i <= 18:
			class = ClassReserved // ip0, ip1, platform register
		case i <= 28:
			class = ClassNonVolatile
		default:
			class = ClassReserved // fp, lr
		}
		regs = append(regs, Register{Name: fmt.Sprintf("x%d", i), Num: i, Class: class})
	}
	return append(regs, Register{Name: "sp", Num: 31, Class: ClassReserved})
}()

func a64(n int16) Register {
	return aarch64Regs[n]
}

var (
	a64FP = a64(29)
	a64LR = a64(30)
	a64SP = aarch64Regs[31]
)

func newAArch64() *Target {
	roles := MustRoleTable(
		Binding{Role: RoleState, Reg: a64(19), Tier: TierConstant},
		Binding{Role: RoleNativeContext, Reg: a64(20), Tier: TierConstant},
		Binding{Role: RoleConstants, Reg: a64(21), Tier: TierFrame},
		Binding{Role: RoleClosure, Reg: a64(22), Tier: TierFrame},
		Binding{Role: RoleCode, Reg: a64(23), Tier: TierFrame},
		Binding{Role: RoleBase, Reg: a64(24), Tier: TierFrame, ReloadOnRelocation: true},
	)
	frame := MustFrameLayout(FrameSpec{
		Stash:    8, // fp, lr, x19-x24
		Spill:    22,
		Temp:     2,
		WordSize: 8,
		Align:    16,
		SP:       a64SP,
	})
	fp := a64FP
	return &Target{
		Name:               "aarch64",
		Registers:          aarch64Regs,
		Roles:              roles,
		Frame:              frame,
		FrameRecord:        []Register{a64FP, a64LR},
		FramePointer:       &fp,
		Scratch:            a64(9),
		EntryState:         a64(0),
		EntryProto:         a64(1),
		EntryCode:          a64(2),
		EntryNativeContext: a64(3),
		encode:             encodeAArch64,
	}
}
