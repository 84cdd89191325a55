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
	"errors"
	"fmt"
	"sort"
)

/*
Register roles
--------------

Data that generated code touches all the time lives in non-volatile
registers instead of being reloaded from the interpreter state:

 1. constant tier: loaded once at entry, never reloaded
    (interpreter state pointer, native context)
 2. frame tier: loaded at entry and whenever the call frame changes
    (constants table, closure, bytecode stream, value-stack base).
    The base register is also reloaded after every call that may
    reallocate the value stack, see basesync.go.

Every other file asks the RoleTable for a register; nothing hardcodes one.
*/

// RegClass is the calling-convention class of a hardware register.
type RegClass uint8

const (
	ClassArgument    RegClass = iota // argument / return registers (caller-saved)
	ClassVolatile                    // caller-saved scratch
	ClassNonVolatile                 // callee-saved, survives calls
	ClassReserved                    // sp, lr, fp, platform registers
)

func (c RegClass) String() string {
	switch c {
	case ClassArgument:
		return "argument"
	case ClassVolatile:
		return "volatile"
	case ClassNonVolatile:
		return "non-volatile"
	case ClassReserved:
		return "reserved"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// CallerSaved reports whether any call may destroy the register's value.
func (c RegClass) CallerSaved() bool {
	return c == ClassArgument || c == ClassVolatile
}

// Register is one physical register of a target. Num is the hardware
// encoding used by the encoders.
type Register struct {
	Name  string
	Num   int16
	Class RegClass
}

func (r Register) String() string {
	return r.Name
}

// Role is a logical piece of interpreter state cached in a register.
type Role uint8

const (
	RoleState         Role = iota // interpreter state pointer
	RoleNativeContext             // native context data (helper table)
	RoleConstants                 // constants table of the active function
	RoleClosure                   // active closure
	RoleCode                      // active bytecode stream
	RoleBase                      // value-stack base
	numRoles
)

var roleNames = [numRoles]string{"state", "nativecontext", "constants", "closure", "code", "base"}

func (r Role) String() string {
	if r < numRoles {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Roles lists every role in declaration order.
func Roles() []Role {
	result := make([]Role, numRoles)
	for i := range result {
		result[i] = Role(i)
	}
	return result
}

// Tier is the reload frequency of a role binding.
type Tier uint8

const (
	TierConstant Tier = iota // once per invocation
	TierFrame                // on entry and on call-frame change
)

func (t Tier) String() string {
	if t == TierConstant {
		return "constant"
	}
	return "frame"
}

// Binding ties a role to a register. ReloadOnRelocation marks the one
// binding that goes stale when the value stack is reallocated.
type Binding struct {
	Role               Role
	Reg                Register
	Tier               Tier
	ReloadOnRelocation bool
}

var (
	ErrUnknownRole       = errors.New("jit: unknown role")
	ErrMissingRole       = errors.New("jit: role has no register")
	ErrDuplicateRole     = errors.New("jit: role bound twice")
	ErrDuplicateRegister = errors.New("jit: register bound to two roles")
	ErrVolatileBinding   = errors.New("jit: role bound to a caller-saved register")
	ErrReservedBinding   = errors.New("jit: role bound to a reserved register")
	ErrRelocationBinding = errors.New("jit: exactly one frame-tier base binding must reload on relocation")
)

// RoleTable is the validated, immutable role -> register mapping of one
// target. It is shared by every compilation and never mutated.
type RoleTable struct {
	bindings []Binding      // constant tier first, declaration order within a tier
	byRole   [numRoles]int8 // index into bindings
	stash    []Register     // sorted by encoding
}

// NewRoleTable validates bindings and builds the table.
func NewRoleTable(bindings ...Binding) (*RoleTable, error) {
	t := new(RoleTable)
	for i := range t.byRole {
		t.byRole[i] = -1
	}
	seenReg := make(map[int16]Role)
	relocating := 0
	for _, b := range bindings {
		if b.Role >= numRoles {
			return nil, fmt.Errorf("%w: %v", ErrUnknownRole, b.Role)
		}
		if t.byRole[b.Role] >= 0 {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateRole, b.Role)
		}
		if other, ok := seenReg[b.Reg.Num]; ok {
			return nil, fmt.Errorf("%w: %v used by %v and %v", ErrDuplicateRegister, b.Reg, other, b.Role)
		}
		switch {
		case b.Reg.Class.CallerSaved():
			return nil, fmt.Errorf("%w: %v -> %v (%v)", ErrVolatileBinding, b.Role, b.Reg, b.Reg.Class)
		case b.Reg.Class == ClassReserved:
			return nil, fmt.Errorf("%w: %v -> %v", ErrReservedBinding, b.Role, b.Reg)
		}
		if b.ReloadOnRelocation {
			if b.Role != RoleBase || b.Tier != TierFrame {
				return nil, fmt.Errorf("%w: got %v (%v tier)", ErrRelocationBinding, b.Role, b.Tier)
			}
			relocating++
		}
		seenReg[b.Reg.Num] = b.Role
		t.byRole[b.Role] = 0 // placeholder, fixed after sorting
		t.bindings = append(t.bindings, b)
	}
	for r := Role(0); r < numRoles; r++ {
		if t.byRole[r] < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMissingRole, r)
		}
	}
	if relocating != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrRelocationBinding, relocating)
	}

	sort.SliceStable(t.bindings, func(i, j int) bool {
		return t.bindings[i].Tier < t.bindings[j].Tier
	})
	for i, b := range t.bindings {
		t.byRole[b.Role] = int8(i)
		t.stash = append(t.stash, b.Reg)
	}
	sort.Slice(t.stash, func(i, j int) bool { return t.stash[i].Num < t.stash[j].Num })
	return t, nil
}

// MustRoleTable is NewRoleTable for static tables; a bad table is a
// backend defect and aborts startup.
func MustRoleTable(bindings ...Binding) *RoleTable {
	t, err := NewRoleTable(bindings...)
	if err != nil {
		panic(err)
	}
	return t
}

// Reg returns the register bound to role.
func (t *RoleTable) Reg(role Role) Register {
	b, ok := t.Binding(role)
	if !ok {
		panic("jit: no binding for role " + role.String())
	}
	return b.Reg
}

func (t *RoleTable) Binding(role Role) (Binding, bool) {
	if role >= numRoles {
		return Binding{}, false
	}
	return t.bindings[t.byRole[role]], true
}

func (t *RoleTable) Tier(role Role) Tier {
	b, _ := t.Binding(role)
	return b.Tier
}

// BaseReg is the cached value-stack base register.
func (t *RoleTable) BaseReg() Register {
	return t.Reg(RoleBase)
}

// Bindings returns a copy of all bindings, constant tier first.
func (t *RoleTable) Bindings() []Binding {
	return append([]Binding(nil), t.bindings...)
}

// ConstantTier returns the bindings loaded only at entry.
func (t *RoleTable) ConstantTier() []Binding {
	return t.tier(TierConstant)
}

// FrameTier returns the bindings reloaded on call-frame change.
func (t *RoleTable) FrameTier() []Binding {
	return t.tier(TierFrame)
}

func (t *RoleTable) tier(tier Tier) (result []Binding) {
	for _, b := range t.bindings {
		if b.Tier == tier {
			result = append(result, b)
		}
	}
	return
}

// StashSet is the set of registers the entry thunk saves and the exit
// thunk restores: every bound register, since all of them must outlive
// the native code's own calls.
func (t *RoleTable) StashSet() []Register {
	return append([]Register(nil), t.stash...)
}

// RoleOf reports which role, if any, owns r.
func (t *RoleTable) RoleOf(r Register) (Role, bool) {
	for _, b := range t.bindings {
		if b.Reg.Num == r.Num {
			return b.Role, true
		}
	}
	return 0, false
}
