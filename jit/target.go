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
	"strings"
	"sync"
	"unsafe"

	"github.com/launix-de/NonLockingReadMap"
)

// Target bundles everything that differs between architectures.
type Target struct {
	Name      string
	Registers []Register // complete register file, sorted by Num
	Roles     *RoleTable
	Frame     *FrameLayout

	// FrameRecord is stored at the bottom of the stash region before the
	// role registers (fp, lr on arm64). Empty when the call pushes the
	// return address and no frame pointer is kept.
	FrameRecord  []Register
	FramePointer *Register // set to sp after the frame record is stored

	Scratch Register // caller-saved, never bound to a role

	// entry thunk arguments
	EntryState         Register
	EntryProto         Register
	EntryCode          Register
	EntryNativeContext Register

	encode func(t *Target, instrs []Instr) ([]byte, error)
}

var (
	ErrUnknownTarget = errors.New("jit: unknown target")
	ErrBadTarget     = errors.New("jit: invalid target")
)

// GetKey and ComputeSize make Target storable in a NonLockingReadMap.
func (t Target) GetKey() string {
	return t.Name
}

func (t Target) ComputeSize() uint {
	return uint(unsafe.Sizeof(t)) + uint(len(t.Registers))*uint(unsafe.Sizeof(Register{}))
}

// RegisterByName looks up a register of the register file.
func (t *Target) RegisterByName(name string) (Register, bool) {
	name = strings.ToLower(name)
	for _, r := range t.Registers {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

// SP is the stack pointer all frame slots are addressed from.
func (t *Target) SP() Register {
	return t.Frame.Spec().SP
}

// StashOrder is the store order of the entry thunk: frame record first,
// then the role registers. The exit thunk restores in reverse.
func (t *Target) StashOrder() []Register {
	return append(append([]Register(nil), t.FrameRecord...), t.Roles.StashSet()...)
}

// Validate checks the target against its own register file.
func (t *Target) Validate() error {
	inFile := func(r Register) bool {
		got, ok := t.RegisterByName(r.Name)
		return ok && got == r
	}
	if t.Roles == nil || t.Frame == nil || t.encode == nil {
		return fmt.Errorf("%w: %s is incomplete", ErrBadTarget, t.Name)
	}
	if !sort.SliceIsSorted(t.Registers, func(i, j int) bool { return t.Registers[i].Num < t.Registers[j].Num }) {
		return fmt.Errorf("%w: %s register file not sorted", ErrBadTarget, t.Name)
	}
	for _, b := range t.Roles.Bindings() {
		if !inFile(b.Reg) {
			return fmt.Errorf("%w: %s: %v bound to foreign register %v", ErrBadTarget, t.Name, b.Role, b.Reg)
		}
	}
	if !inFile(t.SP()) || t.SP().Class != ClassReserved {
		return fmt.Errorf("%w: %s: bad stack pointer %v", ErrBadTarget, t.Name, t.SP())
	}
	if !inFile(t.Scratch) || !t.Scratch.Class.CallerSaved() {
		return fmt.Errorf("%w: %s: scratch %v must be caller-saved", ErrBadTarget, t.Name, t.Scratch)
	}
	if _, bound := t.Roles.RoleOf(t.Scratch); bound {
		return fmt.Errorf("%w: %s: scratch %v is bound to a role", ErrBadTarget, t.Name, t.Scratch)
	}
	entry := []Register{t.EntryState, t.EntryProto, t.EntryCode, t.EntryNativeContext}
	for i, r := range entry {
		if !inFile(r) || r.Class != ClassArgument {
			return fmt.Errorf("%w: %s: entry argument %v is not an argument register", ErrBadTarget, t.Name, r)
		}
		for _, other := range entry[:i] {
			if other.Num == r.Num {
				return fmt.Errorf("%w: %s: entry argument %v used twice", ErrBadTarget, t.Name, r)
			}
		}
	}
	if t.FramePointer != nil && !inFile(*t.FramePointer) {
		return fmt.Errorf("%w: %s: bad frame pointer", ErrBadTarget, t.Name)
	}
	if need := uint32(len(t.StashOrder())); need > t.Frame.SlotCount(RegionStash) {
		return fmt.Errorf("%w: %s: stash region has %d slots, %d needed", ErrBadTarget, t.Name, t.Frame.SlotCount(RegionStash), need)
	}
	if t.Frame.FrameSizeBytes() > maxFieldOffset {
		return fmt.Errorf("%w: %s: frame of %d bytes", ErrBadTarget, t.Name, t.Frame.FrameSizeBytes())
	}
	return nil
}

// registry of all targets; written once by Init, then read lock free
var targets NonLockingReadMap.NonLockingReadMap[Target, string] = NonLockingReadMap.New[Target, string]()
var initOnce sync.Once

// Init builds and validates every target. It must run before the first
// compilation; an invalid built-in target is a backend defect and panics.
func Init() {
	initOnce.Do(func() {
		for _, build := range []func() *Target{newAArch64, newX64} {
			t := build()
			if err := t.Validate(); err != nil {
				panic(err)
			}
			targets.Set(t)
		}
	})
}

func LookupTarget(name string) (*Target, error) {
	Init()
	t := targets.Get(name)
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return t, nil
}

// Targets lists the names of all registered targets.
func Targets() []string {
	Init()
	var result []string
	for _, t := range targets.GetAll() {
		result = append(result, t.Name)
	}
	sort.Strings(result)
	return result
}
