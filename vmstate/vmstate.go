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

// Package vmstate mirrors the memory layout of the bytecode interpreter's
// per-thread state as it is laid out on 64-bit targets. Generated code
// reads these structures through fixed offsets; the jit package and
// tools/offsetgen derive those offsets from the declarations below.
//
// Pointers are declared as uint64 so the layout does not depend on the
// host the compiler runs on.
package vmstate

// State is the per-thread interpreter state (one per coroutine).
type State struct {
	Tt           uint8
	Marked       uint8
	Memcat       uint8
	Status       uint8
	ActiveMemcat uint8
	IsActive     bool
	SingleStep   bool

	Top       uint64 // first free value slot
	Base      uint64 // base of the current function's values; reloaded by generated code
	Global    uint64
	CI        uint64 // *CallInfo of the running function
	StackLast uint64
	Stack     uint64 // start of the value stack, moves on reallocation

	EndCI  uint64
	BaseCI uint64

	StackSize int32
	SizeCI    int32

	NCcalls    uint16
	BaseCcalls uint16
	CachedSlot int32
	Gt         uint64
	OpenUpval  uint64
	GCList     uint64
	NameCall   uint64
	UserData   uint64
}

// CallInfo describes one active call frame.
type CallInfo struct {
	Base     uint64
	Func     uint64 // *Value holding the called closure
	Top      uint64
	SavedPC  uint64
	NResults int32
	Flags    uint32
}

// Value is one slot of the value stack.
type Value struct {
	GC    uint64 // payload; object pointer for collectable values
	Extra [1]int32
	Tt    int32
}

// Closure is a function closure; only the bytecode-function part is mirrored.
type Closure struct {
	Tt        uint8
	Marked    uint8
	Memcat    uint8
	IsC       uint8
	NUpvalues uint8
	StackSize uint8
	Preload   uint8
	Env       uint64
	Proto     uint64 // *Proto
}

// Proto is a compiled function prototype.
type Proto struct {
	Tt           uint8
	Marked       uint8
	Memcat       uint8
	NUps         uint8
	NumParams    uint8
	IsVararg     uint8
	MaxStackSize uint8
	Flags        uint8
	K            uint64 // constants table
	Code         uint64 // instruction stream
}
