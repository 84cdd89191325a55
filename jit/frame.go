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
	"math"

	"golang.org/x/exp/constraints"
)

/*
Native frame
------------

Native code is as stackless as the interpreter, so one fixed frame is
reserved at entry and every generated function shares its geometry:

	sp + 0                       stash:     saved frame record + role registers
	sp + Stash*word              spill:     register allocator spill slots
	sp + (Stash+Spill)*word      temporary: scratch memory
	sp + FrameSizeBytes()        caller's frame (return address first on x64)

Callers never compute byte offsets themselves; they ask for (region, index).
*/

// Region is one of the three frame regions.
type Region uint8

const (
	RegionStash Region = iota
	RegionSpill
	RegionTemp
	numRegions
)

func (r Region) String() string {
	switch r {
	case RegionStash:
		return "stash"
	case RegionSpill:
		return "spill"
	case RegionTemp:
		return "temp"
	}
	return fmt.Sprintf("region(%d)", uint8(r))
}

// Address is a base register plus byte offset.
type Address struct {
	Base   Register
	Offset int32
}

func (a Address) String() string {
	return fmt.Sprintf("[%s, #%d]", a.Base.Name, a.Offset)
}

// FrameSpec holds the per-architecture constants a FrameLayout is built from.
type FrameSpec struct {
	Stash, Spill, Temp uint32 // slot counts
	WordSize           uint32
	Align              uint32 // mandatory stack alignment in bytes
	ReturnAddressBytes uint32 // bytes the call instruction pushed above the frame
	SP                 Register
}

var (
	ErrBadFrameSpec   = errors.New("jit: invalid frame spec")
	ErrUnknownRegion  = errors.New("jit: unknown frame region")
	ErrSlotOutOfRange = errors.New("jit: frame slot out of range")
)

// FrameLayout is the immutable three-region frame of a target.
type FrameLayout struct {
	spec  FrameSpec
	count [numRegions]uint32
	base  [numRegions]int32
	size  int32
}

func alignUp[T constraints.Integer](n, align T) T {
	return (n + align - 1) &^ (align - 1)
}

func isPow2[T constraints.Unsigned](n T) bool {
	return n != 0 && n&(n-1) == 0
}

// NewFrameLayout validates spec and computes region offsets and the frame size:
//
//	size = alignUp(slots*word + returnAddress, align) - returnAddress
//
// so that the stack pointer is aligned after the frame is allocated.
func NewFrameLayout(spec FrameSpec) (*FrameLayout, error) {
	switch {
	case !isPow2(spec.WordSize):
		return nil, fmt.Errorf("%w: word size %d", ErrBadFrameSpec, spec.WordSize)
	case !isPow2(spec.Align) || spec.Align < spec.WordSize:
		return nil, fmt.Errorf("%w: alignment %d", ErrBadFrameSpec, spec.Align)
	case spec.Stash == 0:
		return nil, fmt.Errorf("%w: empty stash region", ErrBadFrameSpec)
	case spec.ReturnAddressBytes%spec.WordSize != 0 || spec.ReturnAddressBytes >= spec.Align:
		return nil, fmt.Errorf("%w: return address size %d", ErrBadFrameSpec, spec.ReturnAddressBytes)
	}
	slots := uint64(spec.Stash) + uint64(spec.Spill) + uint64(spec.Temp)
	ra := uint64(spec.ReturnAddressBytes)
	size := alignUp(slots*uint64(spec.WordSize)+ra, uint64(spec.Align)) - ra
	if size > math.MaxInt32 {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrBadFrameSpec, size)
	}

	l := &FrameLayout{spec: spec, size: int32(size)}
	l.count = [numRegions]uint32{spec.Stash, spec.Spill, spec.Temp}
	word := int32(spec.WordSize)
	l.base[RegionStash] = 0
	l.base[RegionSpill] = int32(spec.Stash) * word
	l.base[RegionTemp] = int32(spec.Stash+spec.Spill) * word
	return l, nil
}

// MustFrameLayout panics on an invalid spec (startup only).
func MustFrameLayout(spec FrameSpec) *FrameLayout {
	l, err := NewFrameLayout(spec)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *FrameLayout) Spec() FrameSpec { return l.spec }

func (l *FrameLayout) WordSize() int32 { return int32(l.spec.WordSize) }

// FrameSizeBytes is the amount the entry thunk subtracts from sp. The
// invariant is (FrameSizeBytes + ReturnAddressBytes) mod Align == 0: on
// aarch64 the frame itself is a multiple of 16 (256), on x64 the call
// already pushed 8 bytes, so the frame is 168 and rsp ends up aligned.
func (l *FrameLayout) FrameSizeBytes() int32 { return l.size }

func (l *FrameLayout) SpillBaseOffset() int32 { return l.base[RegionSpill] }

func (l *FrameLayout) TemporaryBaseOffset() int32 { return l.base[RegionTemp] }

func (l *FrameLayout) RegionBase(r Region) int32 {
	if r >= numRegions {
		panic("jit: " + r.String())
	}
	return l.base[r]
}

func (l *FrameLayout) SlotCount(r Region) uint32 {
	if r >= numRegions {
		return 0
	}
	return l.count[r]
}

// SlotAddress returns the address of slot index of region r.
func (l *FrameLayout) SlotAddress(r Region, index uint32) (Address, error) {
	if r >= numRegions {
		return Address{}, fmt.Errorf("%w: %v", ErrUnknownRegion, r)
	}
	if index >= l.count[r] {
		return Address{}, fmt.Errorf("%w: %v slot %d of %d", ErrSlotOutOfRange, r, index, l.count[r])
	}
	return Address{Base: l.spec.SP, Offset: l.base[r] + int32(index)*int32(l.spec.WordSize)}, nil
}

// MustSlotAddress is SlotAddress for indices the caller has already checked.
func (l *FrameLayout) MustSlotAddress(r Region, index uint32) Address {
	a, err := l.SlotAddress(r, index)
	if err != nil {
		panic(err)
	}
	return a
}

// SpillArea is the address of the first spill slot.
func (l *FrameLayout) SpillArea() Address {
	return Address{Base: l.spec.SP, Offset: l.base[RegionSpill]}
}

// Temporary is the address of the first temporary slot.
func (l *FrameLayout) Temporary() Address {
	return Address{Base: l.spec.SP, Offset: l.base[RegionTemp]}
}

// RegionInfo describes one region for dumps.
type RegionInfo struct {
	Region Region
	Offset int32
	Slots  uint32
	Bytes  int32
}

func (l *FrameLayout) Regions() []RegionInfo {
	result := make([]RegionInfo, 0, numRegions)
	for r := Region(0); r < numRegions; r++ {
		result = append(result, RegionInfo{r, l.base[r], l.count[r], int32(l.count[r]) * int32(l.spec.WordSize)})
	}
	return result
}
