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
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceFrame(t *testing.T) {
	l := MustFrameLayout(FrameSpec{Stash: 8, Spill: 22, Temp: 2, WordSize: 8, Align: 16, SP: a64SP})
	assert.EqualValues(t, 256, l.FrameSizeBytes())
	assert.EqualValues(t, 64, l.SpillBaseOffset())
	assert.EqualValues(t, 240, l.TemporaryBaseOffset())
	assert.Equal(t, Address{a64SP, 64}, l.SpillArea())
	assert.Equal(t, Address{a64SP, 240}, l.Temporary())
	assert.Equal(t, "[sp, #240]", l.Temporary().String())

	a, err := l.SlotAddress(RegionSpill, 21)
	require.NoError(t, err)
	assert.EqualValues(t, 232, a.Offset)
}

func TestTargetFrames(t *testing.T) {
	a := newAArch64().Frame
	assert.EqualValues(t, 256, a.FrameSizeBytes())
	assert.Zero(t, a.FrameSizeBytes()%16)
	assert.Zero(t, a.Spec().ReturnAddressBytes)

	x := newX64().Frame
	assert.EqualValues(t, 168, x.FrameSizeBytes())
	// the call pushed the return address, sp is aligned after the sub
	assert.Zero(t, (x.FrameSizeBytes()+8)%16)
	assert.EqualValues(t, 48, x.SpillBaseOffset())
	assert.EqualValues(t, 152, x.TemporaryBaseOffset())
}

func TestFrameAlignment(t *testing.T) {
	for stash := uint32(1); stash <= 9; stash++ {
		for spill := uint32(0); spill <= 23; spill++ {
			for temp := uint32(0); temp <= 3; temp++ {
				for _, ra := range []uint32{0, 8} {
					spec := FrameSpec{Stash: stash, Spill: spill, Temp: temp, WordSize: 8, Align: 16, ReturnAddressBytes: ra, SP: a64SP}
					l, err := NewFrameLayout(spec)
					require.NoError(t, err)
					size := l.FrameSizeBytes()
					assert.Zero(t, (size+int32(ra))%16, spew.Sdump(spec))
					assert.GreaterOrEqual(t, size, int32(stash+spill+temp)*8)
					assert.Less(t, size-int32(stash+spill+temp)*8, int32(16))
					assert.Equal(t, int32(stash)*8, l.SpillBaseOffset())
					assert.Equal(t, int32(stash+spill)*8, l.TemporaryBaseOffset())
				}
			}
		}
	}
}

func TestSlotsDoNotOverlap(t *testing.T) {
	for _, tgt := range []*Target{newAArch64(), newX64()} {
		l := tgt.Frame
		seen := map[int32]Region{}
		for _, info := range l.Regions() {
			for i := uint32(0); i < info.Slots; i++ {
				a := l.MustSlotAddress(info.Region, i)
				assert.Equal(t, tgt.SP(), a.Base)
				assert.Zero(t, a.Offset%8)
				assert.GreaterOrEqual(t, a.Offset, int32(0))
				assert.Less(t, a.Offset+8, l.FrameSizeBytes()+1)
				if other, dup := seen[a.Offset]; dup {
					t.Fatalf("%s: %v slot %d overlaps %v", tgt.Name, info.Region, i, other)
				}
				seen[a.Offset] = info.Region
			}
		}
	}
}

func TestSlotOutOfRange(t *testing.T) {
	l := newAArch64().Frame
	for _, r := range []Region{RegionStash, RegionSpill, RegionTemp} {
		_, err := l.SlotAddress(r, l.SlotCount(r))
		assert.ErrorIs(t, err, ErrSlotOutOfRange, r.String())
	}
	_, err := l.SlotAddress(Region(7), 0)
	assert.ErrorIs(t, err, ErrUnknownRegion)
	assert.Panics(t, func() { l.MustSlotAddress(RegionTemp, 2) })
}

func TestBadFrameSpec(t *testing.T) {
	good := FrameSpec{Stash: 8, Spill: 22, Temp: 2, WordSize: 8, Align: 16, SP: a64SP}
	bad := []func(*FrameSpec){
		func(s *FrameSpec) { s.WordSize = 6 },
		func(s *FrameSpec) { s.Align = 24 },
		func(s *FrameSpec) { s.Align = 4 },
		func(s *FrameSpec) { s.Stash = 0 },
		func(s *FrameSpec) { s.ReturnAddressBytes = 4 },
		func(s *FrameSpec) { s.ReturnAddressBytes = 16 },
		func(s *FrameSpec) { s.Spill = 1 << 30 },
	}
	for i, f := range bad {
		spec := good
		f(&spec)
		_, err := NewFrameLayout(spec)
		assert.ErrorIs(t, err, ErrBadFrameSpec, "case %d", i)
	}
}
