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
	"sync/atomic"

	"github.com/google/btree"
	"github.com/google/uuid"
)

var (
	ErrSpillExhausted  = errors.New("jit: no free spill slot")
	ErrSpillNotInUse   = errors.New("jit: spill slot not in use")
	ErrValueOutOfRange = errors.New("jit: value-stack register out of range")
	ErrBadDestination  = errors.New("jit: destination register is not caller-saved")
)

var functionSeq atomic.Int64

// Function is one compilation context: the instruction list of a single
// native function, its base register state and its spill slots.
// A Function is owned by one goroutine.
type Function struct {
	ID   uuid.UUID
	Name string
	seq  int // trace thread id

	target   *Target
	provider *Provider
	asm      *Listing
	sync     *BaseSync

	free      *btree.BTreeG[uint32] // free spill slots, lowest first
	spilled   map[uint32]Register
	spillHigh int
}

// NewFunction starts an empty function for t.
func NewFunction(t *Target, p *Provider, name string) *Function {
	f := &Function{
		ID:       uuid.New(),
		Name:     name,
		seq:      int(functionSeq.Add(1)),
		target:   t,
		provider: p,
		asm:      new(Listing),
		sync:     NewBaseSync(t.Roles, p.Layout.Base),
		free:     btree.NewG[uint32](2, func(a, b uint32) bool { return a < b }),
		spilled:  make(map[uint32]Register),
	}
	for i := uint32(0); i < t.Frame.SlotCount(RegionSpill); i++ {
		f.free.ReplaceOrInsert(i)
	}
	f.sync.OnTransition = f.traceTransition
	return f
}

func (f *Function) traceTransition(from, to SyncState, reason string) {
	if Trace != nil {
		Trace.Event("base "+to.String(), "basesync", f.seq, map[string]any{
			"fn":     f.ID.String(),
			"name":   f.Name,
			"from":   from.String(),
			"reason": reason,
			"pos":    f.asm.Len(),
		})
	}
	if Settings.TracePrint {
		fmt.Printf("%s: base %v -> %v (%s)\n", f.Name, from, to, reason)
	}
}

func (f *Function) Target() *Target { return f.target }

func (f *Function) Listing() *Listing { return f.asm }

func (f *Function) Sync() *BaseSync { return f.sync }

func (f *Function) roleReg(r Role) Register {
	return f.target.Roles.Reg(r)
}

// EmitEntry emits the entry thunk: allocate the frame, stash the frame
// record and every role register, load the constant tier from the
// arguments and the frame tier from the interpreter state, then jump to
// the native code.
func (f *Function) EmitEntry() {
	t := f.target
	f.asm.AdjustSP(-t.Frame.FrameSizeBytes())
	for i, r := range t.StashOrder() {
		f.asm.Store(r, t.Frame.MustSlotAddress(RegionStash, uint32(i)))
	}
	if t.FramePointer != nil {
		f.asm.Move(*t.FramePointer, t.SP())
	}
	f.asm.Move(f.roleReg(RoleState), t.EntryState)
	f.asm.Move(f.roleReg(RoleNativeContext), t.EntryNativeContext)
	f.loadFrame(&t.EntryProto)
	f.asm.JumpReg(t.EntryCode)
}

// EmitExit restores the stash in reverse order, frees the frame and returns.
func (f *Function) EmitExit() {
	t := f.target
	order := t.StashOrder()
	for i := len(order) - 1; i >= 0; i-- {
		f.asm.Load(order[i], t.Frame.MustSlotAddress(RegionStash, uint32(i)))
	}
	f.asm.AdjustSP(t.Frame.FrameSizeBytes())
	f.asm.Ret()
}

// ReloadFrame reloads the frame tier after the active call frame changed.
func (f *Function) ReloadFrame() {
	f.loadFrame(nil)
}

// loadFrame loads closure, constants, code and base. proto may name a
// register already holding the prototype.
func (f *Function) loadFrame(proto *Register) {
	l := f.provider.Layout
	state := f.roleReg(RoleState)
	closure := f.roleReg(RoleClosure)
	scratch := f.target.Scratch

	// closure = state->ci->func->gc
	f.asm.Load(scratch, Address{state, l.CallInfo})
	f.asm.Load(scratch, Address{scratch, l.CallInfoFunc})
	f.asm.Load(closure, Address{scratch, l.ValueGC})
	if proto == nil {
		f.asm.Load(scratch, Address{closure, l.ClosureProto})
		proto = &scratch
	}
	f.asm.Load(f.roleReg(RoleConstants), Address{*proto, l.ProtoConstants})
	f.asm.Load(f.roleReg(RoleCode), Address{*proto, l.ProtoCode})
	f.sync.Refresh(f.asm)
}

// CallHelper emits an indirect call through the native context and
// tells the base sync whether the helper may move the value stack.
func (f *Function) CallHelper(name string) (Helper, error) {
	h, err := f.provider.Helpers.Lookup(name)
	if err != nil {
		return h, err
	}
	f.asm.CallIndirect(Address{f.roleReg(RoleNativeContext), h.Slot})
	f.sync.NoteCall(h)
	return h, nil
}

// ValueAddress is the raw address of value-stack register vmreg. The
// caller must have checked the base register; a stale base panics.
func (f *Function) ValueAddress(vmreg uint32) (Address, error) {
	if f.sync.NeedsRefresh() {
		panic("jit: base register dereferenced while stale after " + f.sync.Reason())
	}
	l := f.provider.Layout
	off := int64(vmreg)*int64(l.ValueSize) + int64(l.ValueGC)
	if off > maxFieldOffset {
		return Address{}, fmt.Errorf("%w: %d", ErrValueOutOfRange, vmreg)
	}
	return Address{f.roleReg(RoleBase), int32(off)}, nil
}

// checkDestination guards registers the exit thunk does not restore.
// Overwriting a role register is a backend defect and panics; any other
// reserved or callee-saved register is rejected with ErrBadDestination.
func (f *Function) checkDestination(r Register) error {
	if role, ok := f.target.Roles.RoleOf(r); ok {
		panic(fmt.Sprintf("jit: %v would overwrite the %v register", r, role))
	}
	if !r.Class.CallerSaved() {
		return fmt.Errorf("%w: %v (%v)", ErrBadDestination, r, r.Class)
	}
	return nil
}

// LoadValue loads the payload of value-stack register vmreg into dst,
// refreshing the base register first if needed.
func (f *Function) LoadValue(dst Register, vmreg uint32) error {
	if err := f.checkDestination(dst); err != nil {
		return err
	}
	f.sync.EnsureFresh(f.asm)
	addr, err := f.ValueAddress(vmreg)
	if err != nil {
		return err
	}
	f.asm.Load(dst, addr)
	return nil
}

// StoreValue stores src into the payload of value-stack register vmreg.
func (f *Function) StoreValue(src Register, vmreg uint32) error {
	f.sync.EnsureFresh(f.asm)
	addr, err := f.ValueAddress(vmreg)
	if err != nil {
		return err
	}
	f.asm.Store(src, addr)
	return nil
}

// Spill stores r into the lowest free spill slot.
func (f *Function) Spill(r Register) (uint32, error) {
	slot, ok := f.free.DeleteMin()
	if !ok {
		return 0, fmt.Errorf("%w: all %d in use", ErrSpillExhausted, f.target.Frame.SlotCount(RegionSpill))
	}
	f.asm.Store(r, f.target.Frame.MustSlotAddress(RegionSpill, slot))
	f.spilled[slot] = r
	f.spillHigh = max(f.spillHigh, len(f.spilled))
	return slot, nil
}

// Reload loads spill slot into r. The slot stays allocated.
func (f *Function) Reload(r Register, slot uint32) error {
	if err := f.checkDestination(r); err != nil {
		return err
	}
	if _, ok := f.spilled[slot]; !ok {
		return fmt.Errorf("%w: %d", ErrSpillNotInUse, slot)
	}
	f.asm.Load(r, f.target.Frame.MustSlotAddress(RegionSpill, slot))
	return nil
}

func (f *Function) ReleaseSpill(slot uint32) error {
	if _, ok := f.spilled[slot]; !ok {
		return fmt.Errorf("%w: %d", ErrSpillNotInUse, slot)
	}
	delete(f.spilled, slot)
	f.free.ReplaceOrInsert(slot)
	return nil
}

// Temp returns the address of temporary slot i.
func (f *Function) Temp(i uint32) (Address, error) {
	return f.target.Frame.SlotAddress(RegionTemp, i)
}

// Code encodes the function for its target.
func (f *Function) Code() ([]byte, error) {
	return f.asm.Encode(f.target)
}

// FunctionStats summarizes a compiled function for dumps.
type FunctionStats struct {
	Instrs        int
	Refreshes     int
	Invalidations int
	SpillsInUse   int
	SpillHigh     int
	State         SyncState
}

func (f *Function) Stats() FunctionStats {
	return FunctionStats{
		Instrs:        f.asm.Len(),
		Refreshes:     f.sync.Refreshes(),
		Invalidations: f.sync.Invalidations(),
		SpillsInUse:   len(f.spilled),
		SpillHigh:     f.spillHigh,
		State:         f.sync.State(),
	}
}
