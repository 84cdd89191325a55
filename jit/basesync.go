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

/*
Base register synchronization
-----------------------------

The value stack can be reallocated by the interpreter (growth, shrinking
during GC, coroutine switches, ...). The cached base register then points
into freed memory until it is reloaded from the state's base field.

	state   meaning                             entered
	Fresh   base register == state->base        function entry, after Refresh
	Stale   base register may be dangling       after a relocating call

Fresh -> Stale happens in NoteCall/MarkStale, Stale -> Fresh only in Refresh.
The driver asks EnsureFresh before every instruction that dereferences the
base register. This state exists only while emitting; generated code has
no trace of it.
*/

// SyncState is the compile-time validity of the cached base register.
type SyncState uint8

const (
	Fresh SyncState = iota
	Stale
)

func (s SyncState) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

// BaseSync tracks the base register of one compilation context.
// Not safe for concurrent use; every Function owns one.
type BaseSync struct {
	roles     *RoleTable
	baseField int32 // offset of the base field in the interpreter state
	state     SyncState
	reason    string

	refreshes     int
	invalidations int

	// OnTransition is called after every state change.
	OnTransition func(from, to SyncState, reason string)
}

// NewBaseSync starts in Fresh: at entry the base register has just been loaded.
func NewBaseSync(roles *RoleTable, baseField int32) *BaseSync {
	return &BaseSync{roles: roles, baseField: baseField}
}

func (s *BaseSync) State() SyncState { return s.state }

func (s *BaseSync) NeedsRefresh() bool { return s.state == Stale }

// Reason names the call that made the base register stale.
func (s *BaseSync) Reason() string { return s.reason }

func (s *BaseSync) Refreshes() int { return s.refreshes }

func (s *BaseSync) Invalidations() int { return s.invalidations }

// NoteCall records an emitted helper call. Only helpers that may
// relocate the value stack invalidate the base register.
func (s *BaseSync) NoteCall(h Helper) bool {
	if !h.RelocatesStack {
		return false
	}
	s.MarkStale(h.Name)
	return true
}

// MarkStale records a relocating call site that has no helper entry.
func (s *BaseSync) MarkStale(reason string) {
	s.invalidations++
	s.reason = reason
	s.transition(Stale, reason)
}

// Refresh emits the reload of the base register from the interpreter
// state and nothing else.
func (s *BaseSync) Refresh(a Assembler) {
	a.Load(s.roles.BaseReg(), s.baseAddress())
	s.refreshes++
	s.reason = ""
	s.transition(Fresh, "refresh")
}

// EnsureFresh is the check before a base dereference: it refreshes when
// stale and reports whether a refresh was emitted.
func (s *BaseSync) EnsureFresh(a Assembler) bool {
	if s.state == Fresh {
		return false
	}
	s.Refresh(a)
	return true
}

// BaseField is the canonical base pointer field the refresh reads.
func (s *BaseSync) BaseField() Address {
	return s.baseAddress()
}

func (s *BaseSync) baseAddress() Address {
	return Address{Base: s.roles.Reg(RoleState), Offset: s.baseField}
}

func (s *BaseSync) transition(to SyncState, reason string) {
	from := s.state
	s.state = to
	if s.OnTransition != nil && from != to {
		s.OnTransition(from, to, reason)
	}
}
