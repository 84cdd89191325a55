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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"unsafe"

	"github.com/launix-de/vmjit/vmstate"
)

// StateLayout holds the byte offsets generated code uses to read the
// interpreter state. Base is the canonical value-stack base field and the
// only input of a base refresh.
type StateLayout struct {
	Base           int32 `json:"base"`
	CallInfo       int32 `json:"callinfo"`
	CallInfoFunc   int32 `json:"callinfo_func"`
	ValueGC        int32 `json:"value_gc"`
	ClosureProto   int32 `json:"closure_proto"`
	ProtoConstants int32 `json:"proto_constants"`
	ProtoCode      int32 `json:"proto_code"`
	ValueSize      int32 `json:"value_size"`
}

// maximum scaled 64 bit load/store offset on arm64
const maxFieldOffset = 32760

var ErrBadStateLayout = errors.New("jit: invalid state layout")

// DefaultStateLayout derives the offsets from the vmstate mirror.
func DefaultStateLayout() StateLayout {
	var (
		s  vmstate.State
		ci vmstate.CallInfo
		v  vmstate.Value
		cl vmstate.Closure
		p  vmstate.Proto
	)
	return StateLayout{
		Base:           int32(unsafe.Offsetof(s.Base)),
		CallInfo:       int32(unsafe.Offsetof(s.CI)),
		CallInfoFunc:   int32(unsafe.Offsetof(ci.Func)),
		ValueGC:        int32(unsafe.Offsetof(v.GC)),
		ClosureProto:   int32(unsafe.Offsetof(cl.Proto)),
		ProtoConstants: int32(unsafe.Offsetof(p.K)),
		ProtoCode:      int32(unsafe.Offsetof(p.Code)),
		ValueSize:      int32(unsafe.Sizeof(v)),
	}
}

// Validate checks that every field is a word aligned offset the encoders
// can express as an immediate.
func (l StateLayout) Validate() error {
	fields := []struct {
		name string
		off  int32
	}{
		{"base", l.Base},
		{"callinfo", l.CallInfo},
		{"callinfo_func", l.CallInfoFunc},
		{"value_gc", l.ValueGC},
		{"closure_proto", l.ClosureProto},
		{"proto_constants", l.ProtoConstants},
		{"proto_code", l.ProtoCode},
	}
	for _, f := range fields {
		if f.off < 0 || f.off%8 != 0 || f.off > maxFieldOffset {
			return fmt.Errorf("%w: %s offset %d", ErrBadStateLayout, f.name, f.off)
		}
	}
	if l.ValueSize <= 0 || l.ValueSize%8 != 0 {
		return fmt.Errorf("%w: value size %d", ErrBadStateLayout, l.ValueSize)
	}
	return nil
}

// LoadStateLayout reads a JSON file as written by tools/offsetgen.
// Missing fields keep their default.
func LoadStateLayout(path string) (StateLayout, error) {
	l := DefaultStateLayout()
	data, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("%s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return l, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Helper is a runtime function generated code calls through the native
// context. Slot is the byte offset of its address inside the native context.
type Helper struct {
	Name           string `json:"name"`
	Slot           int32  `json:"slot"`
	RelocatesStack bool   `json:"relocates_stack"`
}

var (
	ErrUnknownHelper   = errors.New("jit: unknown helper")
	ErrDuplicateHelper = errors.New("jit: duplicate helper")
	ErrBadHelperSlot   = errors.New("jit: invalid helper slot")
)

// HelperTable is the immutable set of helpers a target may call.
type HelperTable struct {
	byName map[string]Helper
	order  []string
}

func NewHelperTable(helpers ...Helper) (*HelperTable, error) {
	t := &HelperTable{byName: make(map[string]Helper, len(helpers))}
	slots := make(map[int32]string)
	for _, h := range helpers {
		if h.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrUnknownHelper)
		}
		if _, ok := t.byName[h.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHelper, h.Name)
		}
		if h.Slot < 0 || h.Slot%8 != 0 || h.Slot > maxFieldOffset {
			return nil, fmt.Errorf("%w: %s at %d", ErrBadHelperSlot, h.Name, h.Slot)
		}
		if other, ok := slots[h.Slot]; ok {
			return nil, fmt.Errorf("%w: %s and %s share slot %d", ErrBadHelperSlot, other, h.Name, h.Slot)
		}
		slots[h.Slot] = h.Name
		t.byName[h.Name] = h
		t.order = append(t.order, h.Name)
	}
	return t, nil
}

// helper names in native context order; the first group may reallocate
// the value stack (growth, calls into the interpreter, GC, coroutines)
var defaultHelperNames = []struct {
	name       string
	relocating bool
}{
	{"growstack", true},
	{"precall", true},
	{"callmeta", true},
	{"gcstep", true},
	{"closeupvals", true},
	{"resume", true},
	{"yield", true},
	{"concat", true},
	{"gettable", true},
	{"settable", true},
	{"pow", false},
	{"fmod", false},
	{"ldexp", false},
	{"getn", false},
}

// DefaultHelpers returns the helper table of the reference runtime.
func DefaultHelpers() *HelperTable {
	helpers := make([]Helper, len(defaultHelperNames))
	for i, h := range defaultHelperNames {
		helpers[i] = Helper{Name: h.name, Slot: int32(i) * 8, RelocatesStack: h.relocating}
	}
	t, err := NewHelperTable(helpers...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *HelperTable) Lookup(name string) (Helper, error) {
	h, ok := t.byName[name]
	if !ok {
		return Helper{}, fmt.Errorf("%w: %s", ErrUnknownHelper, name)
	}
	return h, nil
}

// All returns the helpers in declaration order.
func (t *HelperTable) All() []Helper {
	result := make([]Helper, len(t.order))
	for i, name := range t.order {
		result[i] = t.byName[name]
	}
	return result
}

// Relocating lists the names of all helpers that invalidate the base register.
func (t *HelperTable) Relocating() []string {
	var result []string
	for _, name := range t.order {
		if t.byName[name].RelocatesStack {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

func (t *HelperTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.All())
}

// LoadHelperTable reads a JSON array of helpers.
func LoadHelperTable(path string) (*HelperTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var helpers []Helper
	if err := json.Unmarshal(data, &helpers); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t, err := NewHelperTable(helpers...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Provider is everything the substrate needs to know about the interpreter.
type Provider struct {
	Layout  StateLayout
	Helpers *HelperTable
}

func DefaultProvider() *Provider {
	return &Provider{Layout: DefaultStateLayout(), Helpers: DefaultHelpers()}
}

// LoadProvider builds a provider from optional override files; an empty
// path keeps the default.
func LoadProvider(layoutFile, helperFile string) (*Provider, error) {
	p := DefaultProvider()
	if layoutFile != "" {
		l, err := LoadStateLayout(layoutFile)
		if err != nil {
			return nil, err
		}
		p.Layout = l
	}
	if helperFile != "" {
		h, err := LoadHelperTable(helperFile)
		if err != nil {
			return nil, err
		}
		p.Helpers = h
	}
	return p, nil
}
