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
	"strconv"
	"strings"
)

/*
Scripts drive a Function from the command line, one operation per line:

	entry                 emit the entry thunk
	exit                  emit the exit thunk
	call NAME             call a helper from the helper table
	load REG VMREG        REG = value-stack register VMREG
	store REG VMREG       value-stack register VMREG = REG
	spill REG             store REG into the next free spill slot
	reload REG SLOT       REG = spill slot SLOT
	release SLOT          free spill slot SLOT
	reloadframe           reload the frame tier after a frame change
	refresh               reload the base register unconditionally
	stale [REASON]        mark the base register stale
	state                 print the base register state

'#' starts a comment.
*/

var ErrScript = errors.New("jit: script error")

// Step is one parsed script line.
type Step struct {
	Line int
	Op   string
	Args []string
}

func (s Step) String() string {
	return strings.TrimSpace(s.Op + " " + strings.Join(s.Args, " "))
}

var scriptArity = map[string][2]int{ // min, max arguments
	"entry":       {0, 0},
	"exit":        {0, 0},
	"call":        {1, 1},
	"load":        {2, 2},
	"store":       {2, 2},
	"spill":       {1, 1},
	"reload":      {2, 2},
	"release":     {1, 1},
	"reloadframe": {0, 0},
	"refresh":     {0, 0},
	"stale":       {0, 1},
	"state":       {0, 0},
}

// ParseScript splits src into steps and checks operation names and arity.
func ParseScript(src string) ([]Step, error) {
	var steps []Step
	for i, line := range strings.Split(src, "\n") {
		step, ok, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if ok {
			step.Line = i + 1
			steps = append(steps, step)
		}
	}
	return steps, nil
}

// ParseLine parses one line; ok is false for blank lines and comments.
func ParseLine(line string) (step Step, ok bool, err error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Step{}, false, nil
	}
	op := strings.ToLower(fields[0])
	arity, known := scriptArity[op]
	if !known {
		return Step{}, false, fmt.Errorf("%w: unknown operation %q", ErrScript, fields[0])
	}
	if n := len(fields) - 1; n < arity[0] || n > arity[1] {
		return Step{}, false, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrScript, op, arity[1], n)
	}
	return Step{Op: op, Args: fields[1:]}, true, nil
}

func (f *Function) scriptReg(name string) (Register, error) {
	r, ok := f.target.RegisterByName(name)
	if !ok {
		return r, fmt.Errorf("%w: %s has no register %q", ErrScript, f.target.Name, name)
	}
	return r, nil
}

func scriptUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrScript, s)
	}
	return uint32(v), nil
}

// Exec runs one step and returns a message for interactive use.
// Backend defects (stale dereference, clobbered role register) panic.
func (f *Function) Exec(s Step) (string, error) {
	switch s.Op {
	case "entry":
		f.EmitEntry()
	case "exit":
		f.EmitExit()
	case "call":
		h, err := f.CallHelper(s.Args[0])
		if err != nil {
			return "", err
		}
		if h.RelocatesStack {
			return fmt.Sprintf("%s may relocate the value stack, base is %v", h.Name, f.sync.State()), nil
		}
	case "load", "store":
		r, err := f.scriptReg(s.Args[0])
		if err != nil {
			return "", err
		}
		vmreg, err := scriptUint(s.Args[1])
		if err != nil {
			return "", err
		}
		if s.Op == "load" {
			return "", f.LoadValue(r, vmreg)
		}
		return "", f.StoreValue(r, vmreg)
	case "spill":
		r, err := f.scriptReg(s.Args[0])
		if err != nil {
			return "", err
		}
		slot, err := f.Spill(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v -> spill slot %d", r, slot), nil
	case "reload":
		r, err := f.scriptReg(s.Args[0])
		if err != nil {
			return "", err
		}
		slot, err := scriptUint(s.Args[1])
		if err != nil {
			return "", err
		}
		return "", f.Reload(r, slot)
	case "release":
		slot, err := scriptUint(s.Args[0])
		if err != nil {
			return "", err
		}
		return "", f.ReleaseSpill(slot)
	case "reloadframe":
		f.ReloadFrame()
	case "refresh":
		f.sync.Refresh(f.asm)
	case "stale":
		reason := "explicit"
		if len(s.Args) > 0 {
			reason = s.Args[0]
		}
		f.sync.MarkStale(reason)
	case "state":
		if f.sync.NeedsRefresh() {
			return fmt.Sprintf("base %v (%s)", f.sync.State(), f.sync.Reason()), nil
		}
		return fmt.Sprintf("base %v", f.sync.State()), nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", ErrScript, s.Op)
	}
	return "", nil
}
