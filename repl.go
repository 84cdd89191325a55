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
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/davecgh/go-spew/spew"
	"github.com/launix-de/vmjit/jit"
)

const newprompt = "\033[32m>\033[0m "
const resultprompt = "\033[31m=\033[0m "

const replHelp = `script operations (emitted into the current function):
  entry | exit | call NAME | load REG VMREG | store REG VMREG
  spill REG | reload REG SLOT | release SLOT
  reloadframe | refresh | stale [REASON] | state
inspector commands:
  .listing   recorded instructions
  .code      encoded machine code
  .layout    role bindings and frame regions
  .helpers   helper table
  .stats     dump function statistics
  .target T  switch target and start a new function
  .reset     start a new function
`

// Repl runs the interactive inspector on a fresh function per session.
func Repl(t *jit.Target, p *jit.Provider) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".vmjit-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	f := jit.NewFunction(t, p, "repl")
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// anti-panic func
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println(failure("panic:"), r)
				}
			}()
			if strings.HasPrefix(line, ".") {
				f = replCommand(f, p, line)
				return
			}
			step, ok, err := jit.ParseLine(line)
			if err != nil {
				fmt.Println(failure("error:"), err)
				return
			}
			if !ok {
				return
			}
			mark := f.Listing().Len()
			msg, err := f.Exec(step)
			for _, in := range f.Listing().Since(mark) {
				fmt.Println(resultprompt + in.String())
			}
			if err != nil {
				fmt.Println(failure("error:"), err)
			} else if msg != "" {
				fmt.Println(faint(msg))
			}
		}()
	}
}

func replCommand(f *jit.Function, p *jit.Provider, line string) *jit.Function {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".help":
		fmt.Print(replHelp)
	case ".listing":
		fmt.Print(f.Listing().String())
	case ".code":
		code, err := f.Code()
		if err != nil {
			fmt.Println(failure("error:"), err)
			break
		}
		fmt.Print(hex.Dump(code))
	case ".layout":
		printLayout(f.Target())
	case ".helpers":
		for _, h := range p.Helpers.All() {
			fmt.Printf("  %-12s [nativecontext, #%d] relocates=%v\n", h.Name, h.Slot, h.RelocatesStack)
		}
	case ".stats":
		spew.Dump(f.Stats())
	case ".target":
		if len(fields) != 2 {
			fmt.Println(failure("error:"), "usage: .target NAME")
			break
		}
		t, err := jit.LookupTarget(fields[1])
		if err != nil {
			fmt.Println(failure("error:"), err)
			break
		}
		return jit.NewFunction(t, p, "repl")
	case ".reset":
		return jit.NewFunction(f.Target(), p, "repl")
	default:
		fmt.Println(failure("error:"), "unknown command "+fields[0]+", try .help")
	}
	return f
}
