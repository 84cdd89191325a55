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
	"os"

	"github.com/dc0d/onexit"
)

type SettingsT struct {
	DefaultTarget   string
	Trace           bool
	TraceDir        string
	TracePrint      bool // print base register transitions to stdout
	Parallelism     int  // functions compiled concurrently by CompileAll
	StateLayoutFile string
	HelperFile      string
}

var Settings SettingsT = SettingsT{"aarch64", false, os.Getenv("VMJIT_TRACEDIR"), false, 4, "", ""}

// call this after you filled Settings
func InitSettings() {
	Init()
	SetTrace(Settings.Trace)
	onexit.Register(func() { SetTrace(false) }) // close trace file on exit
}

// SettingsProvider loads the interpreter contract named by Settings.
func SettingsProvider() (*Provider, error) {
	return LoadProvider(Settings.StateLayoutFile, Settings.HelperFile)
}
