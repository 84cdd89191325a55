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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScript = `# add two values, grow the stack, store the result
entry
load x0 1
load x1 2
spill x0
call growstack
reload x0 0
release 0
store x0 3   # refreshes the base register first
exit
`

// sampleFor renames the registers of sampleScript for tgt.
func sampleFor(tgt *Target) string {
	if tgt.Name == "x64" {
		return strings.NewReplacer("x0", "rax", "x1", "r8").Replace(sampleScript)
	}
	return sampleScript
}

func TestParseScript(t *testing.T) {
	steps, err := ParseScript(sampleScript)
	require.NoError(t, err)
	require.Len(t, steps, 9)
	assert.Equal(t, Step{Line: 2, Op: "entry", Args: []string{}}, steps[0])
	assert.Equal(t, "store x0 3", steps[7].String())
	assert.Equal(t, 9, steps[7].Line)
}

func TestParseScriptErrors(t *testing.T) {
	cases := map[string]string{
		"entry\nfrobnicate\n": "line 2:",
		"load x0\n":           "line 1:",
		"\n\nexit now\n":      "line 3:",
		"stale a b\n":         "line 1:",
	}
	for src, prefix := range cases {
		_, err := ParseScript(src)
		require.Error(t, err, src)
		assert.ErrorIs(t, err, ErrScript)
		assert.Contains(t, err.Error(), prefix)
	}
}

func TestExecScript(t *testing.T) {
	tgt, err := LookupTarget("aarch64")
	require.NoError(t, err)
	f := NewFunction(tgt, DefaultProvider(), "exec")
	run := func(line string) (string, error) {
		step, ok, err := ParseLine(line)
		require.NoError(t, err)
		require.True(t, ok)
		return f.Exec(step)
	}

	msg, err := run("state")
	require.NoError(t, err)
	assert.Equal(t, "base fresh", msg)

	msg, err = run("call resume")
	require.NoError(t, err)
	assert.Equal(t, "resume may relocate the value stack, base is stale", msg)

	msg, err = run("state")
	require.NoError(t, err)
	assert.Equal(t, "base stale (resume)", msg)

	_, err = run("refresh")
	require.NoError(t, err)
	assert.Equal(t, Fresh, f.Sync().State())

	msg, err = run("spill x5")
	require.NoError(t, err)
	assert.Equal(t, "x5 -> spill slot 0", msg)

	_, err = run("load q7 1")
	assert.ErrorIs(t, err, ErrScript)
	_, err = run("load x0 -1")
	assert.ErrorIs(t, err, ErrScript)
	_, err = run("call frobnicate")
	assert.ErrorIs(t, err, ErrUnknownHelper)
	_, err = run("release 9")
	assert.ErrorIs(t, err, ErrSpillNotInUse)

	_, err = run("stale")
	require.NoError(t, err)
	assert.Equal(t, "explicit", f.Sync().Reason())
}

func TestCompileScript(t *testing.T) {
	for _, tgt := range allTargets(t) {
		c, err := CompileScript(tgt, DefaultProvider(), "sample", sampleFor(tgt))
		require.NoError(t, err, tgt.Name)
		assert.NotEmpty(t, c.Code)
		st := c.Function.Stats()
		assert.Equal(t, 2, st.Refreshes, tgt.Name)
		assert.Equal(t, 1, st.Invalidations)
		assert.Equal(t, 0, st.SpillsInUse)
		assert.Equal(t, 1, st.SpillHigh)
		assert.Equal(t, Fresh, st.State)
	}
}

func TestCompileScriptDefects(t *testing.T) {
	tgt, err := LookupTarget("x64")
	require.NoError(t, err)
	_, err = CompileScript(tgt, DefaultProvider(), "clobber", "entry\nload r14 0\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "would overwrite the base register")

	_, err = CompileScript(tgt, DefaultProvider(), "bad", "entry\ncall nope\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad:2: call nope")
}
