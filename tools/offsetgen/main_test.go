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
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/launix-de/vmjit/jit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkVMState(t *testing.T) *types.Package {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "../../vmstate/vmstate.go", nil, 0)
	require.NoError(t, err)
	pkg, err := new(types.Config).Check("vmstate", fset, []*ast.File{file}, nil)
	require.NoError(t, err)
	return pkg
}

func TestLayoutMatchesHost(t *testing.T) {
	pkg := checkVMState(t)
	for _, arch := range []string{"amd64", "arm64"} {
		l, err := layoutFromPackage(pkg, types.SizesFor("gc", arch))
		require.NoError(t, err, arch)
		assert.Equal(t, jit.DefaultStateLayout(), l, arch)
	}
}

func TestLayoutReferenceOffsets(t *testing.T) {
	l, err := layoutFromPackage(checkVMState(t), types.SizesFor("gc", "arm64"))
	require.NoError(t, err)
	assert.EqualValues(t, 16, l.Base)
	assert.EqualValues(t, 32, l.CallInfo)
	assert.EqualValues(t, 16, l.ValueSize)
}

func TestFieldOffsetErrors(t *testing.T) {
	pkg := checkVMState(t)
	sizes := types.SizesFor("gc", "arm64")
	_, err := fieldOffset(pkg, sizes, "State", "Nope")
	assert.Error(t, err)
	_, err = fieldOffset(pkg, sizes, "Missing", "Base")
	assert.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args                 []string
		arch, output, pkgDir string
	}{
		{nil, "arm64", "", "./vmstate"},
		{[]string{"-arch=amd64", "-o", "x64.json", "./state"}, "amd64", "x64.json", "./state"},
		{[]string{"-o=a.json"}, "arm64", "a.json", "./vmstate"},
		{[]string{"-o", "-"}, "arm64", "", "./vmstate"},
		{[]string{"-o=-", "./state"}, "arm64", "", "./state"},
	}
	for _, c := range cases {
		arch, output, pkgDir, err := parseArgs(c.args)
		require.NoError(t, err, c.args)
		assert.Equal(t, c.arch, arch, c.args)
		assert.Equal(t, c.output, output, c.args)
		assert.Equal(t, c.pkgDir, pkgDir, c.args)
	}

	_, _, _, err := parseArgs([]string{"./vmstate", "-o"})
	assert.Error(t, err)
	_, _, _, err = parseArgs([]string{"-x"})
	assert.Error(t, err)
}
