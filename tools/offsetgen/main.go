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

// offsetgen type-checks the interpreter state mirror and writes the field
// offsets generated code needs as a state layout JSON file for the given
// architecture, independent of the host.
//
// Usage:
//   go run ./tools/offsetgen/                         # arm64 layout of ./vmstate to stdout
//   go run ./tools/offsetgen/ -arch=amd64 -o x64.json ./vmstate
package main

import (
	"encoding/json"
	"fmt"
	"go/types"
	"os"
	"strings"

	"github.com/launix-de/vmjit/jit"
	"golang.org/x/tools/go/packages"
)

// fieldOffset returns the byte offset of typeName.fieldName in pkg.
func fieldOffset(pkg *types.Package, sizes types.Sizes, typeName, fieldName string) (int64, error) {
	st, err := lookupStruct(pkg, typeName)
	if err != nil {
		return 0, err
	}
	fields := make([]*types.Var, st.NumFields())
	for i := range fields {
		fields[i] = st.Field(i)
	}
	offsets := sizes.Offsetsof(fields)
	for i, f := range fields {
		if f.Name() == fieldName {
			return offsets[i], nil
		}
	}
	return 0, fmt.Errorf("%s.%s: no such field", typeName, fieldName)
}

func lookupStruct(pkg *types.Package, typeName string) (*types.Struct, error) {
	obj := pkg.Scope().Lookup(typeName)
	if obj == nil {
		return nil, fmt.Errorf("%s: type not found in %s", typeName, pkg.Path())
	}
	st, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		return nil, fmt.Errorf("%s: not a struct", typeName)
	}
	return st, nil
}

// layoutFromPackage computes the state layout of a type-checked vmstate package.
func layoutFromPackage(pkg *types.Package, sizes types.Sizes) (jit.StateLayout, error) {
	var l jit.StateLayout
	fields := []struct {
		dst        *int32
		typ, field string
	}{
		{&l.Base, "State", "Base"},
		{&l.CallInfo, "State", "CI"},
		{&l.CallInfoFunc, "CallInfo", "Func"},
		{&l.ValueGC, "Value", "GC"},
		{&l.ClosureProto, "Closure", "Proto"},
		{&l.ProtoConstants, "Proto", "K"},
		{&l.ProtoCode, "Proto", "Code"},
	}
	for _, f := range fields {
		off, err := fieldOffset(pkg, sizes, f.typ, f.field)
		if err != nil {
			return l, err
		}
		*f.dst = int32(off)
	}
	value, err := lookupStruct(pkg, "Value")
	if err != nil {
		return l, err
	}
	l.ValueSize = int32(sizes.Sizeof(value))
	return l, l.Validate()
}

// parseArgs reads [-arch=ARCH] [-o FILE | -o=FILE] [PKGDIR]. An output of
// "" or "-" means stdout.
func parseArgs(args []string) (arch, output, pkgDir string, err error) {
	arch, pkgDir = "arm64", "./vmstate"
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "-arch="):
			arch = arg[len("-arch="):]
		case strings.HasPrefix(arg, "-o="):
			output = arg[len("-o="):]
		case arg == "-o":
			if i+1 >= len(args) {
				return "", "", "", fmt.Errorf("-o needs a file name")
			}
			i++
			output = args[i]
		case strings.HasPrefix(arg, "-"):
			return "", "", "", fmt.Errorf("unknown option %q", arg)
		default:
			pkgDir = arg
		}
	}
	if output == "-" {
		output = ""
	}
	return
}

func main() {
	arch, output, pkgDir, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	sizes := types.SizesFor("gc", arch)
	if sizes == nil {
		fmt.Fprintf(os.Stderr, "unknown architecture %q\n", arch)
		os.Exit(1)
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesSizes,
	}
	pkgs, err := packages.Load(cfg, pkgDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load package: %v\n", err)
		os.Exit(1)
	}
	if len(pkgs) == 0 {
		fmt.Fprintf(os.Stderr, "no packages found\n")
		os.Exit(1)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		for _, e := range pkg.Errors {
			fmt.Fprintf(os.Stderr, "  %v\n", e)
		}
		os.Exit(1)
	}

	layout, err := layoutFromPackage(pkg.Types, sizes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", arch, err)
		os.Exit(1)
	}
	data, _ := json.MarshalIndent(layout, "", "  ")
	data = append(data, '\n')
	if output == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
