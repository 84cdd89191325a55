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
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Script is a named script source.
type Script struct {
	Name   string
	Source string
}

// Compiled is the result of compiling one script.
type Compiled struct {
	Function *Function
	Code     []byte
}

// CompileScript parses src and runs it against a fresh Function. Backend
// defects raised while emitting are returned as errors.
func CompileScript(t *Target, p *Provider, name, src string) (result *Compiled, err error) {
	steps, err := ParseScript(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	f := NewFunction(t, p, name)
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("%s: %v", name, r)
			}
		}()
		for _, s := range steps {
			if _, err = f.Exec(s); err != nil {
				err = fmt.Errorf("%s:%d: %s: %w", name, s.Line, s, err)
				return
			}
		}
		var code []byte
		if code, err = f.Code(); err == nil {
			result = &Compiled{Function: f, Code: code}
		}
	}
	if Trace != nil {
		Trace.Duration(name, "compile", f.seq, map[string]any{"fn": f.ID.String(), "target": t.Name}, run)
	} else {
		run()
	}
	return
}

// CompileAll compiles scripts concurrently. Results keep the input order;
// the first error cancels the remaining work.
func CompileAll(ctx context.Context, t *Target, p *Provider, scripts []Script, parallelism int) ([]*Compiled, error) {
	result := make([]*Compiled, len(scripts))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, s := range scripts {
		i, s := i, s
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := CompileScript(t, p, s.Name, s.Source)
			if err != nil {
				return err
			}
			result[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
