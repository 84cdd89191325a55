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
/*
	vmjit: register roles, native frame layout and base register
	synchronization of a bytecode VM JIT backend, with a small inspector

*/
package main

import "os"
import "fmt"
import "flag"
import "time"
import "strings"
import "syscall"
import "context"
import "os/signal"
import "crypto/rand"
import "encoding/hex"
import "github.com/google/uuid"
import "github.com/fatih/color"
import "github.com/fsnotify/fsnotify"
import "github.com/docker/go-units"
import "github.com/davecgh/go-spew/spew"
import "github.com/launix-de/vmjit/jit"

var (
	headline = color.New(color.FgGreen, color.Bold).SprintFunc()
	faint    = color.New(color.FgHiBlack).SprintFunc()
	failure  = color.New(color.FgRed, color.Bold).SprintFunc()
)

var showHex bool

// workaround for flags package to allow multiple values
type arrayFlags []string

func (i *arrayFlags) String() string {
	return strings.Join(*i, "; ")
}

func (i *arrayFlags) Set(value string) error {
	*i = append(*i, value)
	return nil
}

func printCompiled(c *jit.Compiled) {
	f := c.Function
	st := f.Stats()
	fmt.Println(headline(f.Name), faint(f.ID.String()))
	fmt.Print(f.Listing().String())
	if showHex {
		fmt.Print(hex.Dump(c.Code))
	}
	fmt.Printf("%s: %d instructions, %s code, %d refreshes, %d invalidations, %d/%d spill slots, base %v\n",
		f.Target().Name, st.Instrs, units.BytesSize(float64(len(c.Code))),
		st.Refreshes, st.Invalidations, st.SpillHigh, f.Target().Frame.SlotCount(jit.RegionSpill), st.State)
}

// printLayout prints role bindings and frame regions of t.
func printLayout(t *jit.Target) {
	fmt.Println(headline(t.Name), faint("frame "+units.BytesSize(float64(t.Frame.FrameSizeBytes()))))
	for _, b := range t.Roles.Bindings() {
		reload := ""
		if b.ReloadOnRelocation {
			reload = " (reloaded after relocating calls)"
		}
		fmt.Printf("  %-14s %-4s %v tier%s\n", b.Role, b.Reg, b.Tier, reload)
	}
	for _, r := range t.Frame.Regions() {
		fmt.Printf("  %-6v [sp, #%d] %d slots, %s\n", r.Region, r.Offset, r.Slots, units.BytesSize(float64(r.Bytes)))
	}
}

func readScripts(files []string) ([]jit.Script, error) {
	scripts := make([]jit.Script, 0, len(files))
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, jit.Script{Name: name, Source: string(src)})
	}
	return scripts, nil
}

func compileFiles(t *jit.Target, p *jit.Provider, files []string) bool {
	scripts, err := readScripts(files)
	if err != nil {
		fmt.Println(failure("error:"), err)
		return false
	}
	start := time.Now()
	result, err := jit.CompileAll(context.Background(), t, p, scripts, jit.Settings.Parallelism)
	if err != nil {
		fmt.Println(failure("error:"), err)
		return false
	}
	for _, c := range result {
		printCompiled(c)
	}
	fmt.Println(faint(fmt.Sprintf("compiled %d function(s) in %v", len(result), time.Since(start))))
	return true
}

// watchFiles recompiles all files whenever one of them changes.
func watchFiles(t *jit.Target, p *jit.Provider, files []string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		panic(err)
	}
	for _, name := range files {
		if err := watcher.Add(name); err != nil {
			panic(err)
		}
	}
	go func() {
		for {
			select {
			case <-watcher.Events:
				// flush all other events
				for {
					time.Sleep(10 * time.Millisecond) // delay a bit, so we don't read empty files
					select {
					case <-watcher.Events:
						// ignore
					default:
						goto to_recompile
					}
				}
			to_recompile:
				func() {
					defer func() {
						if err := recover(); err != nil {
							fmt.Println(err)
						}
					}()
					compileFiles(t, p, files)
				}()
				for _, name := range files {
					watcher.Add(name) // text editors rename, so we have to rewatch
				}
			case err := <-watcher.Errors:
				fmt.Println(failure("watch:"), err)
			}
		}
	}()
}

func main() {
	fmt.Print(`vmjit Copyright (C) 2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;

`)

	// init random generator for UUIDs
	uuid.SetRand(rand.Reader)

	// parse command line options
	var commands arrayFlags
	flag.Var(&commands, "c", "Execute script operation (repeatable, all -c form one function)")
	flag.StringVar(&jit.Settings.DefaultTarget, "target", jit.Settings.DefaultTarget, "Target architecture (aarch64, x64)")
	flag.BoolVar(&jit.Settings.Trace, "trace", jit.Settings.Trace, "Write a chrome://tracing file")
	flag.StringVar(&jit.Settings.TraceDir, "tracedir", jit.Settings.TraceDir, "Folder for trace files (Default: $VMJIT_TRACEDIR)")
	flag.BoolVar(&jit.Settings.TracePrint, "trace-print", jit.Settings.TracePrint, "Print base register transitions")
	flag.IntVar(&jit.Settings.Parallelism, "j", jit.Settings.Parallelism, "Functions compiled in parallel")
	flag.StringVar(&jit.Settings.StateLayoutFile, "layout", "", "State layout JSON (see tools/offsetgen)")
	flag.StringVar(&jit.Settings.HelperFile, "helpers", "", "Helper table JSON")
	watch := flag.Bool("watch", false, "Recompile script files when they change")
	dump := flag.Bool("dump", false, "Dump the target and interpreter contract and exit")
	flag.BoolVar(&showHex, "hex", false, "Print machine code")
	flag.Parse()
	files := flag.Args()

	jit.InitSettings()
	t, err := jit.LookupTarget(jit.Settings.DefaultTarget)
	if err != nil {
		fmt.Println(failure("error:"), err, "- known targets:", strings.Join(jit.Targets(), ", "))
		os.Exit(2)
	}
	p, err := jit.SettingsProvider()
	if err != nil {
		fmt.Println(failure("error:"), err)
		os.Exit(2)
	}

	if *dump {
		printLayout(t)
		spew.Dump(p.Layout)
		spew.Dump(p.Helpers.All())
		exitroutine(0)
	}

	ok := true
	if len(commands) > 0 {
		fmt.Println("Executing " + strings.Join(commands, "; ") + " ...")
		c, err := jit.CompileScript(t, p, "command line", strings.Join(commands, "\n"))
		if err != nil {
			fmt.Println(failure("error:"), err)
			ok = false
		} else {
			printCompiled(c)
		}
	}
	if len(files) > 0 {
		ok = compileFiles(t, p, files) && ok
	}

	// install exit handler
	cancelChan := make(chan os.Signal, 1)
	signal.Notify(cancelChan, syscall.SIGTERM, syscall.SIGINT)

	switch {
	case *watch && len(files) > 0:
		watchFiles(t, p, files)
		fmt.Println(faint("watching " + strings.Join(files, ", ") + ", ^C to exit"))
		<-cancelChan
	case len(files) > 0 || len(commands) > 0:
		// batch mode
	default:
		go func() {
			<-cancelChan
			exitroutine(1)
		}()
		fmt.Print(`
    Type .help to show help

`)
		Repl(t, p)
	}
	if !ok {
		exitroutine(1)
	}
	exitroutine(0)
}

func exitroutine(code int) {
	jit.SetTrace(false)
	os.Exit(code)
}
