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

import "io"
import "os"
import "fmt"
import "sync"
import "time"
import "path/filepath"
import "encoding/json"

// Tracefile writes events in the chrome://tracing JSON array format.
type Tracefile struct {
	isFirst bool
	file    io.WriteCloser
	m       sync.Mutex
}

var Trace *Tracefile // default trace: set to not nil if you want to trace
var traceMutex sync.Mutex

// SetTrace opens a new trace file in Settings.TraceDir or closes the current one.
func SetTrace(on bool) {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	if Trace != nil {
		Trace.Close()
		Trace = nil
	}
	if on {
		f, err := os.Create(filepath.Join(Settings.TraceDir, "trace_"+fmt.Sprint(time.Now().Unix())+".json"))
		if err != nil {
			panic(err)
		}
		Trace = NewTrace(f)
	}
}

func NewTrace(file io.WriteCloser) *Tracefile {
	file.Write([]byte("["))
	result := new(Tracefile)
	result.file = file
	result.isFirst = true
	return result
}

func (t *Tracefile) Close() {
	t.file.Write([]byte("]"))
	t.file.Close()
}

func (t *Tracefile) Duration(name string, cat string, tid int, args map[string]any, f func()) {
	t.EventFull(name, cat, "B", time.Since(start).Microseconds(), tid, args)
	defer func() { t.EventFull(name, cat, "E", time.Since(start).Microseconds(), tid, nil) }()
	f()
}

// Event records an instant event.
func (t *Tracefile) Event(name string, cat string, tid int, args map[string]any) {
	t.EventFull(name, cat, "i", time.Since(start).Microseconds(), tid, args)
}

/*
*

	@name string event name
	@cat string comma separated categories (for filtering)
	@typ B/E for begin/end, i for instant events
	@ts timestamp in microseconds
	@tid compilation context
	@args free-form details shown by the viewer
*/
func (t *Tracefile) EventFull(name string, cat string, typ string, ts int64, tid int, args map[string]any) {
	t.m.Lock()
	defer t.m.Unlock()
	if t.isFirst {
		t.isFirst = false
	} else {
		t.file.Write([]byte(",\n"))
	}
	t.file.Write([]byte("{\"name\": "))
	b, _ := json.Marshal(name) // name
	t.file.Write(b)
	t.file.Write([]byte(", \"cat\": "))
	b, _ = json.Marshal(cat) // cat
	t.file.Write(b)
	t.file.Write([]byte(", \"ph\": \""))
	t.file.Write([]byte(typ))
	t.file.Write([]byte("\", \"ts\": "))
	b, _ = json.Marshal(ts) // ts
	t.file.Write(b)
	t.file.Write([]byte(", \"pid\": 0, \"tid\": "))
	b, _ = json.Marshal(tid) // tid
	t.file.Write(b)
	if len(args) > 0 {
		t.file.Write([]byte(", \"args\": "))
		b, _ = json.Marshal(args)
		t.file.Write(b)
	}
	t.file.Write([]byte(", \"s\": \"g\"}"))
}

var start time.Time = time.Now()
