// Package script runs a Lua hook script for lease events.
//
// The script must define a global function on_lease(event) which is called
// with a table describing the event:
//
//	function on_lease(event)
//	    nextpool.log("info", event.hwaddr .. " is now " .. event.state)
//	end
//
// An optional global hooks table restricts the events passed to on_lease:
//
//	hooks = { events = { "lease-created" }, timeout = "500ms" }
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/core/replacer"
	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
)

const (
	entryPoint     = "on_lease"
	defaultTimeout = time.Second
	queueSize      = 64
)

// ErrNoEntryPoint is returned if a script does not define on_lease
var ErrNoEntryPoint = errors.New("script does not define function " + entryPoint)

type (
	// HookConfig is read from the global hooks table of a script
	HookConfig struct {
		// Events limits the events passed to on_lease. Empty means all
		Events []string `mapstructure:"events"`

		// Timeout bounds a single call to on_lease
		Timeout string `mapstructure:"timeout"`
	}

	// Runner owns a Lua VM and calls on_lease for each queued event. A
	// lua.LState is not safe for concurrent use so all calls happen on
	// the goroutine started by Start
	Runner struct {
		name    string
		vm      *lua.LState
		fn      *lua.LFunction
		events  []caddy.EventName
		timeout time.Duration
		log     log.Logger

		queue chan *events.LeaseEvent
		wg    sync.WaitGroup
		once  sync.Once
	}
)

// Load reads and runs the script at path
func Load(path string, l log.Logger) (*Runner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewRunner(path, bufio.NewReader(f), l)
}

// NewRunner runs the script read from r and prepares calling its
// on_lease function. name is used in error messages
func NewRunner(name string, r io.Reader, l log.Logger) (*Runner, error) {
	vm := lua.NewState()

	runner := &Runner{
		name:    name,
		vm:      vm,
		timeout: defaultTimeout,
		log:     l,
	}

	vm.PreloadModule("nextpool", runner.loader)
	if err := vm.DoString(`nextpool = require("nextpool")`); err != nil {
		vm.Close()
		return nil, err
	}

	fn, err := vm.Load(r, name)
	if err != nil {
		vm.Close()
		return nil, err
	}

	vm.Push(fn)
	if err := vm.PCall(0, lua.MultRet, nil); err != nil {
		vm.Close()
		return nil, err
	}

	entry, ok := vm.GetGlobal(entryPoint).(*lua.LFunction)
	if !ok {
		vm.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNoEntryPoint)
	}
	runner.fn = entry

	if err := runner.readHooks(); err != nil {
		vm.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return runner, nil
}

func (r *Runner) readHooks() error {
	tbl, ok := r.vm.GetGlobal("hooks").(*lua.LTable)
	if !ok {
		return nil
	}

	var cfg HookConfig
	if err := gluamapper.Map(tbl, &cfg); err != nil {
		return fmt.Errorf("invalid hooks table: %w", err)
	}

	for _, n := range cfg.Events {
		if !events.Valid(caddy.EventName(n)) {
			return fmt.Errorf("unknown lease event %q in hooks table", n)
		}
		r.events = append(r.events, caddy.EventName(n))
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid hook timeout %q", cfg.Timeout)
		}
		r.timeout = d
	}

	return nil
}

// Events returns the events the script wants to receive. Empty means all
func (r *Runner) Events() []caddy.EventName {
	return r.events
}

// Start starts the goroutine that calls on_lease
func (r *Runner) Start() error {
	r.queue = make(chan *events.LeaseEvent, queueSize)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for e := range r.queue {
			if err := r.Call(e); err != nil {
				r.log.Errorf("%s: %s", r.name, err)
			}
		}
	}()

	return nil
}

// Stop waits for queued events to be processed and closes the VM
func (r *Runner) Stop() error {
	r.once.Do(func() {
		if r.queue != nil {
			close(r.queue)
			r.wg.Wait()
		}
		r.vm.Close()
	})

	return nil
}

// Enqueue implements events.LeaseEventHook. Events are dropped if the
// runner has not been started or the queue is full
func (r *Runner) Enqueue(_ caddy.EventName, e *events.LeaseEvent) error {
	if r.queue == nil {
		return nil
	}

	select {
	case r.queue <- e:
	default:
		r.log.Warnf("%s: queue full, dropping event %s", r.name, e.ID)
	}

	return nil
}

// Call calls on_lease for e on the calling goroutine
func (r *Runner) Call(e *events.LeaseEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	r.vm.SetContext(ctx)
	defer r.vm.RemoveContext()

	return r.vm.CallByParam(lua.P{
		Fn:      r.fn,
		NRet:    0,
		Protect: true,
	}, r.eventTable(e))
}

func (r *Runner) eventTable(e *events.LeaseEvent) *lua.LTable {
	rep := replacer.NewReplacer(e)
	tbl := r.vm.NewTable()

	for _, key := range []string{"id", "event", "ip", "hwaddr", "state"} {
		tbl.RawSetString(key, lua.LString(rep.Get(key)))
	}

	tbl.RawSetString("expires", lua.LNumber(e.Lease.Expires.Unix()))
	tbl.RawSetString("at", lua.LNumber(e.At.Unix()))

	remaining := 0.0
	if e.Name == events.EventLeaseCreated && e.Lease.Expires.After(e.At) {
		remaining = e.Lease.Expires.Sub(e.At).Seconds()
	}
	tbl.RawSetString("remaining", lua.LNumber(remaining))

	return tbl
}

// loader exposes the nextpool module to scripts
func (r *Runner) loader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"log": r.luaLog,
	})

	L.Push(mod)
	return 1
}

// luaLog implements nextpool.log(level, message)
func (r *Runner) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	l := r.log.WithField("script", r.name)

	switch level {
	case "debug":
		l.Debug(msg)
	case "info":
		l.Info(msg)
	case "warn":
		l.Warn(msg)
	case "error":
		l.Error(msg)
	default:
		L.ArgError(1, "expected one of debug, info, warn or error")
	}

	return 0
}
