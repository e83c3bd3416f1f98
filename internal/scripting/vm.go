package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

var ErrScriptTimeout = errors.New("script timed out")

// LogEntry is one log() line from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM is a sandboxed goja runtime. The runtime is only ever touched by one
// goroutine at a time; Interrupt is the exception goja allows.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	stopRequested bool
	stopReason    string
	resetStats    bool
}

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 1 * time.Second
)

// blockedGlobals are removed before any user code runs.
var blockedGlobals = []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"}

func NewVM(gameIDs []string) *VM {
	vm := &VM{
		runtime: goja.New(),
		maxLogs: 500,
	}
	vm.injectGlobalFunctions()
	injectConstants(vm.runtime, gameIDs)
	return vm
}

func (vm *VM) injectGlobalFunctions() {
	r := vm.runtime

	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	}
	r.Set("log", logFn)
	console := r.NewObject()
	_ = console.Set("log", logFn)
	r.Set("console", console)

	// stop([reason]) ends the session after the current dobet().
	r.Set("stop", func(call goja.FunctionCall) goja.Value {
		vm.mu.Lock()
		vm.stopRequested = true
		if len(call.Arguments) > 0 {
			vm.stopReason = call.Arguments[0].String()
		}
		vm.mu.Unlock()
		r.Set("running", false)
		return goja.Undefined()
	})

	r.Set("sleep", func(call goja.FunctionCall) goja.Value {
		ms := 0
		if len(call.Arguments) > 0 {
			ms = int(call.Arguments[0].ToInteger())
		}
		r.Set("sleeptime", ms)
		return goja.Undefined()
	})

	r.Set("resetstats", func(goja.FunctionCall) goja.Value {
		vm.mu.Lock()
		vm.resetStats = true
		vm.mu.Unlock()
		return goja.Undefined()
	})

	for _, name := range blockedGlobals {
		r.Set(name, goja.Undefined())
	}
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// Execute runs the script body once so it can define dobet().
func (vm *VM) Execute(source string) error {
	return vm.runWithTimeout(scriptInitTimeout, func() error {
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasFunc reports whether the script defined a global function name.
func (vm *VM) HasFunc(name string) bool {
	_, ok := goja.AssertFunction(vm.runtime.Get(name))
	return ok
}

// Call invokes a global script function with no arguments.
func (vm *VM) Call(name string) error {
	return vm.runWithTimeout(scriptCallTimeout, func() error {
		fn, ok := goja.AssertFunction(vm.runtime.Get(name))
		if !ok {
			return fmt.Errorf("%s() is not defined", name)
		}
		if _, err := fn(goja.Undefined()); err != nil {
			return fmt.Errorf("%s() error: %w", name, err)
		}
		return nil
	})
}

// StopRequested reports whether the script called stop() and why.
func (vm *VM) StopRequested() (bool, string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stopRequested, vm.stopReason
}

// TakeResetStats reports a pending resetstats() and clears it.
func (vm *VM) TakeResetStats() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	r := vm.resetStats
	vm.resetStats = false
	return r
}

func (vm *VM) SetVariables(vars *Variables) { injectVariables(vm.runtime, vars) }

func (vm *VM) SyncVariables(vars *Variables) { syncFromVM(vm.runtime, vars) }

// TakeSleep returns the requested pause and clears it.
func (vm *VM) TakeSleep() time.Duration {
	ms := toInt(vm.runtime.Get("sleeptime"))
	vm.runtime.Set("sleeptime", 0)
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (vm *VM) Logs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

// runWithTimeout interrupts a runaway script. The runtime stays usable
// after ClearInterrupt.
func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		vm.runtime.Interrupt(ErrScriptTimeout)
		err := <-done
		vm.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrScriptTimeout, err)
		}
		return ErrScriptTimeout
	}
}
