package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when a script runs past its budget.
var ErrTimeout = errors.New("scripting: execution timeout")

// VM wraps a goja runtime with sandbox restrictions. Calls are serialised;
// a goja runtime is not safe for concurrent use.
type VM struct {
	name    string
	runtime *goja.Runtime
	mu      sync.Mutex
}

const scriptCallTimeout = 100 * time.Millisecond

// NewVM creates a sandboxed runtime. Lines a script writes with log() go to
// the global zerolog logger at debug level, tagged with name.
func NewVM(name string) *VM {
	vm := &VM{
		name:    name,
		runtime: goja.New(),
	}
	vm.injectGlobalFunctions()
	return vm
}

// injectGlobalFunctions registers log and console.log and blocks globals a
// formula has no business touching.
func (vm *VM) injectGlobalFunctions() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		log.Debug().Str("script", vm.name).Msg(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

// Run sets globals and runs a compiled program, returning its completion
// value.
func (vm *VM) Run(prog *goja.Program, globals map[string]any) (goja.Value, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for k, v := range globals {
		if err := vm.runtime.Set(k, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}
	return vm.runWithTimeout(scriptCallTimeout, func() (goja.Value, error) {
		return vm.runtime.RunProgram(prog)
	})
}

// runWithTimeout interrupts the runtime if fn outlives timeout. Callers hold
// vm.mu.
func (vm *VM) runWithTimeout(timeout time.Duration, fn func() (goja.Value, error)) (goja.Value, error) {
	timer := time.AfterFunc(timeout, func() {
		vm.runtime.Interrupt(ErrTimeout)
	})
	defer func() {
		timer.Stop()
		vm.runtime.ClearInterrupt()
	}()

	v, err := fn()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, err
	}
	return v, nil
}
