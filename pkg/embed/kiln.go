// Package kiln embeds the interpreter in a Go program.
//
//	in := kiln.New()
//	defer in.Close()
//	res, err := in.Run("main.kn", `print("hello");`)
package kiln

import (
	"errors"
	"io"
	"os"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/stdlib"
	"github.com/funvibe/kiln/internal/vm"
)

// Types re-exported for hosts and native module authors.
type (
	VM          = vm.VM
	Value       = vm.Value
	Library     = vm.ObjLibrary
	NativeFn    = vm.NativeFn
	NativeClass = vm.NativeClassDef
	Method      = vm.NativeMethod
	Instance    = vm.ObjNativeInstance
	LibraryInit = vm.LibraryInit
	Settings    = config.Settings
)

// Interpreter is one embedded interpreter instance. It is not safe for
// concurrent use.
type Interpreter struct {
	machine *vm.VM
}

// Result is the outcome of running a unit. ExitCode is -1 unless the script
// called exit.
type Result struct {
	OK       bool
	ExitCode int
	Value    Value
}

type options struct {
	settings *config.Settings
	out      io.Writer
	errOut   io.Writer
	stdlib   bool
}

type Option func(*options)

// WithSettings replaces the default settings.
func WithSettings(s *config.Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithOutput redirects print.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

func WithErrorOutput(w io.Writer) Option {
	return func(o *options) { o.errOut = w }
}

// WithoutStdlib leaves the bundled @ libraries unregistered.
func WithoutStdlib() Option {
	return func(o *options) { o.stdlib = false }
}

// New creates an interpreter.
func New(opts ...Option) *Interpreter {
	o := options{out: os.Stdout, errOut: os.Stderr, stdlib: true}
	for _, opt := range opts {
		opt(&o)
	}
	machine := vm.New(o.settings)
	machine.SetOutput(o.out)
	machine.SetErrorOutput(o.errOut)
	if o.stdlib {
		stdlib.Register(machine)
	}
	return &Interpreter{machine: machine}
}

// Close releases every object, running host Free callbacks.
func (in *Interpreter) Close() {
	in.machine.Close()
}

// VM exposes the underlying machine for hosts that need the low-level API.
func (in *Interpreter) VM() *VM { return in.machine }

func (in *Interpreter) SetOutput(w io.Writer)      { in.machine.SetOutput(w) }
func (in *Interpreter) SetErrorOutput(w io.Writer) { in.machine.SetErrorOutput(w) }
func (in *Interpreter) SetUserData(data any)       { in.machine.SetUserData(data) }
func (in *Interpreter) UserData() any              { return in.machine.UserData() }

// Run compiles and runs src as the top-level unit. Globals persist across
// calls. A script that calls exit ends the run without error.
func (in *Interpreter) Run(path, src string) (Result, error) {
	v, err := in.machine.Interpret(path, src)
	return result(v, err)
}

// RunFile runs the file at path.
func (in *Interpreter) RunFile(path string) (Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	return in.Run(path, string(src))
}

// Call invokes a callable value re-entrantly.
func (in *Interpreter) Call(fn Value, args ...Value) (Result, error) {
	v, err := in.machine.Call(fn, args...)
	return result(v, err)
}

// CallGlobal looks up a global by name and calls it with converted Go
// arguments.
func (in *Interpreter) CallGlobal(name string, args ...any) (Result, error) {
	fn, ok := in.machine.Global(name)
	if !ok {
		return Result{ExitCode: -1}, errors.New("undefined global " + name)
	}
	vals := make([]Value, len(args))
	for i, a := range args {
		v, err := in.machine.FromGo(a)
		if err != nil {
			return Result{ExitCode: -1}, err
		}
		// Keep earlier arguments alive while later ones allocate.
		if v.IsObj() {
			in.machine.Pin(v.Obj)
			defer in.machine.Unpin(v.Obj)
		}
		vals[i] = v
	}
	return in.Call(fn, vals...)
}

func result(v Value, err error) (Result, error) {
	var exit *vm.ExitError
	switch {
	case errors.As(err, &exit):
		return Result{OK: exit.Code == 0, ExitCode: exit.Code}, nil
	case err != nil:
		return Result{ExitCode: -1}, err
	}
	return Result{OK: true, ExitCode: -1, Value: v}, nil
}

// Global returns the value bound to name.
func (in *Interpreter) Global(name string) (Value, bool) {
	return in.machine.Global(name)
}

// Define binds a Go value, converted with FromGo, as a global.
func (in *Interpreter) Define(name string, value any) error {
	v, err := in.machine.FromGo(value)
	if err != nil {
		return err
	}
	in.machine.Define(name, v)
	return nil
}

// DefineNative binds a host function. arity -1 accepts any argument count.
func (in *Interpreter) DefineNative(name string, arity int, fn NativeFn) {
	in.machine.DefineNative(name, arity, fn)
}

func (in *Interpreter) DefineClass(class NativeClass) {
	in.machine.DefineClass(class)
}

// RegisterLibrary makes init importable as import("@name").
func (in *Interpreter) RegisterLibrary(name string, init LibraryInit) {
	in.machine.RegisterLibrary(name, init)
}

// ToGo converts a script value to Go data.
func ToGo(v Value) (any, error) {
	return vm.ToGo(v)
}

// FromGo converts Go data to a script value owned by this interpreter.
func (in *Interpreter) FromGo(x any) (Value, error) {
	return in.machine.FromGo(x)
}
