package vm

import (
	"fmt"
	"strings"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
)

// Host API. Everything here may be called from the embedding program and
// from native functions and module initializers.

// Define binds name in the interpreter-wide globals, visible from every
// module unless a module defines the same name.
func (vm *VM) Define(name string, value Value) {
	vm.heap.pause()
	defer vm.heap.resume()
	vm.mapSet(nil, &vm.globals, vm.StringVal(name), value)
}

// DefineNative defines a global host function. arity -1 accepts any number
// of arguments.
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) *ObjNative {
	vm.heap.pause()
	defer vm.heap.resume()
	n := vm.NewNative(name, arity, fn)
	vm.Define(name, ObjVal(n))
	return n
}

// NativeMethod is one method of a host class.
type NativeMethod struct {
	Arity int
	Fn    NativeFn
}

// NativeClassDef describes a host class. Init runs with the new instance
// as receiver; when Fallible is set and Init returns nil the constructor
// call evaluates to nil. Free runs when an instance is collected.
type NativeClassDef struct {
	Name      string
	Size      int
	Init      NativeFn
	InitArity int
	Fallible  bool
	Free      func(inst *ObjNativeInstance)
	Mark      func(inst *ObjNativeInstance, mark func(Value))
	Methods   map[string]NativeMethod
}

// NewNativeClass builds a host class from def. The caller must make it
// reachable, typically through Define or Export.
func (vm *VM) NewNativeClass(def NativeClassDef) *ObjNativeClass {
	vm.heap.pause()
	defer vm.heap.resume()

	class := &ObjNativeClass{
		Name:      def.Name,
		Size:      def.Size,
		Init:      def.Init,
		InitArity: def.InitArity,
		Fallible:  def.Fallible,
		Free:      def.Free,
		Mark:      def.Mark,
	}
	vm.allocate(class, KindNativeClass, baseSizes[KindNativeClass])

	for name, m := range def.Methods {
		n := vm.NewNative(def.Name+"."+name, m.Arity, m.Fn)
		vm.mapSet(class, &class.Methods, vm.StringVal(name), ObjVal(n))
	}
	return class
}

// DefineClass creates a host class and binds it as a global.
func (vm *VM) DefineClass(def NativeClassDef) *ObjNativeClass {
	vm.heap.pause()
	defer vm.heap.resume()
	class := vm.NewNativeClass(def)
	vm.Define(def.Name, ObjVal(class))
	return class
}

// Export adds a symbol to a library's table.
func (vm *VM) Export(lib *ObjLibrary, name string, value Value) {
	vm.heap.pause()
	defer vm.heap.resume()
	vm.mapSet(lib, &lib.Symbols, vm.StringVal(name), value)
}

// ExportNative exports a host function from a library.
func (vm *VM) ExportNative(lib *ObjLibrary, name string, arity int, fn NativeFn) *ObjNative {
	vm.heap.pause()
	defer vm.heap.resume()
	n := vm.NewNative(lib.Name+"."+name, arity, fn)
	vm.Export(lib, name, ObjVal(n))
	return n
}

// ExportClass exports a host class from a library.
func (vm *VM) ExportClass(lib *ObjLibrary, def NativeClassDef) *ObjNativeClass {
	vm.heap.pause()
	defer vm.heap.resume()
	class := vm.NewNativeClass(def)
	vm.Export(lib, def.Name, ObjVal(class))
	return class
}

// RegisterLibrary makes a statically linked library importable as
// import("@name").
func (vm *VM) RegisterLibrary(name string, init LibraryInit) {
	if !strings.HasPrefix(name, config.HostLibraryPrefix) {
		name = config.HostLibraryPrefix + name
	}
	vm.libraries[name] = init
}

// Global looks name up in the top-level unit's globals, then in the
// interpreter-wide ones.
func (vm *VM) Global(name string) (Value, bool) {
	if v, ok := vm.modules[0].Globals.GetString(name); ok {
		return v, true
	}
	return vm.globals.GetString(name)
}

// Pin keeps o alive across collections until a matching Unpin.
func (vm *VM) Pin(o Object) {
	vm.pins[o]++
}

func (vm *VM) Unpin(o Object) {
	if n := vm.pins[o]; n > 1 {
		vm.pins[o] = n - 1
	} else {
		delete(vm.pins, o)
	}
}

// Close frees every object, running host Free callbacks. The VM must not be
// used afterwards.
func (vm *VM) Close() {
	freed := vm.freeAll()
	vm.globals = Map{}
	vm.modules = nil
	vm.moduleIndex = nil
	log.Debugf("interpreter closed, %d objects freed", freed)
}

// HostError reports a failure from a native function. The interpreter
// attaches the script position and trace.
func HostError(format string, args ...interface{}) error {
	return diagnostics.NewErrorAt(diagnostics.ErrH001, diagnostics.Pos{}, fmt.Sprintf(format, args...))
}

// Argument helpers for native functions.

func ArgString(fn string, args []Value, i int) (string, error) {
	if i >= len(args) {
		return "", HostError("%s: missing argument %d", fn, i+1)
	}
	s, ok := args[i].AsString()
	if !ok {
		return "", HostError("%s: argument %d must be a string, got %s", fn, i+1, args[i].TypeName())
	}
	return s.Chars, nil
}

func ArgNumber(fn string, args []Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, HostError("%s: missing argument %d", fn, i+1)
	}
	if !args[i].IsNumber() {
		return 0, HostError("%s: argument %d must be a number, got %s", fn, i+1, args[i].TypeName())
	}
	return args[i].AsNumber(), nil
}

// maxExactInt is the largest magnitude at which every integer is a float64.
const maxExactInt = 1 << 53

func ArgInt(fn string, args []Value, i int) (int, error) {
	if i >= len(args) {
		return 0, HostError("%s: missing argument %d", fn, i+1)
	}
	if !args[i].IsInteger() {
		return 0, HostError("%s: argument %d must be an integer, got %s", fn, i+1, args[i].TypeName())
	}
	n := args[i].AsNumber()
	if n > maxExactInt || n < -maxExactInt {
		return 0, HostError("%s: argument %d is out of range: %s", fn, i+1, args[i])
	}
	return int(n), nil
}
