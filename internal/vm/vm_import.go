package vm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/modules"
)

// importModule replaces the import path on top of the stack with the
// module's result. A source module not yet loaded is compiled and its body
// pushed as a new frame; its result arrives when that frame returns.
func (vm *VM) importModule(path string) error {
	if strings.HasPrefix(path, config.HostLibraryPrefix) {
		return vm.importLibrary(path)
	}

	res, err := vm.resolver.Resolve(vm.importBase(), path)
	if err != nil {
		if errors.Is(err, modules.ErrNotFound) {
			return vm.runtimeError(diagnostics.ErrR010, path)
		}
		return vm.hostError(diagnostics.ErrH001, err.Error())
	}

	if done, err := vm.cachedModule(res.Key); done || err != nil {
		return err
	}

	if res.Kind == modules.Native {
		return vm.loadNative(res)
	}
	return vm.loadSource(path, res)
}

// importBase is the directory imports in the running chunk resolve against.
func (vm *VM) importBase() string {
	if p := vm.frame.chunk.Path; p != "" {
		return modules.ModuleDir(p)
	}
	if vm.cwd != nil {
		return vm.cwd.Chars
	}
	return "."
}

// cachedModule pushes the result of an already imported module. A module
// that is still initializing is part of an import loop.
func (vm *VM) cachedModule(key string) (bool, error) {
	idx, ok := vm.moduleIndex[key]
	if !ok {
		return false, nil
	}
	m := vm.modules[idx]
	if !m.Done {
		return true, vm.runtimeError(diagnostics.ErrR005, m.Name)
	}
	vm.stack[vm.sp-1] = m.Result
	return true, nil
}

func (vm *VM) addModule(name, key string) *Module {
	m := &Module{Name: name, Key: key}
	vm.moduleIndex[key] = len(vm.modules)
	vm.modules = append(vm.modules, m)
	return m
}

func (vm *VM) loadSource(path string, res modules.Resolved) error {
	src, err := os.ReadFile(res.File)
	if err != nil {
		return vm.hostError(diagnostics.ErrH001, err.Error())
	}

	idx := len(vm.modules)
	m := vm.addModule(res.Name, res.Key)
	m.Path = path
	m.Source = string(src)
	log.Debugf("compiling module %s from %s", res.Name, res.File)

	fn, err := vm.Compile(displayPath(res.File), m.Source, idx)
	if err != nil {
		return err
	}
	m.Fn = fn

	closure := vm.newClosure(fn)
	vm.stack[vm.sp-1] = ObjVal(closure)
	return vm.callClosure(closure, 0)
}

// displayPath shortens an absolute module path relative to the working
// directory, matching how paths given on the command line appear.
func displayPath(file string) string {
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return file
}

func (vm *VM) loadNative(res modules.Resolved) error {
	handle, sym, err := modules.OpenNative(res.File)
	if err != nil {
		return vm.hostError(diagnostics.ErrH002, res.File, err.Error())
	}

	var init LibraryInit
	switch f := sym.(type) {
	case func(*VM, *ObjLibrary) error:
		init = f
	case *func(*VM, *ObjLibrary) error:
		init = *f
	default:
		return vm.hostError(diagnostics.ErrH002, res.File, config.NativeModuleInit+" has the wrong signature")
	}
	return vm.openLibrary(res.Name, res.Key, res.File, handle, init)
}

func (vm *VM) importLibrary(name string) error {
	if done, err := vm.cachedModule(name); done || err != nil {
		return err
	}
	init, ok := vm.libraries[name]
	if !ok {
		return vm.runtimeError(diagnostics.ErrR010, name)
	}
	return vm.openLibrary(name, name, "", nil, init)
}

// openLibrary creates the library object for a native module, lets init
// populate it and leaves it on the stack as the import's result.
func (vm *VM) openLibrary(name, key, path string, handle any, init LibraryInit) error {
	m := vm.addModule(name, key)
	lib := vm.NewLibrary(name, path)
	lib.Handle = handle
	m.Result = ObjVal(lib)

	handles := len(vm.heap.handles)
	vm.heap.recording++
	err := init(vm, lib)
	vm.heap.recording--
	vm.heap.handles = vm.heap.handles[:handles]
	if err != nil {
		var de *diagnostics.Error
		if errors.As(err, &de) {
			return de
		}
		return vm.hostError(diagnostics.ErrH002, name, err.Error())
	}

	m.Done = true
	log.Infof("loaded library %s (%d symbols)", name, lib.Symbols.Len())
	vm.stack[vm.sp-1] = m.Result
	return nil
}
