package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/modules"
)

var log = commonlog.GetLogger("kiln.vm")

// Growth increment when the value stack needs to expand
const StackGrowthIncrement = 1024

// Context is polled every contextCheckInterval dispatched instructions.
const contextCheckInterval = 1024

// formatFilePath formats a file path for display in stack traces
func formatFilePath(file string) string {
	if file == "" {
		return "<script>"
	}

	// Make path relative if it's absolute
	if filepath.IsAbs(file) {
		if wd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(wd, file); err == nil {
				file = rel
			}
		}
	}
	return file
}

// CallFrame represents a single ongoing function call
type CallFrame struct {
	closure *ObjClosure // nil for native frames
	native  *ObjNative  // set for native function frames
	name    string      // native frames only, for traces
	chunk   *Chunk      // shortcut to closure.Fn.Chunk
	ip      int         // Instruction pointer within this frame's chunk
	base    int         // Stack slot of the callee; locals start here
}

// Module is one entry of the module table. Index 0 is the top-level unit.
type Module struct {
	Name    string
	Path    string // import path as written by the first importer
	Key     string // absolute path without extension, or "@name"
	Done    bool
	Result  Value
	Source  string
	Globals Map
	Fn      *ObjFn
}

// LibraryInit populates a library's symbol table. Statically linked
// libraries and dynamically loaded native modules share this signature.
type LibraryInit func(vm *VM, lib *ObjLibrary) error

// ExitError is returned by Run when a script calls exit(code).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// VM is the virtual machine that executes bytecode. One VM is one
// interpreter instance; it must not be used from several goroutines at once.
type VM struct {
	stack []Value
	sp    int // Stack pointer (points to next free slot)

	frames     []CallFrame // preallocated to the frame limit
	frameCount int
	frame      *CallFrame

	// Linked list of open upvalues, sorted by stack location (highest first)
	openUpvalues *ObjUpvalue

	globals     Map // builtins and host definitions, shared by all modules
	modules     []*Module
	moduleIndex map[string]int

	arrayMethods  Map
	stringMethods Map
	tableMethods  Map

	cwd *ObjString

	heap     Heap
	compiler *Compiler // innermost function being compiled

	libraries map[string]LibraryInit
	resolver  *modules.Resolver
	settings  *config.Settings

	out    io.Writer
	errOut io.Writer

	userData any
	ctx      context.Context
	ops      int

	pins      map[Object]int
	startTime time.Time
}

// New creates a VM with settings, or the defaults when settings is nil.
func New(settings *config.Settings) *VM {
	if settings == nil {
		settings = config.Default()
	}
	maxFrames := settings.VM.MaxFrames
	if maxFrames <= 0 {
		maxFrames = config.MaxFrames
	}

	vm := &VM{
		stack:       make([]Value, config.InitialStackSize),
		frames:      make([]CallFrame, maxFrames),
		modules:     []*Module{{Name: "<script>"}},
		moduleIndex: make(map[string]int),
		libraries:   make(map[string]LibraryInit),
		resolver:    modules.NewResolver(settings.Modules.SearchPaths),
		settings:    settings,
		out:         os.Stdout,
		errOut:      os.Stderr,
		pins:        make(map[Object]int),
		startTime:   time.Now(),
	}
	vm.heap.nextGC = settings.GC.InitialThreshold
	if vm.heap.nextGC <= 0 {
		vm.heap.nextGC = config.DefaultGCThreshold
	}
	vm.heap.growth = settings.GC.GrowthFactor
	if vm.heap.growth < 1 {
		vm.heap.growth = config.DefaultGCGrowthFactor
	}
	vm.heap.stress = settings.GC.Stress
	vm.heap.disabled = settings.GC.Disabled

	if wd, err := os.Getwd(); err == nil {
		vm.heap.pause()
		vm.cwd = vm.NewString(wd)
		vm.heap.resume()
	}

	vm.defineBuiltins()
	log.Debugf("new interpreter: gc threshold %d, growth %.1f, stress %t, max frames %d",
		vm.heap.nextGC, vm.heap.growth, vm.heap.stress, maxFrames)
	return vm
}

// SetOutput sets the writer print uses.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetErrorOutput sets the writer diagnostics are rendered to by hosts.
func (vm *VM) SetErrorOutput(w io.Writer) {
	vm.errOut = w
}

func (vm *VM) Output() io.Writer      { return vm.out }
func (vm *VM) ErrorOutput() io.Writer { return vm.errOut }

// SetContext sets the context for cancellation. It is polled while
// bytecode runs.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// Context returns the context set by SetContext, or context.Background.
func (vm *VM) Context() context.Context {
	if vm.ctx == nil {
		return context.Background()
	}
	return vm.ctx
}

func (vm *VM) SetUserData(data any) { vm.userData = data }
func (vm *VM) UserData() any        { return vm.userData }

// Settings returns the settings the VM was created with.
func (vm *VM) Settings() *config.Settings { return vm.settings }

// Stack operations

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		growBy := StackGrowthIncrement
		if len(vm.stack) > growBy {
			growBy = len(vm.stack)
		}
		newStack := make([]Value, len(vm.stack)+growBy)
		copy(newStack, vm.stack[:vm.sp])
		vm.stack = newStack
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = Value{}
	return v
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.sp-1-distance]
}

// Read helpers

func (vm *VM) readByte() byte {
	b := vm.frame.chunk.Code[vm.frame.ip]
	vm.frame.ip++
	return b
}

func (vm *VM) readUint16() int {
	high := vm.readByte()
	low := vm.readByte()
	return int(high)<<8 | int(low)
}

func (vm *VM) readConstant() Value {
	return vm.frame.chunk.Constants[vm.readUint16()]
}

func (vm *VM) readString() *ObjString {
	return vm.readConstant().Obj.(*ObjString)
}

// Upvalues

// captureUpvalue creates or reuses an upvalue pointing to the given stack location
func (vm *VM) captureUpvalue(location int) *ObjUpvalue {
	var prev *ObjUpvalue
	upvalue := vm.openUpvalues

	// The list is sorted by location (highest first)
	for upvalue != nil && upvalue.Location > location {
		prev = upvalue
		upvalue = upvalue.Next
	}

	if upvalue != nil && upvalue.Location == location {
		return upvalue
	}

	created := vm.newUpvalue(location)
	created.Next = upvalue

	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes all upvalues that point to stack locations >= lastSlot
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Location >= lastSlot {
		upvalue := vm.openUpvalues
		upvalue.Closed = vm.stack[upvalue.Location]
		upvalue.Location = -1
		vm.openUpvalues = upvalue.Next
		upvalue.Next = nil
	}
}

// Checkpoints

// checkpoint is the execution state saved at a run or call boundary and
// restored when an error unwinds to it.
type checkpoint struct {
	sp         int
	frameCount int
	handles    int
	recording  int
	pauses     int
	modules    int
}

func (vm *VM) save() checkpoint {
	return checkpoint{
		sp:         vm.sp,
		frameCount: vm.frameCount,
		handles:    len(vm.heap.handles),
		recording:  vm.heap.recording,
		pauses:     vm.heap.pauses,
		modules:    len(vm.modules),
	}
}

func (vm *VM) restore(cp checkpoint) {
	vm.closeUpvalues(cp.sp)
	for i := cp.sp; i < vm.sp; i++ {
		vm.stack[i] = Value{}
	}
	vm.sp = cp.sp
	vm.frameCount = cp.frameCount
	if vm.frameCount > 0 {
		vm.frame = &vm.frames[vm.frameCount-1]
	} else {
		vm.frame = nil
	}
	vm.heap.handles = vm.heap.handles[:cp.handles]
	vm.heap.recording = cp.recording
	vm.heap.pauses = cp.pauses

	// Modules that failed half way can be imported again.
	for _, m := range vm.modules[cp.modules:] {
		if !m.Done {
			delete(vm.moduleIndex, m.Key)
		}
	}
}

// Errors

// position returns the source location of the innermost script frame.
func (vm *VM) position() diagnostics.Pos {
	for i := vm.frameCount - 1; i >= 0; i-- {
		if f := &vm.frames[i]; f.closure != nil {
			return frameLocation(f)
		}
	}
	return diagnostics.Pos{}
}

func frameLocation(f *CallFrame) diagnostics.Pos {
	ip := f.ip - 1
	if ip < 0 {
		ip = 0
	}
	line, col := f.chunk.Location(ip)
	return diagnostics.Pos{Path: f.chunk.Path, Line: line, Column: col}
}

// runtimeError builds a runtime diagnostic at the current instruction.
func (vm *VM) runtimeError(code diagnostics.ErrorCode, args ...interface{}) error {
	return diagnostics.NewErrorAt(code, vm.position(), args...)
}

// hostError builds a host-originated diagnostic at the current instruction.
func (vm *VM) hostError(code diagnostics.ErrorCode, args ...interface{}) error {
	e := diagnostics.NewErrorAt(code, vm.position(), args...)
	e.Kind = diagnostics.Host
	return e
}

// fail turns err into a diagnostic carrying one trace line per frame above
// stopAt. Frames are left in place; the boundary restores its checkpoint.
func (vm *VM) fail(err error, stopAt int) error {
	var exit *ExitError
	if errors.As(err, &exit) {
		return err
	}

	de := diagnostics.AsError(err, vm.position()).Clone()
	if de.Pos.Line == 0 {
		if pos := vm.position(); pos.Line != 0 {
			de.Pos = pos
		}
	}
	for i := vm.frameCount - 1; i >= stopAt; i-- {
		de.Trace = append(de.Trace, vm.traceLine(&vm.frames[i]))
	}
	de.More = stopAt > 0
	return de
}

func (vm *VM) traceLine(f *CallFrame) string {
	if f.closure == nil {
		return f.name + "() <native>"
	}
	return fmt.Sprintf("%s %s", vm.frameName(f.closure.Fn), frameLocation(f))
}

func (vm *VM) frameName(fn *ObjFn) string {
	switch {
	case fn.TopLevel && fn.Module > 0:
		m := vm.modules[fn.Module]
		if m.Path != "" {
			return fmt.Sprintf("import(%q)", m.Path)
		}
		return fmt.Sprintf("import(%q)", m.Name)
	case fn.TopLevel:
		return "<script>"
	case fn.ClassName != "":
		return fn.ClassName + "." + fn.Name + "()"
	case fn.Name != "":
		return fn.Name + "()"
	default:
		return "<anonymous>()"
	}
}

// Entry points

// Interpret compiles src as the top-level unit and runs it. The value of a
// trailing expression statement, or of a top-level return, is the result.
func (vm *VM) Interpret(path, src string) (Value, error) {
	main := vm.modules[0]
	if path != "" {
		if abs, err := filepath.Abs(config.TrimSourceExt(path)); err == nil {
			main.Key = abs
			main.Name = config.ModuleName(path)
			vm.moduleIndex[abs] = 0
		}
	}
	main.Done = false
	main.Source = src

	fn, err := vm.Compile(path, src, 0)
	if err != nil {
		return NilVal(), err
	}
	main.Fn = fn

	result, err := vm.runFunction(fn)
	main.Done = true
	if err == nil {
		main.Result = result
	}
	return result, err
}

// runFunction calls a compiled top-level function with no arguments.
func (vm *VM) runFunction(fn *ObjFn) (Value, error) {
	cp := vm.save()

	vm.push(ObjVal(fn))
	closure := vm.newClosure(fn)
	vm.stack[vm.sp-1] = ObjVal(closure)

	if err := vm.callClosure(closure, 0); err != nil {
		err = vm.fail(err, cp.frameCount)
		vm.restore(cp)
		return NilVal(), err
	}

	result, err := vm.run(cp.frameCount)
	if err != nil {
		vm.restore(cp)
		return NilVal(), err
	}
	vm.sp = cp.sp
	return result, nil
}

// Call invokes callee with args and runs it to completion. It may be used
// re-entrantly from native functions; an error restores the interpreter to
// the state it had when Call was entered.
func (vm *VM) Call(callee Value, args ...Value) (Value, error) {
	cp := vm.save()

	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}

	if err := vm.callValue(callee, len(args)); err != nil {
		err = vm.fail(err, cp.frameCount)
		vm.restore(cp)
		return NilVal(), err
	}

	var result Value
	if vm.frameCount > cp.frameCount {
		var err error
		result, err = vm.run(cp.frameCount)
		if err != nil {
			vm.restore(cp)
			return NilVal(), err
		}
	} else {
		result = vm.peek(0)
	}
	vm.sp = cp.sp
	return result, nil
}

// run executes instructions until the frame at index stopAt returns.
func (vm *VM) run(stopAt int) (Value, error) {
	for {
		vm.ops++
		if vm.ops%contextCheckInterval == 0 && vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return NilVal(), vm.fail(vm.runtimeError(diagnostics.ErrR017, vm.ctx.Err()), stopAt)
			default:
			}
		}

		op := Opcode(vm.readByte())
		if op == OP_RETURN {
			result := vm.pop()
			vm.returnFrom(result)
			if vm.frameCount == stopAt {
				return result, nil
			}
			continue
		}

		if err := vm.executeOneOp(op); err != nil {
			return NilVal(), vm.fail(err, stopAt)
		}
	}
}

// returnFrom pops the current frame and pushes result in place of its
// callee slot.
func (vm *VM) returnFrom(result Value) {
	frame := vm.frame
	fn := frame.closure.Fn

	if fn.Initializer && !(fn.Fallible && result.IsNil()) {
		result = vm.stack[frame.base]
	}
	if fn.TopLevel && fn.Module > 0 {
		m := vm.modules[fn.Module]
		m.Result = result
		m.Done = true
		log.Debugf("module %s initialized", m.Name)
	}

	vm.closeUpvalues(frame.base)
	vm.frameCount--
	for i := frame.base; i < vm.sp; i++ {
		vm.stack[i] = Value{}
	}
	vm.sp = frame.base
	if vm.frameCount > 0 {
		vm.frame = &vm.frames[vm.frameCount-1]
	} else {
		vm.frame = nil
	}
	vm.push(result)
}
