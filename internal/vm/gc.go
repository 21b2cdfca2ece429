package vm

import (
	"time"

	"github.com/tliron/commonlog"
)

var gcLog = commonlog.GetLogger("kiln.gc")

// GCStats holds cumulative collector statistics.
type GCStats struct {
	Collections   int
	ObjectsFreed  int
	BytesFreed    int
	StringsFreed  int // intern table entries dropped
	LastDuration  time.Duration
	BytesInUse    int
	NextThreshold int
}

// GCStats returns a snapshot of the collector statistics.
func (vm *VM) GCStats() GCStats {
	s := vm.heap.stats
	s.BytesInUse = vm.heap.bytes
	s.NextThreshold = vm.heap.nextGC
	return s
}

// CollectGarbage runs a full stop-the-world collection and returns the
// number of objects freed.
func (vm *VM) CollectGarbage() int {
	h := &vm.heap
	if h.collecting {
		return 0
	}
	h.collecting = true
	defer func() { h.collecting = false }()

	start := time.Now()
	before := h.bytes

	vm.markRoots()
	vm.traceReferences()
	interned := h.strings.removeUnmarked()
	freed, freedBytes := vm.sweep()

	if next := int(float64(h.bytes) * h.growth); next > h.nextGC {
		h.nextGC = next
	}

	h.stats.Collections++
	h.stats.ObjectsFreed += freed
	h.stats.BytesFreed += freedBytes
	h.stats.StringsFreed += interned
	h.stats.LastDuration = time.Since(start)

	gcLog.Debugf("collection %d: freed %d objects (%d strings), %d -> %d bytes, next at %d, took %s",
		h.stats.Collections, freed, interned, before, h.bytes, h.nextGC, h.stats.LastDuration)
	return freed
}

func (vm *VM) markValue(v Value) {
	if v.Type == ValObj {
		vm.markObject(v.Obj)
	}
}

func (vm *VM) markObject(o Object) {
	if o == nil {
		return
	}
	hd := o.header()
	if hd.marked {
		return
	}
	hd.marked = true
	vm.heap.gray = append(vm.heap.gray, o)
}

func (vm *VM) markMap(m *Map) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.key.Type != ValNil {
			vm.markValue(e.key)
			vm.markValue(e.value)
		}
	}
}

func (vm *VM) markRoots() {
	for i := 0; i < vm.sp; i++ {
		vm.markValue(vm.stack[i])
	}

	for i := 0; i < vm.frameCount; i++ {
		f := &vm.frames[i]
		if f.closure != nil {
			vm.markObject(f.closure)
		}
		if f.native != nil {
			vm.markObject(f.native)
		}
	}

	for u := vm.openUpvalues; u != nil; u = u.Next {
		vm.markObject(u)
	}

	vm.markMap(&vm.globals)
	for _, m := range vm.modules {
		vm.markValue(m.Result)
		vm.markMap(&m.Globals)
		if m.Fn != nil {
			vm.markObject(m.Fn)
		}
	}

	vm.markMap(&vm.arrayMethods)
	vm.markMap(&vm.stringMethods)
	vm.markMap(&vm.tableMethods)
	if vm.cwd != nil {
		vm.markObject(vm.cwd)
	}

	for _, o := range vm.heap.handles {
		vm.markObject(o)
	}
	for o := range vm.pins {
		vm.markObject(o)
	}

	for c := vm.compiler; c != nil; c = c.enclosing {
		vm.markObject(c.fn)
	}
}

// traceReferences drains the gray work-list, blackening each object.
func (vm *VM) traceReferences() {
	h := &vm.heap
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		vm.blacken(o)
	}
}

func (vm *VM) blacken(o Object) {
	switch o := o.(type) {
	case *ObjString, *ObjNative:
	case *ObjFn:
		for _, c := range o.Chunk.Constants {
			vm.markValue(c)
		}
	case *ObjArray:
		for _, v := range o.Items {
			vm.markValue(v)
		}
	case *ObjTable:
		vm.markMap(&o.Entries)
	case *ObjClosure:
		vm.markObject(o.Fn)
		for _, u := range o.Upvalues {
			if u != nil {
				vm.markObject(u)
			}
		}
	case *ObjUpvalue:
		vm.markValue(o.Closed)
	case *ObjClass:
		vm.markObject(o.Name)
		vm.markMap(&o.Methods)
		vm.markValue(o.Init)
	case *ObjInstance:
		vm.markObject(o.Class)
		vm.markMap(&o.Fields)
	case *ObjNativeClass:
		vm.markMap(&o.Methods)
	case *ObjNativeInstance:
		vm.markObject(o.Class)
		if o.Class.Mark != nil {
			o.Class.Mark(o, vm.markValue)
		}
	case *ObjBoundMethod:
		vm.markValue(o.Receiver)
		vm.markValue(o.Method)
	case *ObjLibrary:
		vm.markMap(&o.Symbols)
	}
}

// sweep frees every unmarked object and clears the mark on survivors.
func (vm *VM) sweep() (freed, freedBytes int) {
	h := &vm.heap
	n := len(h.objects)
	for i := 0; i < n; i++ {
		o := h.objects[i]
		if o == nil {
			continue
		}
		hd := o.header()
		if hd.marked {
			hd.marked = false
			continue
		}
		vm.free(o)
		h.bytes -= hd.size
		freedBytes += hd.size
		h.objects[i] = nil
		h.gens[i]++
		h.free = append(h.free, i)
		freed++
	}
	return freed, freedBytes
}

// free runs the per-kind destructor. Only native instances own host
// resources.
func (vm *VM) free(o Object) {
	if inst, ok := o.(*ObjNativeInstance); ok && inst.Class.Free != nil {
		inst.Class.Free(inst)
		inst.Payload = nil
	}
}

// freeAll sweeps the whole heap with no roots, so every host Free callback
// runs. The VM is unusable afterwards.
func (vm *VM) freeAll() int {
	h := &vm.heap
	h.collecting = true
	h.strings.removeUnmarked()
	freed, _ := vm.sweep()
	h.collecting = false
	return freed
}
