package vm

// Approximate sizes used for heap accounting.
const (
	valueSize    = 24
	mapEntrySize = 2 * valueSize
	headerSize   = 48
)

var baseSizes = [...]int{
	KindFn:             headerSize + 96,
	KindString:         headerSize + 24,
	KindArray:          headerSize + 24,
	KindTable:          headerSize + 40,
	KindClosure:        headerSize + 32,
	KindUpvalue:        headerSize + 40,
	KindClass:          headerSize + 80,
	KindInstance:       headerSize + 48,
	KindNativeClass:    headerSize + 96,
	KindNativeInstance: headerSize + 24,
	KindBoundMethod:    headerSize + 48,
	KindNative:         headerSize + 40,
	KindLibrary:        headerSize + 80,
}

// Handle is a generation-checked reference to a heap object, for hosts that
// keep references across collections.
type Handle struct {
	Index int
	Gen   uint32
}

// Heap is the arena of every live object plus the collector's bookkeeping.
// All allocation goes through VM.allocate.
type Heap struct {
	objects []Object // arena; nil marks a free slot
	gens    []uint32
	free    []int
	nextID  uint64

	bytes    int
	nextGC   int
	growth   float64
	stress   bool
	disabled bool

	pauses     int // nesting depth of root-safety windows
	collecting bool

	strings Map // weak intern set
	gray    []Object

	handles   []Object // roots for objects allocated inside native calls
	recording int

	stats GCStats
}

func (h *Heap) register(o Object) {
	hd := o.header()
	var slot int
	if n := len(h.free); n > 0 {
		slot = h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[slot] = o
	} else {
		slot = len(h.objects)
		h.objects = append(h.objects, o)
		h.gens = append(h.gens, 0)
	}
	h.nextID++
	hd.id = h.nextID
	hd.slot = slot
	hd.gen = h.gens[slot]
}

func (h *Heap) shouldCollect() bool {
	if h.disabled || h.pauses > 0 || h.collecting {
		return false
	}
	return h.stress || h.bytes > h.nextGC
}

// pause opens a root-safety window: no collection starts until the matching
// resume.
func (h *Heap) pause() { h.pauses++ }

func (h *Heap) resume() {
	if h.pauses > 0 {
		h.pauses--
	}
}

// Bytes returns the number of tracked bytes in use.
func (h *Heap) Bytes() int { return h.bytes }

// Live returns the number of live objects in the arena.
func (h *Heap) Live() int { return len(h.objects) - len(h.free) }

// HandleOf returns a generation-checked handle to o.
func (vm *VM) HandleOf(o Object) Handle {
	hd := o.header()
	return Handle{Index: hd.slot, Gen: hd.gen}
}

// Resolve returns the object h refers to, or false if it has been swept.
func (vm *VM) Resolve(h Handle) (Object, bool) {
	heap := &vm.heap
	if h.Index < 0 || h.Index >= len(heap.objects) || heap.gens[h.Index] != h.Gen {
		return nil, false
	}
	o := heap.objects[h.Index]
	return o, o != nil
}

// allocate registers a new object with the heap. A collection may run first;
// o itself is never swept by it, but everything o references must already be
// reachable from a root.
func (vm *VM) allocate(o Object, kind ObjKind, size int) {
	hd := o.header()
	hd.kind = kind
	hd.size = size
	vm.grow(size)
	vm.heap.register(o)
	if vm.heap.recording > 0 {
		vm.heap.handles = append(vm.heap.handles, o)
	}
}

// grow accounts delta bytes and collects if the threshold is crossed.
func (vm *VM) grow(delta int) {
	vm.heap.bytes += delta
	if delta > 0 && vm.heap.shouldCollect() {
		vm.CollectGarbage()
	}
}

// resize accounts a change in the size of o.
func (vm *VM) resize(o Object, delta int) {
	if delta == 0 {
		return
	}
	o.header().size += delta
	vm.grow(delta)
}

// mapSet stores into a map owned by owner (or by the VM when owner is nil)
// and accounts any growth of its slot array.
func (vm *VM) mapSet(owner Object, m *Map, key, value Value) bool {
	before := m.Cap()
	isNew := m.Set(key, value)
	if delta := (m.Cap() - before) * mapEntrySize; delta != 0 {
		if owner != nil {
			vm.resize(owner, delta)
		} else {
			vm.grow(delta)
		}
	}
	return isNew
}

// arrayAppend appends to a and accounts backing-array growth.
func (vm *VM) arrayAppend(a *ObjArray, values ...Value) {
	before := cap(a.Items)
	a.Items = append(a.Items, values...)
	vm.resize(a, (cap(a.Items)-before)*valueSize)
}

// NewString returns the interned string for chars.
func (vm *VM) NewString(chars string) *ObjString {
	hash := HashString(chars)
	if s := vm.heap.strings.FindString(chars, hash); s != nil {
		return s
	}

	s := &ObjString{Chars: chars, Hash: hash}
	vm.allocate(s, KindString, baseSizes[KindString]+len(chars))

	// s is only weakly held by the intern set until the caller roots it.
	vm.heap.pause()
	vm.mapSet(nil, &vm.heap.strings, ObjVal(s), NilVal())
	vm.heap.resume()
	return s
}

// StringVal is shorthand for ObjVal(vm.NewString(s)).
func (vm *VM) StringVal(s string) Value {
	return ObjVal(vm.NewString(s))
}

// NewArray allocates an array holding a copy of items.
func (vm *VM) NewArray(items []Value) *ObjArray {
	a := &ObjArray{Items: append([]Value(nil), items...)}
	vm.allocate(a, KindArray, baseSizes[KindArray]+cap(a.Items)*valueSize)
	return a
}

// NewTable allocates an empty table.
func (vm *VM) NewTable() *ObjTable {
	t := &ObjTable{}
	vm.allocate(t, KindTable, baseSizes[KindTable])
	return t
}

// TableSet stores key/value into t with heap accounting.
func (vm *VM) TableSet(t *ObjTable, key, value Value) {
	vm.mapSet(t, &t.Entries, key, value)
}

func (vm *VM) newFn(name string, module int, path string) *ObjFn {
	fn := &ObjFn{Name: name, Module: module, Chunk: NewChunk(path)}
	vm.allocate(fn, KindFn, baseSizes[KindFn])
	return fn
}

func (vm *VM) newClosure(fn *ObjFn) *ObjClosure {
	c := &ObjClosure{Fn: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	vm.allocate(c, KindClosure, baseSizes[KindClosure]+8*fn.UpvalueCount)
	return c
}

func (vm *VM) newUpvalue(location int) *ObjUpvalue {
	u := &ObjUpvalue{Location: location}
	vm.allocate(u, KindUpvalue, baseSizes[KindUpvalue])
	return u
}

func (vm *VM) newClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name}
	vm.allocate(c, KindClass, baseSizes[KindClass])
	return c
}

func (vm *VM) newInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class}
	vm.allocate(i, KindInstance, baseSizes[KindInstance])
	return i
}

func (vm *VM) newNativeInstance(class *ObjNativeClass) *ObjNativeInstance {
	i := &ObjNativeInstance{Class: class}
	vm.allocate(i, KindNativeInstance, baseSizes[KindNativeInstance]+class.Size)
	return i
}

func (vm *VM) newBoundMethod(receiver, method Value) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	vm.allocate(b, KindBoundMethod, baseSizes[KindBoundMethod])
	return b
}

// NewNative wraps a host function. arity -1 accepts any argument count.
func (vm *VM) NewNative(name string, arity int, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Arity: arity, Fn: fn}
	vm.allocate(n, KindNative, baseSizes[KindNative])
	return n
}

// NewLibrary allocates an empty native library object.
func (vm *VM) NewLibrary(name, path string) *ObjLibrary {
	l := &ObjLibrary{Name: name, Path: path}
	vm.allocate(l, KindLibrary, baseSizes[KindLibrary])
	return l
}
