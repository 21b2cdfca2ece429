package vm

// ObjKind tags the closed set of heap object variants.
type ObjKind uint8

const (
	KindNone ObjKind = iota
	KindFn
	KindString
	KindArray
	KindTable
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindNativeClass
	KindNativeInstance
	KindBoundMethod
	KindNative
	KindLibrary
)

var kindNames = [...]string{
	KindNone:           "none",
	KindFn:             "function",
	KindString:         "string",
	KindArray:          "array",
	KindTable:          "table",
	KindClosure:        "function",
	KindUpvalue:        "upvalue",
	KindClass:          "class",
	KindInstance:       "instance",
	KindNativeClass:    "class",
	KindNativeInstance: "instance",
	KindBoundMethod:    "function",
	KindNative:         "function",
	KindLibrary:        "library",
}

func (k ObjKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "object"
}

// Object is implemented by every heap object. The set of implementations is
// closed; code switches on the concrete type.
type Object interface {
	Kind() ObjKind
	header() *Header
}

// Header is embedded in every heap object.
type Header struct {
	kind   ObjKind
	marked bool
	slot   int    // index in the heap arena
	gen    uint32 // generation of the arena slot when allocated
	id     uint64 // stable identity, used for hashing
	size   int    // bytes accounted to this object
}

func (h *Header) Kind() ObjKind   { return h.kind }
func (h *Header) header() *Header { return h }

// ID returns the object's identity, unique for the lifetime of the VM.
func (h *Header) ID() uint64 { return h.id }

// ObjFn is a compiled function.
type ObjFn struct {
	Header
	Name         string
	ClassName    string // owning class for methods, used in traces
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Module       int  // index into the VM module table
	TopLevel     bool // compilation unit body
	Initializer  bool
	Fallible     bool
	Source       string // owned source text, top-level units only
}

// ObjString is an immutable interned byte string.
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

// ObjArray is a growable sequence; writes past the end zero-extend with nil.
type ObjArray struct {
	Header
	Items []Value
}

// ObjTable is a script-visible hash map.
type ObjTable struct {
	Header
	Entries Map
}

// ObjClosure pairs a function with its captured upvalues.
type ObjClosure struct {
	Header
	Fn       *ObjFn
	Upvalues []*ObjUpvalue
}

// ObjUpvalue represents a captured variable from an enclosing scope
// It can be "open" (pointing to stack) or "closed" (holding value directly)
type ObjUpvalue struct {
	Header
	// When open: Location is the stack slot index
	// When closed: Location is -1 and Closed holds the value
	Location int
	Closed   Value

	// For the VM's open upvalue list (singly linked, sorted by location, highest first)
	Next *ObjUpvalue
}

// ObjClass is a script class.
type ObjClass struct {
	Header
	Name     *ObjString
	Methods  Map
	Init     Value // initializer closure, or nil
	Fallible bool
}

type ObjInstance struct {
	Header
	Class  *ObjClass
	Fields Map
}

// NativeFn is a host function. recv is the receiver for method calls and the
// callee itself for plain calls. Errors are reported as host errors unless
// they already are diagnostics.
type NativeFn func(vm *VM, recv Value, args []Value) (Value, error)

// ObjNative is a host function value. Arity -1 accepts any argument count.
type ObjNative struct {
	Header
	Name  string
	Arity int
	Fn    NativeFn
}

// ObjNativeClass is a host-defined class. Instances carry an opaque payload.
type ObjNativeClass struct {
	Header
	Name      string
	Size      int // payload bytes accounted per instance
	Methods   Map
	Init      NativeFn
	InitArity int
	Fallible  bool
	// Free releases host resources when an instance is swept.
	Free func(inst *ObjNativeInstance)
	// Mark reports Values held inside the payload.
	Mark func(inst *ObjNativeInstance, mark func(Value))
}

type ObjNativeInstance struct {
	Header
	Class   *ObjNativeClass
	Payload any
}

// ObjBoundMethod pairs a receiver with a callable.
type ObjBoundMethod struct {
	Header
	Receiver Value
	Method   Value
}

// ObjLibrary is a native module: a handle plus its exported symbols.
type ObjLibrary struct {
	Header
	Name    string
	Path    string
	Handle  any
	Symbols Map
}

// IsOpen reports whether the upvalue still points into the stack.
func (u *ObjUpvalue) IsOpen() bool { return u.Location >= 0 }
