package vm

import "testing"

func TestInternTableIsWeak(t *testing.T) {
	vm, _ := newTestVM(t, false)
	s := vm.NewString("transient-string")
	h := vm.HandleOf(s)

	vm.CollectGarbage()

	if found := vm.heap.strings.FindString("transient-string", HashString("transient-string")); found != nil {
		t.Error("unreferenced string survived in the intern table")
	}
	if _, ok := vm.Resolve(h); ok {
		t.Error("handle to a swept string still resolves")
	}
	if vm.GCStats().StringsFreed == 0 {
		t.Error("expected intern entries to be dropped")
	}
}

func TestReachableStringsSurvive(t *testing.T) {
	vm, _ := newTestVM(t, false)
	if _, err := vm.Interpret("test.kn", `var keep = "kept-" + "value";`); err != nil {
		t.Fatal(err)
	}
	vm.CollectGarbage()

	s := vm.heap.strings.FindString("kept-value", HashString("kept-value"))
	if s == nil {
		t.Fatal("reachable string dropped from the intern table")
	}
	if again := vm.NewString("kept-value"); again != s {
		t.Error("re-interning produced a different object")
	}
}

func TestPinKeepsObjectAlive(t *testing.T) {
	vm, _ := newTestVM(t, false)
	a := vm.NewArray(nil)
	h := vm.HandleOf(a)

	vm.Pin(a)
	vm.Pin(a)
	vm.CollectGarbage()
	if _, ok := vm.Resolve(h); !ok {
		t.Fatal("pinned object was collected")
	}

	vm.Unpin(a)
	vm.CollectGarbage()
	if _, ok := vm.Resolve(h); !ok {
		t.Fatal("object collected while still pinned once")
	}

	vm.Unpin(a)
	vm.CollectGarbage()
	if _, ok := vm.Resolve(h); ok {
		t.Error("unpinned object was not collected")
	}
}

func TestHandleGenerationAfterReuse(t *testing.T) {
	vm, _ := newTestVM(t, false)
	old := vm.HandleOf(vm.NewTable())
	vm.CollectGarbage()

	// The freed slot is reused by the next allocation.
	fresh := vm.NewTable()
	vm.Pin(fresh)
	defer vm.Unpin(fresh)

	if _, ok := vm.Resolve(old); ok {
		t.Error("stale handle resolved to a new object")
	}
	if o, ok := vm.Resolve(vm.HandleOf(fresh)); !ok || o != fresh {
		t.Error("fresh handle does not resolve")
	}
}

func TestNativeFreeRunsOnCollection(t *testing.T) {
	vm, _ := newTestVM(t, false)
	freed := 0
	vm.DefineClass(NativeClassDef{
		Name: "Resource",
		Free: func(inst *ObjNativeInstance) { freed++ },
	})

	if _, err := vm.Interpret("test.kn", "for (i in range(0, 3)) Resource(); var kept = Resource();"); err != nil {
		t.Fatal(err)
	}
	vm.CollectGarbage()
	if freed != 3 {
		t.Errorf("Free ran %d times, want 3", freed)
	}

	vm.Close()
	if freed != 4 {
		t.Errorf("after Close Free ran %d times, want 4", freed)
	}
}

func TestNativeMarkCallback(t *testing.T) {
	vm, _ := newTestVM(t, false)
	vm.DefineClass(NativeClassDef{
		Name:      "Box",
		InitArity: 1,
		Init: func(vm *VM, recv Value, args []Value) (Value, error) {
			recv.Obj.(*ObjNativeInstance).Payload = args[0]
			return recv, nil
		},
		Mark: func(inst *ObjNativeInstance, mark func(Value)) {
			mark(inst.Payload.(Value))
		},
		Methods: map[string]NativeMethod{
			"get": {0, func(vm *VM, recv Value, _ []Value) (Value, error) {
				return recv.Obj.(*ObjNativeInstance).Payload.(Value), nil
			}},
		},
	})

	if _, err := vm.Interpret("test.kn", `var b = Box([1, 2, 3]);`); err != nil {
		t.Fatal(err)
	}
	vm.CollectGarbage()
	result, err := vm.Interpret("test.kn", "len(b.get())")
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 3)
}

func TestGarbageIsReclaimed(t *testing.T) {
	vm, _ := newTestVM(t, false)
	if _, err := vm.Interpret("test.kn", `for (i in range(0, 200)) { var t = {k: [i, "s\(i)"]}; }`); err != nil {
		t.Fatal(err)
	}
	before := vm.heap.Live()
	freed := vm.CollectGarbage()
	if freed == 0 {
		t.Fatal("nothing was collected")
	}
	if vm.heap.Live() != before-freed {
		t.Errorf("live objects %d, want %d", vm.heap.Live(), before-freed)
	}
	stats := vm.GCStats()
	if stats.Collections == 0 || stats.BytesInUse <= 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDisabledCollector(t *testing.T) {
	vm, _ := newTestVM(t, false)
	vm.heap.disabled = true
	vm.heap.nextGC = 0
	for i := 0; i < 100; i++ {
		vm.NewArray(make([]Value, 10))
	}
	if vm.GCStats().Collections != 0 {
		t.Error("collector ran while disabled")
	}
}

func TestHostAllocationsRootedDuringNativeCall(t *testing.T) {
	vm, _ := newTestVM(t, true)
	vm.DefineNative("build", 0, func(vm *VM, _ Value, _ []Value) (Value, error) {
		parts := make([]Value, 0, 20)
		for i := 0; i < 20; i++ {
			parts = append(parts, vm.StringVal(string(rune('a'+i))))
		}
		// Every allocation above ran a collection under stress.
		tbl := vm.NewTable()
		for i, p := range parts {
			vm.TableSet(tbl, p, NumberVal(float64(i)))
		}
		return ObjVal(tbl), nil
	})

	result, err := vm.Interpret("test.kn", `var t = build(); t.a + t.t`)
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 19)
}
