package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/funvibe/kiln/internal/config"
)

func newTestVM(t *testing.T, stress bool) (*VM, *bytes.Buffer) {
	t.Helper()
	settings := config.Default()
	settings.GC.Stress = stress
	vm := New(settings)
	out := &bytes.Buffer{}
	vm.SetOutput(out)
	t.Cleanup(vm.Close)
	return vm, out
}

func runVM(t *testing.T, input string) Value {
	t.Helper()
	vm, _ := newTestVM(t, false)
	result, err := vm.Interpret("test.kn", input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return result
}

func testNumber(t *testing.T, v Value, expected float64) {
	t.Helper()
	if !v.IsNumber() {
		t.Fatalf("value is not a number. got=%s (%s)", v.TypeName(), v)
	}
	if v.AsNumber() != expected {
		t.Errorf("wrong value. got=%s, want=%s", v, formatNumber(expected))
	}
}

func testString(t *testing.T, v Value, expected string) {
	t.Helper()
	s, ok := v.AsString()
	if !ok {
		t.Fatalf("value is not a string. got=%s (%s)", v.TypeName(), v)
	}
	if s.Chars != expected {
		t.Errorf("wrong value. got=%q, want=%q", s.Chars, expected)
	}
}

func testBool(t *testing.T, v Value, expected bool) {
	t.Helper()
	if !v.IsBool() {
		t.Fatalf("value is not a boolean. got=%s (%s)", v.TypeName(), v)
	}
	if v.AsBool() != expected {
		t.Errorf("wrong value. got=%t, want=%t", v.AsBool(), expected)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"7 / 2", 3.5},
		{"-1 mod 3", 2},
		{"5 mod -3", -1},
		{"7 mod 3", 1},
		{"-7 mod -3", -1},
		{"--5", 5},
		{"0x1f + 1", 32},
		{"1.5e2", 150},
		{"6 & 3", 2},
		{"6 | 3", 7},
		{"6 ^ 3", 5},
		{"1 << 4", 16},
		{"256 >> 4", 16},
		{"~0", -1},
		{"1 + 2 * 3 - 4 / 2", 5},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestComparisonAndLogic(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"4 >= 5", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{`"a" < "b"`, true},
		{`"abc" == "abc"`, true},
		{`"abc" == "ab" + "c"`, true},
		{"nil == nil", true},
		{"nil == false", false},
		{"not nil", true},
		{"not 0", false},
		{`not ""`, false},
		{"true and false", false},
		{"false or true", true},
		{"1 == 1 and 2 == 2", true},
		{"[1] == [1]", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testBool(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestAndOrReturnOperands(t *testing.T) {
	testNumber(t, runVM(t, "nil or 3"), 3)
	testNumber(t, runVM(t, "1 and 2"), 2)
	if v := runVM(t, "false and 2"); !v.IsBool() || v.AsBool() {
		t.Errorf("expected false, got %s", v)
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"foo" + "bar"`, "foobar"},
		{`"a\tb"`, "a\tb"},
		{`'single'`, "single"},
		{`var x = 2; "x = \(x), x*x = \(x * x)"`, "x = 2, x*x = 4"},
		{`"nested \("in \("side")")"`, "nested in side"},
		{`"list: \([1, "a", nil])"`, `list: [1, "a", nil]`},
		{`typeof(1)`, "number"},
		{`typeof("s")`, "string"},
		{`typeof(nil)`, "nil"},
		{`typeof(true)`, "boolean"},
		{`typeof([])`, "array"},
		{`typeof({})`, "table"},
		{`typeof(print)`, "function"},
		{`"Hello".upper()`, "HELLO"},
		{`"Hello".lower()`, "hello"},
		{`"  pad  ".trim()`, "pad"},
		{`"abcdef".slice(1, 3)`, "bc"},
		{`"abcdef".slice(-2)`, "ef"},
		{`"a,b,c".split(",").join("-")`, "a-b-c"},
		{`str(12.5)`, "12.5"},
		{`str(nil)`, "nil"},
		{`"abc"[1]`, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testString(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestInterningIdentity(t *testing.T) {
	vm, _ := newTestVM(t, false)
	a := vm.NewString("same")
	b := vm.NewString("sa" + "me")
	if a != b {
		t.Fatalf("expected interned strings to be the same object")
	}

	result, err := vm.Interpret("test.kn", `var a = "lit"; var b = "lit"; a == b`)
	if err != nil {
		t.Fatal(err)
	}
	testBool(t, result, true)
}

func TestVariablesAndScopes(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"var a = 1; a", 1},
		{"var a = 1; a = a + 1; a", 2},
		{"var a; var b = 2; a = b = 5; a + b", 10},
		{"var a = 1; { var a = 2; a = a + 10; } a", 1},
		{"var a = 1; { var b = a + 1; a = b * 10; } a", 20},
		{"var x = 0; { var y = 1; { var z = 2; x = y + z; } } x", 3},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"if", "var r = 0; if (1 < 2) r = 1; else r = 2; r", 1},
		{"else", "var r = 0; if (nil) r = 1; else r = 2; r", 2},
		{"zero is truthy", "var r = 0; if (0) r = 1; r", 1},
		{"while", "var i = 0; var s = 0; while (i < 5) { s = s + i; i = i + 1; } s", 10},
		{"c-style for", "var s = 0; for (var i = 0; i < 5; i = i + 1) { s = s + i; } s", 10},
		{"break", "var i = 0; while (true) { if (i == 3) break; i = i + 1; } i", 3},
		{"continue", "var s = 0; for (var i = 0; i < 6; i = i + 1) { if (i mod 2 == 0) continue; s = s + i; } s", 9},
		{"range", "var s = 0; for (i in range(0, 5)) s = s + i; s", 10},
		{"range step", "var s = 0; for (i in range(10, 0, -3)) s = s + i; s", 22},
		{"array for-in", "var s = 0; for (x in [1, 2, 3]) s = s + x; s", 6},
		{"array index and element", "var s = 0; for (i, x in [10, 20]) s = s + i * x; s", 20},
		{"table keys", `var t = {a: 1, b: 2}; var n = 0; for (k in t) { if (k == "a" or k == "b") n = n + 1; } n`, 2},
		{"table values", "var t = {a: 1, b: 2}; var s = 0; for (k, v in t) s = s + v; s", 3},
		{"string chars", `var n = 0; for (c in "abc") n = n + 1; n`, 3},
		{"nested break", "var n = 0; for (i in range(0, 3)) { for (j in range(0, 3)) { if (j == 1) break; n = n + 1; } } n", 3},
		{"break in for-in", "var s = 0; for (x in [1, 2, 3, 4]) { if (x == 3) break; s = s + x; } s", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"simple", "fn add(a, b) { return a + b; } add(2, 3)", 5},
		{"recursion", "fn fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); } fib(15)", 610},
		{"lambda", "var sq = fn(x) { return x * x; }; sq(7)", 49},
		{"higher order", "fn apply(f, x) { return f(x); } apply(fn(x) { return x + 1; }, 41)", 42},
		{"top-level return", "return 5;", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestClosures(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{
			"counter",
			`fn counter() { var n = 0; return fn() { n = n + 1; return n; }; }
			 var c = counter(); c(); c()`,
			2,
		},
		{
			"independent counters",
			`fn counter() { var n = 0; return fn() { n = n + 1; return n; }; }
			 var a = counter(); var b = counter(); a(); a(); b()`,
			1,
		},
		{
			"shared upvalue",
			`var get; var set;
			 fn make() { var v = 1; get = fn() { return v; }; set = fn(x) { v = x; }; }
			 make(); set(42); get()`,
			42,
		},
		{
			"nested capture",
			`fn outer() { var x = 10; fn middle() { fn inner() { return x; } return inner; } return middle(); }
			 outer()()`,
			10,
		},
		{
			"per-iteration capture",
			`var fs = []; for (x in [1, 2, 3]) { fs.push(fn() { return x; }); } fs[0]() + fs[2]()`,
			4,
		},
		{
			"per-iteration range capture",
			`var fs = []; for (i in range(0, 3)) fs.push(fn() { return i; }); fs[0]() + fs[1]() + fs[2]()`,
			3,
		},
		{
			"closed after scope",
			`var f; { var local = 7; f = fn() { return local; }; } f()`,
			7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestArraysAndTables(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"index", "var a = [1, 2, 3]; a[1]", 2},
		{"assign", "var a = [1, 2, 3]; a[0] = 10; a[0] + a[2]", 13},
		{"len", "len([1, 2, 3]) + len(\"ab\") + len({a: 1})", 6},
		{"push", "var a = []; a.push(1, 2); a.push(3)", 3},
		{"pop", "var a = [1, 2, 3]; a.pop() + len(a)", 5},
		{"insert remove", "var a = [1, 3]; a.insert(1, 2); a.remove(0) + a[0] + len(a)", 5},
		{"slice", "len([1, 2, 3, 4].slice(1, 3))", 2},
		{"table field", "var t = {x: 1}; t.y = 2; t.x + t.y", 3},
		{"table index", `var t = {}; t["k"] = 5; t.k`, 5},
		{"number keys", "var t = {[1]: 10, 2: 20}; t[1] + t[2]", 30},
		{"missing key", "var t = {}; var r = 1; if (t.nope == nil) r = 2; r", 2},
		{"keys", "len({a: 1, b: 2, c: 3}.keys())", 3},
		{"nested", "var t = {inner: {v: [1, 2, 3]}}; t.inner.v[2]", 3},
		{"property chain assign", "var t = {inner: {}}; t.inner.v = 9; t.inner.v", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestDeleteAndIn(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"delete field", `var t = {}; t.x = 1; delete t.x; "x" in t`, false},
		{"delete index", `var t = {x: 1}; delete t["x"]; "x" in t`, false},
		{"delete result", `var t = {x: 1}; delete t.x`, true},
		{"delete missing", `var t = {}; delete t.x`, false},
		{"in table", `"x" in {x: nil}`, true},
		{"in array", `2 in [1, 2, 3]`, true},
		{"in string", `"ell" in "hello"`, true},
		{"has", `var t = {a: 1}; t.has("a")`, true},
		{"implicit nil", "fn f() {} f() == nil", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testBool(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestClasses(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"fields and methods",
			`class P { init(name) { self.name = name; } greet() { return "hi " + self.name; } }
			 P("bob").greet()`,
			"hi bob",
		},
		{
			"inherited method",
			`class A { who() { return "A"; } } class B : A {} B().who()`,
			"A",
		},
		{
			"super call",
			`class A { who() { return "A"; } }
			 class B : A { who() { return super.who() + "B"; } }
			 B().who()`,
			"AB",
		},
		{
			"inherited init",
			`class A { init(v) { self.v = v; } } class B : A {} B("x").v`,
			"x",
		},
		{
			"bound method",
			`class A { init() { self.s = "bound"; } get() { return self.s; } } var m = A().get; m()`,
			"bound",
		},
		{
			"fn keyword methods",
			`class A { fn name() { return "named"; } } A().name()`,
			"named",
		},
		{
			"field holding function",
			`class A {} var a = A(); a.f = fn() { return "field"; }; a.f()`,
			"field",
		},
		{
			"super bound",
			`class A { s() { return "sup"; } } class B : A { s() { var f = super.s; return f(); } } B().s()`,
			"sup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testString(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestFallibleInitializer(t *testing.T) {
	input := `class F { init?(ok) { if (not ok) return nil; self.ok = ok; } }
	          var bad = F(false); var good = F(true);
	          bad == nil and good.ok`
	testBool(t, runVM(t, input), true)
}

func TestBuiltins(t *testing.T) {
	vm, out := newTestVM(t, false)
	_, err := vm.Interpret("test.kn", `print("a", 1, nil, [1, "x"]); print(num("42") + 1, num("nope"));`)
	if err != nil {
		t.Fatal(err)
	}
	want := "a 1 nil [1, \"x\"]\n43 nil\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestExit(t *testing.T) {
	vm, _ := newTestVM(t, false)
	_, err := vm.Interpret("test.kn", "exit(3); print(1);")
	exit, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("expected *ExitError, got %T (%v)", err, err)
	}
	if exit.Code != 3 {
		t.Errorf("exit code = %d, want 3", exit.Code)
	}
}

func TestHostCallReentrant(t *testing.T) {
	vm, _ := newTestVM(t, false)
	vm.DefineNative("twice", 1, func(vm *VM, _ Value, args []Value) (Value, error) {
		a, err := vm.Call(args[0], NumberVal(1))
		if err != nil {
			return NilVal(), err
		}
		return vm.Call(args[0], a)
	})

	result, err := vm.Interpret("test.kn", "twice(fn(x) { return x * 10; })")
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 100)

	fnVal, ok := vm.Global("twice")
	if !ok {
		t.Fatal("twice not found")
	}
	if _, ok := fnVal.Obj.(*ObjNative); !ok {
		t.Errorf("expected native, got %s", fnVal.TypeName())
	}
}

func TestCallFromHost(t *testing.T) {
	vm, _ := newTestVM(t, false)
	if _, err := vm.Interpret("test.kn", "fn add(a, b) { return a + b; }"); err != nil {
		t.Fatal(err)
	}
	add, ok := vm.Global("add")
	if !ok {
		t.Fatal("add not defined")
	}
	result, err := vm.Call(add, NumberVal(2), NumberVal(40))
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 42)

	if _, err := vm.Call(add, NumberVal(1)); err == nil {
		t.Fatal("expected arity error")
	}
	if vm.sp != 0 || vm.frameCount != 0 {
		t.Errorf("state not restored: sp=%d frames=%d", vm.sp, vm.frameCount)
	}

	// The interpreter stays usable after a failed call.
	result, err = vm.Call(add, vm.StringVal("a"), vm.StringVal("b"))
	if err != nil {
		t.Fatal(err)
	}
	testString(t, result, "ab")
}

func TestNativeClass(t *testing.T) {
	vm, _ := newTestVM(t, false)
	type counter struct{ n int }
	freed := 0
	vm.DefineClass(NativeClassDef{
		Name:      "Counter",
		InitArity: 1,
		Init: func(vm *VM, recv Value, args []Value) (Value, error) {
			start, err := ArgInt("Counter", args, 0)
			if err != nil {
				return NilVal(), err
			}
			recv.Obj.(*ObjNativeInstance).Payload = &counter{n: start}
			return recv, nil
		},
		Free: func(inst *ObjNativeInstance) { freed++ },
		Methods: map[string]NativeMethod{
			"inc": {0, func(vm *VM, recv Value, _ []Value) (Value, error) {
				c := recv.Obj.(*ObjNativeInstance).Payload.(*counter)
				c.n++
				return NumberVal(float64(c.n)), nil
			}},
		},
	})

	result, err := vm.Interpret("test.kn", "var c = Counter(5); c.inc(); c.inc()")
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 7)

	_, err = vm.Interpret("test.kn", `Counter("x")`)
	if err == nil || !strings.Contains(err.Error(), "must be an integer") {
		t.Errorf("expected argument error, got %v", err)
	}

	vm.Close()
	if freed != 2 {
		t.Errorf("Free called %d times, want 2", freed)
	}
}

func TestInterpretKeepsGlobalsAcrossRuns(t *testing.T) {
	vm, _ := newTestVM(t, false)
	if _, err := vm.Interpret("repl", "var x = 40;"); err != nil {
		t.Fatal(err)
	}
	result, err := vm.Interpret("repl", "x + 2")
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 42)
}

func TestStressCollection(t *testing.T) {
	vm, out := newTestVM(t, true)
	input := `
	class Node { init(v, next) { self.v = v; self.next = next; } }
	fn build(n) { var head = nil; for (i in range(0, n)) head = Node("n\(i)", head); return head; }
	var list = build(50);
	var parts = [];
	for (var n = list; n != nil; n = n.next) parts.push(n.v);
	var t = {};
	for (i, p in parts) t[p] = i;
	var fs = [];
	for (i in range(0, 10)) fs.push(fn() { return "f" + str(i); });
	print(len(parts), t["n0"], fs[9](), parts.slice(0, 2).join(","));
	`
	if _, err := vm.Interpret("stress.kn", input); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "50 49 f9 n49,n48\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if vm.GCStats().Collections == 0 {
		t.Error("expected collections under stress mode")
	}
}
