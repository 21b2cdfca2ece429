package vm

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/funvibe/kiln/internal/config"
)

// defineBuiltins registers the global functions and the per-type method
// tables.
func (vm *VM) defineBuiltins() {
	vm.heap.pause()
	defer vm.heap.resume()

	vm.DefineNative(config.PrintFuncName, -1, builtinPrint)
	vm.DefineNative(config.StrFuncName, 1, builtinStr)
	vm.DefineNative(config.NumFuncName, 1, builtinNum)
	vm.DefineNative(config.ClockFuncName, 0, builtinClock)
	vm.DefineNative(config.ExitFuncName, 1, builtinExit)
	vm.DefineNative(config.GCFuncName, 0, builtinGC)

	vm.defineMethods(&vm.arrayMethods, "array", map[string]NativeMethod{
		"push":   {-1, arrayPush},
		"pop":    {0, arrayPop},
		"insert": {2, arrayInsert},
		"remove": {1, arrayRemove},
		"slice":  {-1, arraySlice},
		"join":   {-1, arrayJoin},
	})
	vm.defineMethods(&vm.stringMethods, "string", map[string]NativeMethod{
		"upper": {0, stringUpper},
		"lower": {0, stringLower},
		"split": {1, stringSplit},
		"find":  {1, stringFind},
		"trim":  {0, stringTrim},
		"slice": {-1, stringSlice},
	})
	vm.defineMethods(&vm.tableMethods, "table", map[string]NativeMethod{
		"keys":   {0, tableKeys},
		"values": {0, tableValues},
		"has":    {1, tableHas},
	})
}

func (vm *VM) defineMethods(table *Map, typeName string, methods map[string]NativeMethod) {
	for name, m := range methods {
		n := vm.NewNative(typeName+"."+name, m.Arity, m.Fn)
		vm.mapSet(nil, table, vm.StringVal(name), ObjVal(n))
	}
}

// Globals

func builtinPrint(vm *VM, _ Value, args []Value) (Value, error) {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeValue(&b, a, 0)
	}
	b.WriteByte('\n')
	if vm.out == nil {
		return NilVal(), nil
	}
	_, err := io.WriteString(vm.out, b.String())
	return NilVal(), err
}

func builtinStr(vm *VM, _ Value, args []Value) (Value, error) {
	if _, ok := args[0].AsString(); ok {
		return args[0], nil
	}
	return vm.StringVal(args[0].String()), nil
}

// builtinNum parses a number; unparsable input gives nil.
func builtinNum(vm *VM, _ Value, args []Value) (Value, error) {
	if args[0].IsNumber() {
		return args[0], nil
	}
	s, ok := args[0].AsString()
	if !ok {
		return NilVal(), nil
	}
	text := strings.TrimSpace(s.Chars)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		u, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return NilVal(), nil
		}
		return NumberVal(float64(u)), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return NilVal(), nil
	}
	return NumberVal(f), nil
}

func builtinClock(vm *VM, _ Value, _ []Value) (Value, error) {
	return NumberVal(time.Since(vm.startTime).Seconds()), nil
}

func builtinExit(vm *VM, _ Value, args []Value) (Value, error) {
	code, err := ArgInt("exit", args, 0)
	if err != nil {
		return NilVal(), err
	}
	return NilVal(), &ExitError{Code: code}
}

func builtinGC(vm *VM, _ Value, _ []Value) (Value, error) {
	return NumberVal(float64(vm.CollectGarbage())), nil
}

// Array methods

func arrayPush(vm *VM, recv Value, args []Value) (Value, error) {
	a := recv.Obj.(*ObjArray)
	vm.arrayAppend(a, args...)
	return NumberVal(float64(len(a.Items))), nil
}

func arrayPop(vm *VM, recv Value, _ []Value) (Value, error) {
	a := recv.Obj.(*ObjArray)
	if len(a.Items) == 0 {
		return NilVal(), nil
	}
	v := a.Items[len(a.Items)-1]
	a.Items[len(a.Items)-1] = Value{}
	a.Items = a.Items[:len(a.Items)-1]
	return v, nil
}

func arrayInsert(vm *VM, recv Value, args []Value) (Value, error) {
	a := recv.Obj.(*ObjArray)
	i, err := ArgInt("array.insert", args, 0)
	if err != nil {
		return NilVal(), err
	}
	if i < 0 || i > len(a.Items) {
		return NilVal(), HostError("array.insert: index %d out of range for length %d", i, len(a.Items))
	}
	vm.arrayAppend(a, NilVal())
	copy(a.Items[i+1:], a.Items[i:])
	a.Items[i] = args[1]
	return NilVal(), nil
}

func arrayRemove(vm *VM, recv Value, args []Value) (Value, error) {
	a := recv.Obj.(*ObjArray)
	i, err := ArgInt("array.remove", args, 0)
	if err != nil {
		return NilVal(), err
	}
	if i < 0 || i >= len(a.Items) {
		return NilVal(), HostError("array.remove: index %d out of range for length %d", i, len(a.Items))
	}
	v := a.Items[i]
	copy(a.Items[i:], a.Items[i+1:])
	a.Items[len(a.Items)-1] = Value{}
	a.Items = a.Items[:len(a.Items)-1]
	return v, nil
}

// sliceBounds reads (start[, end]) for a sequence of length n. Negative
// positions count from the end.
func sliceBounds(fn string, args []Value, n int) (int, int, error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, 0, HostError("%s expects 1 or 2 arguments but got %d", fn, len(args))
	}
	start, err := ArgInt(fn, args, 0)
	if err != nil {
		return 0, 0, err
	}
	end := n
	if len(args) == 2 {
		if end, err = ArgInt(fn, args, 1); err != nil {
			return 0, 0, err
		}
	}
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	start, end = clamp(start), clamp(end)
	if end < start {
		end = start
	}
	return start, end, nil
}

func arraySlice(vm *VM, recv Value, args []Value) (Value, error) {
	a := recv.Obj.(*ObjArray)
	start, end, err := sliceBounds("array.slice", args, len(a.Items))
	if err != nil {
		return NilVal(), err
	}
	return ObjVal(vm.NewArray(a.Items[start:end])), nil
}

func arrayJoin(vm *VM, recv Value, args []Value) (Value, error) {
	a := recv.Obj.(*ObjArray)
	sep := ""
	if len(args) > 1 {
		return NilVal(), HostError("array.join expects at most 1 argument but got %d", len(args))
	}
	if len(args) == 1 {
		var err error
		if sep, err = ArgString("array.join", args, 0); err != nil {
			return NilVal(), err
		}
	}
	var b strings.Builder
	for i, item := range a.Items {
		if i > 0 {
			b.WriteString(sep)
		}
		writeValue(&b, item, 0)
	}
	return vm.StringVal(b.String()), nil
}

// String methods

func stringUpper(vm *VM, recv Value, _ []Value) (Value, error) {
	return vm.StringVal(strings.ToUpper(recv.Obj.(*ObjString).Chars)), nil
}

func stringLower(vm *VM, recv Value, _ []Value) (Value, error) {
	return vm.StringVal(strings.ToLower(recv.Obj.(*ObjString).Chars)), nil
}

func stringTrim(vm *VM, recv Value, _ []Value) (Value, error) {
	return vm.StringVal(strings.TrimSpace(recv.Obj.(*ObjString).Chars)), nil
}

func stringSplit(vm *VM, recv Value, args []Value) (Value, error) {
	sep, err := ArgString("string.split", args, 0)
	if err != nil {
		return NilVal(), err
	}
	parts := strings.Split(recv.Obj.(*ObjString).Chars, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = vm.StringVal(p)
	}
	return ObjVal(vm.NewArray(items)), nil
}

func stringFind(vm *VM, recv Value, args []Value) (Value, error) {
	sub, err := ArgString("string.find", args, 0)
	if err != nil {
		return NilVal(), err
	}
	return NumberVal(float64(strings.Index(recv.Obj.(*ObjString).Chars, sub))), nil
}

func stringSlice(vm *VM, recv Value, args []Value) (Value, error) {
	s := recv.Obj.(*ObjString).Chars
	start, end, err := sliceBounds("string.slice", args, len(s))
	if err != nil {
		return NilVal(), err
	}
	return vm.StringVal(s[start:end]), nil
}

// Table methods

func tableKeys(vm *VM, recv Value, _ []Value) (Value, error) {
	return ObjVal(vm.NewArray(tableItems(recv.Obj.(*ObjTable), true))), nil
}

func tableValues(vm *VM, recv Value, _ []Value) (Value, error) {
	return ObjVal(vm.NewArray(tableItems(recv.Obj.(*ObjTable), false))), nil
}

func tableItems(t *ObjTable, keys bool) []Value {
	items := make([]Value, 0, t.Entries.Len())
	for cursor := 0; ; {
		var k, v Value
		var ok bool
		if cursor, k, v, ok = t.Entries.Next(cursor); !ok {
			break
		}
		if keys {
			items = append(items, k)
		} else {
			items = append(items, v)
		}
	}
	return items
}

func tableHas(vm *VM, recv Value, args []Value) (Value, error) {
	if args[0].IsNil() {
		return BoolVal(false), nil
	}
	return BoolVal(has(&recv.Obj.(*ObjTable).Entries, args[0])), nil
}
