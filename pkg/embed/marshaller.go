package kiln

import (
	"fmt"
	"reflect"

	"github.com/funvibe/kiln/internal/vm"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	valueType = reflect.TypeOf(vm.Value{})
	vmType    = reflect.TypeOf((*vm.VM)(nil))
)

// Bind exposes an ordinary Go function as a global. Arguments are converted
// to the parameter types; a leading *VM parameter receives the machine.
// The function may return nothing, one value, or a value and an error.
func (in *Interpreter) Bind(name string, fn any) error {
	native, err := wrapFunc(name, fn)
	if err != nil {
		return err
	}
	arity := -1
	ft := reflect.TypeOf(fn)
	if !ft.IsVariadic() {
		arity = ft.NumIn()
		if arity > 0 && ft.In(0) == vmType {
			arity--
		}
	}
	in.machine.DefineNative(name, arity, native)
	return nil
}

func wrapFunc(name string, fn any) (vm.NativeFn, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("bind %s: %s is not a function", name, ft)
	}
	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("bind %s: second result must be error", name)
		}
	default:
		return nil, fmt.Errorf("bind %s: too many results", name)
	}

	return func(machine *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		numIn := ft.NumIn()
		var goArgs []reflect.Value
		first := 0
		if numIn > 0 && ft.In(0) == vmType {
			goArgs = append(goArgs, reflect.ValueOf(machine))
			first = 1
		}

		params := numIn - first
		if ft.IsVariadic() && len(args) < params-1 {
			return vm.NilVal(), vm.HostError("%s expects at least %d arguments, got %d", name, params-1, len(args))
		}

		for i, arg := range args {
			var target reflect.Type
			if ft.IsVariadic() && first+i >= numIn-1 {
				target = ft.In(numIn - 1).Elem()
			} else {
				target = ft.In(first + i)
			}
			rv, err := toReflect(arg, target)
			if err != nil {
				return vm.NilVal(), vm.HostError("%s: argument %d: %s", name, i+1, err)
			}
			goArgs = append(goArgs, rv)
		}

		out := fv.Call(goArgs)
		if len(out) == 2 && !out[1].IsNil() {
			return vm.NilVal(), vm.HostError("%s: %s", name, out[1].Interface().(error))
		}
		if len(out) == 0 {
			return vm.NilVal(), nil
		}
		return machine.FromGo(out[0].Interface())
	}, nil
}

// toReflect converts a script value to a Go value assignable to target.
func toReflect(v vm.Value, target reflect.Type) (reflect.Value, error) {
	if target == valueType {
		return reflect.ValueOf(v), nil
	}
	x, err := vm.ToGo(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if x == nil {
		return reflect.Zero(target), nil
	}

	rv := reflect.ValueOf(x)
	switch {
	case rv.Type().AssignableTo(target):
		return rv, nil
	case rv.Kind() == reflect.Float64 && isIntKind(target.Kind()):
		if !v.IsInteger() {
			return reflect.Value{}, fmt.Errorf("%s is not an integer", v)
		}
		return rv.Convert(target), nil
	case rv.Type().ConvertibleTo(target):
		return rv.Convert(target), nil
	case rv.Kind() == reflect.Slice && target.Kind() == reflect.Slice:
		out := reflect.MakeSlice(target, 0, rv.Len())
		items, _ := v.Obj.(*vm.ObjArray)
		for _, item := range items.Items {
			e, err := toReflect(item, target.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, e)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.TypeName(), target)
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
