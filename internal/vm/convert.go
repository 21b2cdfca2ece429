package vm

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// maxConvertDepth bounds ToGo on self-referencing containers.
const maxConvertDepth = 64

// ToGo converts a script value to plain Go data: nil, bool, float64, string,
// []any, map[string]any (tables with only string keys and instances),
// map[any]any (other tables) and the payload of host class instances.
// Functions, classes and libraries have no Go form.
func ToGo(v Value) (any, error) {
	return toGo(v, 0)
}

func toGo(v Value, depth int) (any, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxConvertDepth)
	}
	switch v.Type {
	case ValNil:
		return nil, nil
	case ValBool:
		return v.AsBool(), nil
	case ValNumber:
		return v.AsNumber(), nil
	}

	switch o := v.Obj.(type) {
	case *ObjString:
		return o.Chars, nil
	case *ObjArray:
		out := make([]any, len(o.Items))
		for i, item := range o.Items {
			x, err := toGo(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case *ObjTable:
		return mapToGo(&o.Entries, depth)
	case *ObjInstance:
		return mapToGo(&o.Fields, depth)
	case *ObjNativeInstance:
		return o.Payload, nil
	default:
		return nil, fmt.Errorf("cannot convert %s to a Go value", v.TypeName())
	}
}

func mapToGo(m *Map, depth int) (any, error) {
	stringKeys := true
	for cursor := 0; ; {
		var k Value
		var ok bool
		if cursor, k, _, ok = m.Next(cursor); !ok {
			break
		}
		if _, isStr := k.AsString(); !isStr {
			stringKeys = false
			break
		}
	}

	if stringKeys {
		out := make(map[string]any, m.Len())
		for cursor := 0; ; {
			var k, val Value
			var ok bool
			if cursor, k, val, ok = m.Next(cursor); !ok {
				break
			}
			x, err := toGo(val, depth+1)
			if err != nil {
				return nil, err
			}
			s, _ := k.AsString()
			out[s.Chars] = x
		}
		return out, nil
	}

	out := make(map[any]any, m.Len())
	for cursor := 0; ; {
		var k, val Value
		var ok bool
		if cursor, k, val, ok = m.Next(cursor); !ok {
			break
		}
		gk, err := toGo(k, depth+1)
		if err != nil {
			return nil, err
		}
		if gk != nil && !reflect.TypeOf(gk).Comparable() {
			return nil, fmt.Errorf("table key of type %s has no Go map form", k.TypeName())
		}
		x, err := toGo(val, depth+1)
		if err != nil {
			return nil, err
		}
		out[gk] = x
	}
	return out, nil
}

// FromGo converts Go data to a script value. Integers and floats become
// numbers, []byte becomes a string, slices and arrays become arrays, maps
// and structs (exported fields) become tables, pointers are followed and
// time.Time is rendered as RFC 3339. A Value is returned unchanged.
func (vm *VM) FromGo(x any) (Value, error) {
	vm.heap.pause()
	defer vm.heap.resume()
	return vm.fromGo(reflect.ValueOf(x), 0)
}

var (
	valueType = reflect.TypeOf(Value{})
	timeType  = reflect.TypeOf(time.Time{})
)

func (vm *VM) fromGo(rv reflect.Value, depth int) (Value, error) {
	if depth > maxConvertDepth {
		return NilVal(), fmt.Errorf("value nested deeper than %d levels", maxConvertDepth)
	}
	if !rv.IsValid() {
		return NilVal(), nil
	}
	if rv.Type() == valueType {
		return rv.Interface().(Value), nil
	}
	if rv.Type() == timeType {
		return vm.StringVal(rv.Interface().(time.Time).Format(time.RFC3339Nano)), nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return NilVal(), nil
		}
		return vm.fromGo(rv.Elem(), depth)
	case reflect.Bool:
		return BoolVal(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberVal(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return NumberVal(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return NumberVal(rv.Float()), nil
	case reflect.String:
		return vm.StringVal(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return NilVal(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return vm.StringVal(string(b)), nil
		}
		arr := vm.NewArray(nil)
		for i := 0; i < rv.Len(); i++ {
			item, err := vm.fromGo(rv.Index(i), depth+1)
			if err != nil {
				return NilVal(), err
			}
			vm.arrayAppend(arr, item)
		}
		return ObjVal(arr), nil
	case reflect.Map:
		if rv.IsNil() {
			return NilVal(), nil
		}
		t := vm.NewTable()
		keys := rv.MapKeys()
		// Insertion order decides slot order, so keep it stable.
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, mk := range keys {
			k, err := vm.fromGo(mk, depth+1)
			if err != nil {
				return NilVal(), err
			}
			if k.IsNil() {
				return NilVal(), fmt.Errorf("nil map key cannot be a table key")
			}
			val, err := vm.fromGo(rv.MapIndex(mk), depth+1)
			if err != nil {
				return NilVal(), err
			}
			vm.TableSet(t, k, val)
		}
		return ObjVal(t), nil
	case reflect.Struct:
		t := vm.NewTable()
		st := rv.Type()
		for i := 0; i < st.NumField(); i++ {
			field := st.Field(i)
			if !field.IsExported() {
				continue
			}
			val, err := vm.fromGo(rv.Field(i), depth+1)
			if err != nil {
				return NilVal(), err
			}
			vm.TableSet(t, vm.StringVal(field.Name), val)
		}
		return ObjVal(t), nil
	default:
		return NilVal(), fmt.Errorf("cannot convert Go %s to a script value", rv.Type())
	}
}
