package vm

import (
	"math"
	"strconv"
	"strings"
)

// ValueType identifies the type of value stored in the Value struct
type ValueType uint8

const (
	ValNil ValueType = iota
	ValNumber
	ValBool
	ValObj
)

// Value is a stack-allocated tagged union.
// Numbers and booleans live in Data; heap objects are held by Obj so the Go
// runtime keeps them addressable while the collector decides their liveness.
type Value struct {
	Type ValueType
	Data uint64 // float64 bits, or bool (0/1)
	Obj  Object
}

// Constructors

func NilVal() Value {
	return Value{Type: ValNil}
}

func NumberVal(v float64) Value {
	return Value{Type: ValNumber, Data: math.Float64bits(v)}
}

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func ObjVal(o Object) Value {
	if o == nil {
		return NilVal()
	}
	return Value{Type: ValObj, Obj: o}
}

// Accessors

func (v Value) AsNumber() float64 {
	return math.Float64frombits(v.Data)
}

func (v Value) AsBool() bool {
	return v.Data == 1
}

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsObj() bool    { return v.Type == ValObj }

// Kind returns the object kind, or KindNone for non-objects.
func (v Value) Kind() ObjKind {
	if v.Type != ValObj {
		return KindNone
	}
	return v.Obj.Kind()
}

func (v Value) AsString() (*ObjString, bool) {
	s, ok := v.Obj.(*ObjString)
	return s, ok && v.Type == ValObj
}

// IsInteger reports whether v is a number equal to its truncation.
func (v Value) IsInteger() bool {
	if v.Type != ValNumber {
		return false
	}
	f := v.AsNumber()
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}

// IsWhole reports whether v is a non-negative integer.
func (v Value) IsWhole() bool {
	return v.IsInteger() && v.AsNumber() >= 0
}

// AsIndex returns v as an int when it is a whole number below limit.
func (v Value) AsIndex(limit int) (int, bool) {
	if !v.IsWhole() || v.AsNumber() >= float64(limit) {
		return 0, false
	}
	return int(v.AsNumber()), true
}

// IsByte reports whether v is a whole number no larger than 127.
func (v Value) IsByte() bool {
	return v.IsWhole() && v.AsNumber() <= 127
}

// IsFalsey: only nil and false are falsey.
func (v Value) IsFalsey() bool {
	return v.Type == ValNil || (v.Type == ValBool && v.Data == 0)
}

// Equals compares by value for numbers and booleans and by identity for
// objects. Strings are interned, so identity is content equality.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNil:
		return true
	case ValBool:
		return v.Data == other.Data
	case ValNumber:
		return v.AsNumber() == other.AsNumber()
	default:
		return v.Obj == other.Obj
	}
}

// TypeName is the user-facing name of v's runtime type, as returned by typeof.
func (v Value) TypeName() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValNumber:
		return "number"
	case ValBool:
		return "boolean"
	default:
		return v.Obj.Kind().String()
	}
}

// String renders v the way print and str do.
func (v Value) String() string {
	var b strings.Builder
	writeValue(&b, v, 0)
	return b.String()
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

const maxPrintDepth = 8

func writeValue(b *strings.Builder, v Value, depth int) {
	switch v.Type {
	case ValNil:
		b.WriteString("nil")
		return
	case ValBool:
		b.WriteString(strconv.FormatBool(v.AsBool()))
		return
	case ValNumber:
		b.WriteString(formatNumber(v.AsNumber()))
		return
	}

	if depth > maxPrintDepth {
		b.WriteString("...")
		return
	}

	switch o := v.Obj.(type) {
	case *ObjString:
		b.WriteString(o.Chars)
	case *ObjArray:
		b.WriteByte('[')
		for i, item := range o.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeElement(b, item, depth+1)
		}
		b.WriteByte(']')
	case *ObjTable:
		b.WriteByte('{')
		first := true
		for cursor := 0; ; {
			var key, value Value
			var ok bool
			cursor, key, value, ok = o.Entries.Next(cursor)
			if !ok {
				break
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			writeElement(b, key, depth+1)
			b.WriteString(": ")
			writeElement(b, value, depth+1)
		}
		b.WriteByte('}')
	case *ObjFn:
		if o.Name == "" {
			b.WriteString("<fn>")
		} else {
			b.WriteString("<fn " + o.Name + ">")
		}
	case *ObjClosure:
		writeValue(b, ObjVal(o.Fn), depth)
	case *ObjNative:
		b.WriteString("<native " + o.Name + ">")
	case *ObjBoundMethod:
		writeValue(b, o.Method, depth)
	case *ObjClass:
		b.WriteString("<class " + o.Name.Chars + ">")
	case *ObjInstance:
		b.WriteString("<" + o.Class.Name.Chars + " instance>")
	case *ObjNativeClass:
		b.WriteString("<class " + o.Name + ">")
	case *ObjNativeInstance:
		b.WriteString("<" + o.Class.Name + " instance>")
	case *ObjLibrary:
		b.WriteString("<library " + o.Name + ">")
	case *ObjUpvalue:
		b.WriteString("<upvalue>")
	default:
		b.WriteString("<?>")
	}
}

// writeElement quotes strings nested inside containers.
func writeElement(b *strings.Builder, v Value, depth int) {
	if s, ok := v.AsString(); ok {
		b.WriteString(strconv.Quote(s.Chars))
		return
	}
	writeValue(b, v, depth)
}
