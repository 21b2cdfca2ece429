package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
)

var opSymbols = map[Opcode]string{
	OP_ADD:    "+",
	OP_SUB:    "-",
	OP_MUL:    "*",
	OP_DIV:    "/",
	OP_MOD:    "mod",
	OP_LT:     "<",
	OP_LE:     "<=",
	OP_GT:     ">",
	OP_GE:     ">=",
	OP_BAND:   "&",
	OP_BOR:    "|",
	OP_BXOR:   "^",
	OP_LSHIFT: "<<",
	OP_RSHIFT: ">>",
}

func (vm *VM) operandError(op Opcode, a, b Value) error {
	return vm.runtimeError(diagnostics.ErrR001,
		fmt.Sprintf("cannot apply %s to %s and %s", opSymbols[op], a.TypeName(), b.TypeName()))
}

// floorMod returns a mod b with the sign of b.
func floorMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// binaryOp handles arithmetic. + also joins two strings.
func (vm *VM) binaryOp(op Opcode) error {
	a, b := vm.peek(1), vm.peek(0)

	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsNumber(), b.AsNumber()
		var r float64
		switch op {
		case OP_ADD:
			r = x + y
		case OP_SUB:
			r = x - y
		case OP_MUL:
			r = x * y
		case OP_DIV:
			r = x / y
		case OP_MOD:
			r = floorMod(x, y)
		}
		vm.pop()
		vm.stack[vm.sp-1] = NumberVal(r)
		return nil
	}

	if op == OP_ADD {
		if sa, ok := a.AsString(); ok {
			if sb, ok := b.AsString(); ok {
				s := vm.NewString(sa.Chars + sb.Chars)
				vm.pop()
				vm.stack[vm.sp-1] = ObjVal(s)
				return nil
			}
		}
	}
	return vm.operandError(op, a, b)
}

// comparisonOp orders two numbers or two strings.
func (vm *VM) comparisonOp(op Opcode) error {
	a, b := vm.peek(1), vm.peek(0)

	var cmp int
	switch {
	case a.IsNumber() && b.IsNumber():
		x, y := a.AsNumber(), b.AsNumber()
		if math.IsNaN(x) || math.IsNaN(y) {
			vm.pop()
			vm.stack[vm.sp-1] = BoolVal(false)
			return nil
		}
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	default:
		sa, ok1 := a.AsString()
		sb, ok2 := b.AsString()
		if !ok1 || !ok2 {
			return vm.operandError(op, a, b)
		}
		cmp = strings.Compare(sa.Chars, sb.Chars)
	}

	var r bool
	switch op {
	case OP_LT:
		r = cmp < 0
	case OP_LE:
		r = cmp <= 0
	case OP_GT:
		r = cmp > 0
	case OP_GE:
		r = cmp >= 0
	}
	vm.pop()
	vm.stack[vm.sp-1] = BoolVal(r)
	return nil
}

// bitwiseOp works on the truncated integer values of integral operands.
func (vm *VM) bitwiseOp(op Opcode) error {
	a, b := vm.peek(1), vm.peek(0)
	if !a.IsInteger() || !b.IsInteger() {
		return vm.runtimeError(diagnostics.ErrR015, opSymbols[op], a.TypeName(), b.TypeName())
	}

	x, y := int64(a.AsNumber()), int64(b.AsNumber())
	var r int64
	switch op {
	case OP_BAND:
		r = x & y
	case OP_BOR:
		r = x | y
	case OP_BXOR:
		r = x ^ y
	case OP_LSHIFT, OP_RSHIFT:
		if y < 0 {
			return vm.runtimeError(diagnostics.ErrR001, fmt.Sprintf("negative shift count %d", y))
		}
		if op == OP_LSHIFT {
			r = x << uint64(y)
		} else {
			r = x >> uint64(y)
		}
	}
	vm.pop()
	vm.stack[vm.sp-1] = NumberVal(float64(r))
	return nil
}

func (vm *VM) length(v Value) (int, error) {
	if v.Type == ValObj {
		switch o := v.Obj.(type) {
		case *ObjString:
			return len(o.Chars), nil
		case *ObjArray:
			return len(o.Items), nil
		case *ObjTable:
			return o.Entries.Len(), nil
		case *ObjInstance:
			return o.Fields.Len(), nil
		}
	}
	return 0, vm.runtimeError(diagnostics.ErrR001, "len expects a string, array, table or instance, got "+v.TypeName())
}

// index converts key to a position in a sequence of length n.
func (vm *VM) index(key Value, n int) (int, error) {
	if !key.IsInteger() {
		return 0, vm.runtimeError(diagnostics.ErrR001, "index must be an integer, got "+key.TypeName())
	}
	i := key.AsNumber()
	if i < 0 || i >= float64(n) {
		return 0, vm.runtimeError(diagnostics.ErrR004, key.String(), n)
	}
	return int(i), nil
}

// getMember implements a.b and a[b]. Tables and instances look in their own
// entries first and then in the shared method table; a missing key reads as
// nil. Arrays and strings take an integer index or a method name.
func (vm *VM) getMember(container, key Value) (Value, error) {
	if key.IsNil() {
		return NilVal(), vm.runtimeError(diagnostics.ErrR013)
	}

	if container.Type == ValObj {
		switch o := container.Obj.(type) {
		case *ObjInstance:
			if v, ok := o.Fields.Get(key); ok {
				return v, nil
			}
			if m, ok := o.Class.Methods.Get(key); ok {
				return vm.bindMethod(container, m), nil
			}
			return NilVal(), nil

		case *ObjTable:
			if v, ok := o.Entries.Get(key); ok {
				return v, nil
			}
			if m, ok := vm.tableMethods.Get(key); ok {
				return vm.bindMethod(container, m), nil
			}
			return NilVal(), nil

		case *ObjArray:
			if key.IsNumber() {
				i, err := vm.index(key, len(o.Items))
				if err != nil {
					return NilVal(), err
				}
				return o.Items[i], nil
			}
			if m, ok := vm.arrayMethods.Get(key); ok {
				return vm.bindMethod(container, m), nil
			}

		case *ObjString:
			if key.IsNumber() {
				i, err := vm.index(key, len(o.Chars))
				if err != nil {
					return NilVal(), err
				}
				return vm.StringVal(o.Chars[i : i+1]), nil
			}
			if m, ok := vm.stringMethods.Get(key); ok {
				return vm.bindMethod(container, m), nil
			}

		case *ObjNativeInstance:
			if m, ok := o.Class.Methods.Get(key); ok {
				return vm.bindMethod(container, m), nil
			}

		case *ObjClass:
			if m, ok := o.Methods.Get(key); ok {
				return m, nil
			}

		case *ObjNativeClass:
			if m, ok := o.Methods.Get(key); ok {
				return m, nil
			}

		case *ObjLibrary:
			if v, ok := o.Symbols.Get(key); ok {
				return v, nil
			}
		}
	}
	return NilVal(), vm.runtimeError(diagnostics.ErrR011, container.TypeName(), key.String())
}

// setMember implements a.b = v and a[b] = v. Writing past the end of an
// array extends it with nil.
func (vm *VM) setMember(container, key, value Value) error {
	if key.IsNil() {
		return vm.runtimeError(diagnostics.ErrR013)
	}

	if container.Type == ValObj {
		switch o := container.Obj.(type) {
		case *ObjTable:
			vm.mapSet(o, &o.Entries, key, value)
			return nil

		case *ObjInstance:
			vm.mapSet(o, &o.Fields, key, value)
			return nil

		case *ObjArray:
			i, ok := key.AsIndex(config.MaxArrayLength)
			if !ok {
				return vm.runtimeError(diagnostics.ErrR004, key.String(), len(o.Items))
			}
			if i >= len(o.Items) {
				vm.arrayAppend(o, make([]Value, i-len(o.Items)+1)...)
			}
			o.Items[i] = value
			return nil
		}
	}
	return vm.runtimeError(diagnostics.ErrR012, "cannot assign to a member of "+container.TypeName())
}

func (vm *VM) deleteMember(container, key Value) (bool, error) {
	if key.IsNil() {
		return false, vm.runtimeError(diagnostics.ErrR013)
	}
	if container.Type == ValObj {
		switch o := container.Obj.(type) {
		case *ObjTable:
			return o.Entries.Delete(key), nil
		case *ObjInstance:
			return o.Fields.Delete(key), nil
		}
	}
	return false, vm.runtimeError(diagnostics.ErrR012, "cannot delete from "+container.TypeName())
}

// contains implements key in container.
func (vm *VM) contains(container, key Value) (bool, error) {
	if container.Type == ValObj {
		switch o := container.Obj.(type) {
		case *ObjTable:
			return !key.IsNil() && has(&o.Entries, key), nil
		case *ObjInstance:
			return !key.IsNil() && has(&o.Fields, key), nil
		case *ObjArray:
			for _, item := range o.Items {
				if item.Equals(key) {
					return true, nil
				}
			}
			return false, nil
		case *ObjString:
			sub, ok := key.AsString()
			if !ok {
				return false, vm.runtimeError(diagnostics.ErrR001, "cannot search a string for "+key.TypeName())
			}
			return strings.Contains(o.Chars, sub.Chars), nil
		}
	}
	return false, vm.runtimeError(diagnostics.ErrR001, "cannot use 'in' with "+container.TypeName())
}

// iterate advances the for-in loop whose state starts at slot: the sequence,
// then the cursor, then nvars loop variables. It reports whether another
// element was bound.
func (vm *VM) iterate(slot, nvars int) (bool, error) {
	seq := vm.stack[slot]
	cursor := 0
	if c := vm.stack[slot+1]; c.IsNumber() {
		cursor = int(c.AsNumber())
	}

	// Closures from the previous iteration keep their own copy.
	vm.closeUpvalues(slot + 2)

	if seq.Type == ValObj {
		switch o := seq.Obj.(type) {
		case *ObjArray:
			if cursor >= len(o.Items) {
				return false, nil
			}
			vm.bindLoopVars(slot, nvars, NumberVal(float64(cursor)), o.Items[cursor])
			vm.stack[slot+1] = NumberVal(float64(cursor + 1))
			return true, nil

		case *ObjString:
			if cursor >= len(o.Chars) {
				return false, nil
			}
			ch := vm.StringVal(o.Chars[cursor : cursor+1])
			vm.bindLoopVars(slot, nvars, NumberVal(float64(cursor)), ch)
			vm.stack[slot+1] = NumberVal(float64(cursor + 1))
			return true, nil

		case *ObjTable:
			return vm.iterateMap(&o.Entries, slot, nvars, cursor), nil

		case *ObjInstance:
			return vm.iterateMap(&o.Fields, slot, nvars, cursor), nil
		}
	}
	return false, vm.runtimeError(diagnostics.ErrR014, seq.TypeName())
}

// iterateMap walks slot order; a single loop variable receives the key.
func (vm *VM) iterateMap(m *Map, slot, nvars, cursor int) bool {
	next, key, value, ok := m.Next(cursor)
	if !ok {
		return false
	}
	if nvars == 1 {
		vm.stack[slot+2] = key
	} else {
		vm.stack[slot+2] = key
		vm.stack[slot+3] = value
	}
	vm.stack[slot+1] = NumberVal(float64(next))
	return true
}

// bindLoopVars binds element, or (position, element) for two variables.
func (vm *VM) bindLoopVars(slot, nvars int, pos, element Value) {
	if nvars == 1 {
		vm.stack[slot+2] = element
		return
	}
	vm.stack[slot+2] = pos
	vm.stack[slot+3] = element
}

// stepRange advances a range loop whose current, end and step values start
// at slot and whose variable follows them.
func (vm *VM) stepRange(slot int) (bool, error) {
	cur, end, step := vm.stack[slot], vm.stack[slot+1], vm.stack[slot+2]
	if !cur.IsNumber() || !end.IsNumber() || !step.IsNumber() {
		return false, vm.runtimeError(diagnostics.ErrR001,
			fmt.Sprintf("range bounds must be numbers, got %s, %s and %s", cur.TypeName(), end.TypeName(), step.TypeName()))
	}

	c, e, s := cur.AsNumber(), end.AsNumber(), step.AsNumber()
	if s == 0 {
		return false, vm.runtimeError(diagnostics.ErrR018)
	}
	if (s > 0 && c >= e) || (s < 0 && c <= e) {
		return false, nil
	}

	vm.closeUpvalues(slot + 3)
	vm.stack[slot+3] = cur
	vm.stack[slot] = NumberVal(c + s)
	return true, nil
}
