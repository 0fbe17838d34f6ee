package vm

import (
	"math"
	"strconv"
)

// ValueType identifies the type of value stored in the Value struct
type ValueType uint8

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj // Heap object (string, function, closure, class, instance, ...)
)

// Value is a stack-allocated tagged union. It avoids heap allocation for
// the primitives (nil, bool, number); everything else is a non-owning
// reference into the heap.
type Value struct {
	Type ValueType
	Data uint64 // float64 bits for numbers, 0/1 for bools
	Obj  Obj    // set only for ValObj
}

// Constructors

func NilVal() Value {
	return Value{Type: ValNil}
}

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func NumberVal(v float64) Value {
	return Value{Type: ValNumber, Data: math.Float64bits(v)}
}

func ObjVal(o Obj) Value {
	return Value{Type: ValObj, Obj: o}
}

// Accessors

func (v Value) AsBool() bool {
	return v.Data == 1
}

func (v Value) AsNumber() float64 {
	return math.Float64frombits(v.Data)
}

// Type checking helpers

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsObj() bool    { return v.Type == ValObj }

func (v Value) IsString() bool {
	if v.Type != ValObj {
		return false
	}
	_, ok := v.Obj.(*ObjString)
	return ok
}

func (v Value) AsString() *ObjString {
	return v.Obj.(*ObjString)
}

// IsFalsy reports Lox truthiness: nil and false are falsy, everything else
// is truthy.
func (v Value) IsFalsy() bool {
	return v.Type == ValNil || (v.Type == ValBool && v.Data == 0)
}

// Equals implements Lox ==. Strings are interned, so object comparison is
// identity comparison for them too.
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
		// IEEE comparison: NaN is not equal to itself
		return v.AsNumber() == other.AsNumber()
	case ValObj:
		return v.Obj == other.Obj
	default:
		return false
	}
}

// String renders the value the way print does.
func (v Value) String() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		return strconv.FormatBool(v.Data == 1)
	case ValNumber:
		return formatNumber(v.AsNumber())
	case ValObj:
		return v.Obj.String()
	default:
		return "<?>"
	}
}

// formatNumber prints integral doubles without a decimal point, so 7.0
// prints as "7".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
