package node

// ParamKind discriminates ParamValue payloads.
type ParamKind uint8

const (
	ParamBool ParamKind = iota
	ParamInt
	ParamUint
	ParamF32
	ParamF64
)

// ParamValue is a compact parameter value. Exactly one field, selected
// by Kind, is meaningful.
type ParamValue struct {
	Kind ParamKind
	Bool bool
	Int  int64
	Uint uint64
	F32  float32
	F64  float64
}

// BoolValue returns a bool parameter value.
func BoolValue(v bool) ParamValue { return ParamValue{Kind: ParamBool, Bool: v} }

// IntValue returns an int64 parameter value.
func IntValue(v int64) ParamValue { return ParamValue{Kind: ParamInt, Int: v} }

// UintValue returns a uint64 parameter value.
func UintValue(v uint64) ParamValue { return ParamValue{Kind: ParamUint, Uint: v} }

// F32Value returns a float32 parameter value.
func F32Value(v float32) ParamValue { return ParamValue{Kind: ParamF32, F32: v} }

// F64Value returns a float64 parameter value.
func F64Value(v float64) ParamValue { return ParamValue{Kind: ParamF64, F64: v} }

// Event is the payload delivered to a processor. Either Param is set,
// or Custom holds a node-defined value allocated on the control thread.
type Event struct {
	// ParamID identifies the parameter when IsParam.
	ParamID uint32
	Param   ParamValue
	IsParam bool
	// Custom is an opaque payload the node defines. The engine ships
	// elapsed custom payloads back to the control thread so the
	// processor never frees them.
	Custom any
}

// ParamEvent returns a parameter change event.
func ParamEvent(id uint32, v ParamValue) Event {
	return Event{ParamID: id, Param: v, IsParam: true}
}

// CustomEvent returns an event with a node-defined payload.
func CustomEvent(payload any) Event {
	return Event{Custom: payload}
}
