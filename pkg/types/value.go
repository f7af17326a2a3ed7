// Package types provides the backend-agnostic data model shared by the
// parser, planner, dispatcher, executor and every connector.
package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// DataType is the logical type of a result column.
type DataType int

const (
	DataTypeText DataType = iota
	DataTypeInteger
	DataTypeFloat
	DataTypeBoolean
	DataTypeDate
	DataTypeDateTime
	DataTypeJSON
	DataTypeBinary
)

var dataTypeNames = [...]string{
	DataTypeText:     "text",
	DataTypeInteger:  "integer",
	DataTypeFloat:    "float",
	DataTypeBoolean:  "boolean",
	DataTypeDate:     "date",
	DataTypeDateTime: "datetime",
	DataTypeJSON:     "json",
	DataTypeBinary:   "binary",
}

// String returns the lower-case name of the data type.
func (d DataType) String() string {
	if int(d) >= 0 && int(d) < len(dataTypeNames) {
		return dataTypeNames[d]
	}
	return "unknown"
}

// MarshalJSON encodes the data type as its name.
func (d DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a data type from its name.
func (d *DataType) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range dataTypeNames {
		if n == name {
			*d = DataType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown data type %q", name)
}

// ValueKind discriminates the variants of Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindInteger
	KindFloat
	KindBoolean
	KindDate
	KindDateTime
	KindJSON
	KindBinary
)

var kindNames = [...]string{
	KindNull:     "Null",
	KindText:     "Text",
	KindInteger:  "Integer",
	KindFloat:    "Float",
	KindBoolean:  "Boolean",
	KindDate:     "Date",
	KindDateTime: "DateTime",
	KindJSON:     "Json",
	KindBinary:   "Binary",
}

// String returns the variant name.
func (k ValueKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Value is a single typed cell. Date and DateTime carry ISO-8601 strings
// and JSON carries the encoded document text.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	bin  []byte
}

func NullValue() Value               { return Value{kind: KindNull} }
func TextValue(s string) Value       { return Value{kind: KindText, s: s} }
func IntegerValue(i int64) Value     { return Value{kind: KindInteger, i: i} }
func FloatValue(f float64) Value     { return Value{kind: KindFloat, f: f} }
func BooleanValue(b bool) Value      { return Value{kind: KindBoolean, b: b} }
func DateValue(iso string) Value     { return Value{kind: KindDate, s: iso} }
func DateTimeValue(iso string) Value { return Value{kind: KindDateTime, s: iso} }
func JSONValue(doc string) Value     { return Value{kind: KindJSON, s: doc} }
func BinaryValue(data []byte) Value  { return Value{kind: KindBinary, bin: data} }

// Kind returns the variant of the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the string payload of Text, Date, DateTime and JSON values.
func (v Value) Text() string { return v.s }

// Int returns the payload of an Integer value.
func (v Value) Int() int64 { return v.i }

// Float returns the payload of a Float value.
func (v Value) Float() float64 { return v.f }

// Bool returns the payload of a Boolean value.
func (v Value) Bool() bool { return v.b }

// Bytes returns the payload of a Binary value.
func (v Value) Bytes() []byte { return v.bin }

// AsFloat converts numeric values to float64. ok is false for any other kind.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// DataType returns the column type this value implies. Null has no type of
// its own and reports Text.
func (v Value) DataType() DataType {
	switch v.kind {
	case KindInteger:
		return DataTypeInteger
	case KindFloat:
		return DataTypeFloat
	case KindBoolean:
		return DataTypeBoolean
	case KindDate:
		return DataTypeDate
	case KindDateTime:
		return DataTypeDateTime
	case KindJSON:
		return DataTypeJSON
	case KindBinary:
		return DataTypeBinary
	default:
		return DataTypeText
	}
}

// String renders the value for display. Null renders as "NULL".
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindBinary:
		return base64.StdEncoding.EncodeToString(v.bin)
	default:
		return v.s
	}
}

// DebugString renders the value together with its variant, e.g. Text("a").
// It gives mixed-kind comparisons a deterministic fallback order.
func (v Value) DebugString() string {
	switch v.kind {
	case KindNull:
		return "Null"
	case KindInteger, KindFloat, KindBoolean:
		return fmt.Sprintf("%s(%s)", v.kind, v.String())
	case KindBinary:
		return fmt.Sprintf("Binary(%v)", v.bin)
	default:
		return fmt.Sprintf("%s(%q)", v.kind, v.s)
	}
}

// Interface returns the value as a plain Go value: nil, string, int64,
// float64, bool or []byte. JSON documents are decoded when valid.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindBinary:
		return v.bin
	case KindJSON:
		var doc interface{}
		if err := json.Unmarshal([]byte(v.s), &doc); err == nil {
			return doc
		}
		return v.s
	default:
		return v.s
	}
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindJSON:
		if json.Valid([]byte(v.s)) {
			return []byte(v.s), nil
		}
		return json.Marshal(v.s)
	case KindBinary:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.bin))
	default:
		return json.Marshal(v.Interface())
	}
}

// ValueOf converts a plain Go value into a Value. Maps and slices other
// than []byte become JSON values.
func ValueOf(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case string:
		return TextValue(t)
	case []byte:
		return BinaryValue(t)
	case bool:
		return BooleanValue(t)
	case int:
		return IntegerValue(int64(t))
	case int32:
		return IntegerValue(int64(t))
	case int64:
		return IntegerValue(t)
	case uint32:
		return IntegerValue(int64(t))
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntegerValue(i)
		}
		f, _ := t.Float64()
		return FloatValue(f)
	default:
		doc, err := json.Marshal(t)
		if err != nil {
			return TextValue(fmt.Sprint(t))
		}
		return JSONValue(string(doc))
	}
}
