package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind enumerates the source column types a Row can carry.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTime
	KindJSON
)

// Value is a tagged variant over the supported source column types. Rows are
// modeled this way instead of free-form interface{} maps so the mapping
// translator and bulk writer can stay statically typed against them.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Time  time.Time
	JSON  json.RawMessage
}

func NullValue() Value               { return Value{Kind: KindNull} }
func IntValue(v int64) Value         { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value     { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value     { return Value{Kind: KindString, Str: v} }
func BoolValue(v bool) Value         { return Value{Kind: KindBool, Bool: v} }
func TimeValue(v time.Time) Value    { return Value{Kind: KindTime, Time: v} }
func JSONValue(v json.RawMessage) Value {
	return Value{Kind: KindJSON, JSON: v}
}

// MarshalJSON renders the variant as the natural JSON form of its kind.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindTime:
		return json.Marshal(v.Time.UTC().Format(time.RFC3339Nano))
	case KindJSON:
		if len(v.JSON) == 0 {
			return []byte("null"), nil
		}
		return v.JSON, nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// String renders the value the way it is used as a document id, without JSON
// quoting.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339Nano)
	case KindJSON:
		return string(v.JSON)
	default:
		return ""
	}
}

// Row is one source record: column names in declaration order plus the value
// for each. Rows are transient and only live for the duration of a batch.
type Row struct {
	Columns []string
	Values  map[string]Value
}

// Get returns the value for a column, or a null value if the column is absent.
func (r Row) Get(column string) Value {
	v, ok := r.Values[column]
	if !ok {
		return NullValue()
	}
	return v
}

// MarshalJSON emits the row as a flat JSON object, which is exactly the
// document body sent to the index.
func (r Row) MarshalJSON() ([]byte, error) {
	doc := make(map[string]Value, len(r.Values))
	for k, v := range r.Values {
		doc[k] = v
	}
	return json.Marshal(doc)
}
