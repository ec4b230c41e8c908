package nexlog

import (
	"fmt"
	"sort"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// FieldKind discriminates the variants of a FieldValue.
type FieldKind int

const (
	KindNull FieldKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindArray
	KindObject
)

// FieldValue is a tagged variant over the value types a structured field may
// carry. The zero value is null.
type FieldValue struct {
	kind FieldKind
	str  string
	i64  int64
	f64  float64
	b    bool
	arr  []FieldValue
	obj  []ObjectEntry
}

// ObjectEntry is one key/value pair of an object-valued field. Entries keep
// insertion order.
type ObjectEntry struct {
	Key   string
	Value FieldValue
}

func StringValue(s string) FieldValue  { return FieldValue{kind: KindString, str: s} }
func IntValue(i int64) FieldValue      { return FieldValue{kind: KindInt, i64: i} }
func FloatValue(f float64) FieldValue  { return FieldValue{kind: KindFloat, f64: f} }
func BoolValue(b bool) FieldValue      { return FieldValue{kind: KindBool, b: b} }
func NullValue() FieldValue            { return FieldValue{kind: KindNull} }
func ArrayValue(vs ...FieldValue) FieldValue {
	return FieldValue{kind: KindArray, arr: vs}
}
func ObjectValue(entries ...ObjectEntry) FieldValue {
	return FieldValue{kind: KindObject, obj: entries}
}

// Kind reports which variant the value holds.
func (v FieldValue) Kind() FieldKind { return v.kind }

// Field is a named structured value with optional string attributes.
// Attributes render as "<name>_<key>" siblings next to the parent field.
type Field struct {
	Name       string
	Value      FieldValue
	Attributes map[string]string
}

// F builds a Field from any Go value, mapping native types onto the tagged
// variant. Unsupported types fall back to their fmt representation.
func F(name string, value interface{}) Field {
	return Field{Name: name, Value: valueOf(value)}
}

func valueOf(value interface{}) FieldValue {
	switch v := value.(type) {
	case nil:
		return NullValue()
	case string:
		return StringValue(v)
	case bool:
		return BoolValue(v)
	case int:
		return IntValue(int64(v))
	case int8:
		return IntValue(int64(v))
	case int16:
		return IntValue(int64(v))
	case int32:
		return IntValue(int64(v))
	case int64:
		return IntValue(v)
	case uint:
		return IntValue(int64(v))
	case uint8:
		return IntValue(int64(v))
	case uint16:
		return IntValue(int64(v))
	case uint32:
		return IntValue(int64(v))
	case float32:
		return FloatValue(float64(v))
	case float64:
		return FloatValue(v)
	case []FieldValue:
		return ArrayValue(v...)
	case FieldValue:
		return v
	case error:
		return StringValue(v.Error())
	default:
		return StringValue(fmt.Sprint(v))
	}
}

// appendJSON appends the JSON encoding of the value. Strings go through the
// JSON encoder so interior quotes and backslashes come out escaped.
func (v FieldValue) appendJSON(dst []byte) []byte {
	switch v.kind {
	case KindString:
		return appendJSONString(dst, v.str)
	case KindInt:
		return strconv.AppendInt(dst, v.i64, 10)
	case KindFloat:
		return strconv.AppendFloat(dst, v.f64, 'g', -1, 64)
	case KindBool:
		return strconv.AppendBool(dst, v.b)
	case KindArray:
		dst = append(dst, '[')
		for i, el := range v.arr {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = el.appendJSON(dst)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, e := range v.obj {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendJSONString(dst, e.Key)
			dst = append(dst, ':')
			dst = e.Value.appendJSON(dst)
		}
		return append(dst, '}')
	default:
		return append(dst, "null"...)
	}
}

func appendJSONString(dst []byte, s string) []byte {
	encoded, err := gojson.Marshal(s)
	if err != nil {
		// Marshal of a string cannot fail; keep the raw text if it ever does.
		dst = append(dst, '"')
		dst = append(dst, s...)
		return append(dst, '"')
	}
	return append(dst, encoded...)
}

// text renders the value the way logfmt and custom formats expect: scalars
// bare, composites in their JSON form.
func (v FieldValue) text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return "null"
	default:
		return string(v.appendJSON(nil))
	}
}

// sortedAttributeKeys returns the attribute keys in a stable order.
func (f Field) sortedAttributeKeys() []string {
	if len(f.Attributes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
