package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/golang/glog"
)

type ValueKind int

const (
	ValueKindInvalid ValueKind = iota
	ValueKindNull
	ValueKindBool
	ValueKindInt
	ValueKindFloat
	ValueKindString
	ValueKindList
	ValueKindMap
	ValueKindObject
	ValueKindUser
	ValueKindDate
	ValueKindFile
	ValueKindAcl
	ValueKindError
)

// Value is the universal currency moved between the property bag, the wire
// format, and the request builders. It is a closed tagged union: primitives
// are held by value, domain types by reference. An Object or User variant is
// a non-owning handle, rendered as a pointer on the wire, so object graphs
// are only ever referenced by id.
type Value struct {
	kind ValueKind

	boolValue   bool
	intValue    int64
	floatValue  float64
	stringValue string
	listValue   []Value
	mapValue    map[string]Value
	objectValue *Object
	userValue   *User
	dateValue   DateTime
	fileValue   *File
	aclValue    *Acl
	errorValue  *Error
}

func Null() Value {
	return Value{kind: ValueKindNull}
}

func Bool(b bool) Value {
	return Value{kind: ValueKindBool, boolValue: b}
}

func Int(i int64) Value {
	return Value{kind: ValueKindInt, intValue: i}
}

func Float(f float64) Value {
	return Value{kind: ValueKindFloat, floatValue: f}
}

func String(s string) Value {
	return Value{kind: ValueKindString, stringValue: s}
}

func List(values ...Value) Value {
	return Value{kind: ValueKindList, listValue: values}
}

func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: ValueKindMap, mapValue: m}
}

func ObjectValue(object *Object) Value {
	if object == nil {
		return Value{}
	}
	return Value{kind: ValueKindObject, objectValue: object}
}

func UserValue(user *User) Value {
	if user == nil {
		return Value{}
	}
	return Value{kind: ValueKindUser, userValue: user}
}

func DateValue(date DateTime) Value {
	if !date.IsValid() {
		return Value{}
	}
	return Value{kind: ValueKindDate, dateValue: date}
}

func FileValue(file *File) Value {
	if file == nil {
		return Value{}
	}
	return Value{kind: ValueKindFile, fileValue: file}
}

func AclValue(acl *Acl) Value {
	if acl == nil {
		return Value{}
	}
	return Value{kind: ValueKindAcl, aclValue: acl}
}

func ErrorValue(e *Error) Value {
	if e == nil {
		return Value{}
	}
	return Value{kind: ValueKindError, errorValue: e}
}

// ValueFrom converts a native Go value. Unhandled types yield an invalid Value.
func ValueFrom(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []Value:
		return List(t...)
	case []any:
		values := make([]Value, 0, len(t))
		for _, e := range t {
			values = append(values, ValueFrom(e))
		}
		return List(values...)
	case map[string]Value:
		return MapValue(t)
	case map[string]any:
		m := map[string]Value{}
		for k, e := range t {
			m[k] = ValueFrom(e)
		}
		return MapValue(m)
	case *Object:
		return ObjectValue(t)
	case *User:
		return UserValue(t)
	case DateTime:
		return DateValue(t)
	case *File:
		return FileValue(t)
	case *Acl:
		return AclValue(t)
	case *Error:
		return ErrorValue(t)
	default:
		return Value{}
	}
}

func (self Value) Kind() ValueKind {
	return self.kind
}

func (self Value) IsValid() bool {
	return self.kind != ValueKindInvalid
}

func (self Value) IsNull() bool {
	return self.kind == ValueKindNull
}

func (self Value) IsNumber() bool {
	return self.kind == ValueKindInt || self.kind == ValueKindFloat
}

func (self Value) Bool() bool {
	return self.boolValue
}

func (self Value) Int() int64 {
	if self.kind == ValueKindFloat {
		return int64(self.floatValue)
	}
	return self.intValue
}

func (self Value) Float() float64 {
	if self.kind == ValueKindInt {
		return float64(self.intValue)
	}
	return self.floatValue
}

// String returns the string variant verbatim; other kinds format for
// display, containers and domain references as their wire JSON.
func (self Value) String() string {
	switch self.kind {
	case ValueKindString:
		return self.stringValue
	case ValueKindInvalid:
		return ""
	case ValueKindNull:
		return "null"
	case ValueKindBool:
		return strconv.FormatBool(self.boolValue)
	case ValueKindInt:
		return strconv.FormatInt(self.intValue, 10)
	case ValueKindFloat:
		return strconv.FormatFloat(self.floatValue, 'g', -1, 64)
	case ValueKindDate:
		return self.dateValue.String()
	default:
		if wire, err := self.toWire(); err == nil {
			if wireBytes, err := json.Marshal(wire); err == nil {
				return string(wireBytes)
			}
		}
		return ""
	}
}

func (self Value) List() []Value {
	return self.listValue
}

func (self Value) Map() map[string]Value {
	return self.mapValue
}

func (self Value) Object() *Object {
	return self.objectValue
}

func (self Value) User() *User {
	return self.userValue
}

func (self Value) Date() DateTime {
	return self.dateValue
}

func (self Value) File() *File {
	return self.fileValue
}

func (self Value) Acl() *Acl {
	return self.aclValue
}

func (self Value) Err() *Error {
	return self.errorValue
}

// toWire renders the value to a tree suitable for `encoding/json`.
// Domain variants embed their own `__type` discriminator. Objects and users
// are rendered as pointers, never embedded; a handle with no id cannot be
// rendered and is an error, as is a file that was never uploaded.
func (self Value) toWire() (any, error) {
	switch self.kind {
	case ValueKindInvalid, ValueKindNull:
		return nil, nil
	case ValueKindBool:
		return self.boolValue, nil
	case ValueKindInt:
		return self.intValue, nil
	case ValueKindFloat:
		return self.floatValue, nil
	case ValueKindString:
		return self.stringValue, nil
	case ValueKindList:
		wire := make([]any, 0, len(self.listValue))
		for _, value := range self.listValue {
			w, err := value.toWire()
			if err != nil {
				return nil, err
			}
			wire = append(wire, w)
		}
		return wire, nil
	case ValueKindMap:
		wire := map[string]any{}
		for key, value := range self.mapValue {
			w, err := value.toWire()
			if err != nil {
				return nil, err
			}
			wire[key] = w
		}
		return wire, nil
	case ValueKindObject:
		return self.objectValue.toWirePointer()
	case ValueKindUser:
		return self.userValue.toWirePointer()
	case ValueKindDate:
		return self.dateValue.toWire(), nil
	case ValueKindFile:
		return self.fileValue.toWire()
	case ValueKindAcl:
		return self.aclValue.toWire(), nil
	case ValueKindError:
		return self.errorValue.toWire(), nil
	default:
		return nil, fmt.Errorf("unhandled value kind %d", self.kind)
	}
}

// WireDecoderFunc decodes a JSON object carrying a `__type` discriminator.
type WireDecoderFunc func(client *Client, wire map[string]any) Value

var wireDecoderMutex sync.Mutex
var wireDecoders = map[string]WireDecoderFunc{}

// RegisterWireDecoder binds a `__type` discriminator to a decoder. The
// registry is open so new wire types can be handled without touching the
// conversion engine.
func RegisterWireDecoder(tag string, decoder WireDecoderFunc) {
	wireDecoderMutex.Lock()
	defer wireDecoderMutex.Unlock()
	wireDecoders[tag] = decoder
}

func wireDecoder(tag string) (WireDecoderFunc, bool) {
	wireDecoderMutex.Lock()
	defer wireDecoderMutex.Unlock()
	decoder, ok := wireDecoders[tag]
	return decoder, ok
}

func init() {
	RegisterWireDecoder("Date", decodeWireDate)
	RegisterWireDecoder("Pointer", decodeWirePointer)
	RegisterWireDecoder("Object", decodeWireObject)
	RegisterWireDecoder("File", decodeWireFile)
}

func decodeWireDate(client *Client, wire map[string]any) Value {
	iso, _ := wire["iso"].(string)
	date := DateTimeFromString(iso)
	if !date.IsValid() {
		return Null()
	}
	return DateValue(date)
}

func decodeWirePointer(client *Client, wire map[string]any) Value {
	className, _ := wire["className"].(string)
	objectId, _ := wire["objectId"].(string)
	if className == "" || objectId == "" {
		return Null()
	}
	if className == UserClassName {
		return UserValue(newUserWithId(client, objectId))
	}
	return ObjectValue(newObjectWithId(client, className, objectId))
}

// a full embedded object. decoded like a pointer, then the remaining fields
// are parsed into the object as if fetched
func decodeWireObject(client *Client, wire map[string]any) Value {
	value := decodeWirePointer(client, wire)
	switch value.Kind() {
	case ValueKindObject:
		value.Object().parseFields(wire)
	case ValueKindUser:
		value.User().parseUserFields(wire)
	}
	return value
}

func decodeWireFile(client *Client, wire map[string]any) Value {
	name, _ := wire["name"].(string)
	url, _ := wire["url"].(string)
	if name == "" {
		return Null()
	}
	return FileValue(newFileWithUrl(client, name, url))
}

// valueFromWire maps a decoded JSON tree to a Value. A JSON object carrying
// an unrecognized `__type` yields Null, never an error, so that decoding is
// forward compatible with unknown tags.
func valueFromWire(client *Client, wire any) Value {
	switch t := wire.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Float(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null()
		}
		return Float(f)
	case string:
		return String(t)
	case []any:
		values := make([]Value, 0, len(t))
		for _, e := range t {
			values = append(values, valueFromWire(client, e))
		}
		return List(values...)
	case map[string]any:
		if tag, ok := t["__type"].(string); ok {
			decoder, ok := wireDecoder(tag)
			if !ok {
				glog.V(1).Infof("[value]unknown wire type %q\n", tag)
				return Null()
			}
			return decoder(client, t)
		}
		m := map[string]Value{}
		for k, e := range t {
			m[k] = valueFromWire(client, e)
		}
		return MapValue(m)
	default:
		return Null()
	}
}

// wireEqual compares two values by their rendered wire JSON.
func wireEqual(a Value, b Value) bool {
	aWire, aErr := a.toWire()
	bWire, bErr := b.toWire()
	if aErr != nil || bErr != nil {
		return false
	}
	aBytes, aErr := json.Marshal(aWire)
	bBytes, bErr := json.Marshal(bWire)
	if aErr != nil || bErr != nil {
		return false
	}
	return bytes.Equal(aBytes, bBytes)
}

// valuesEqual is the equality used by the list mutation helpers. Primitives
// and containers compare structurally. Two domain references of the same
// kind compare by rendered wire JSON, which makes references with the same
// remote identity, or unsaved values with equal content, compare equal.
func valuesEqual(a Value, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.Float() == b.Float()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case ValueKindInvalid, ValueKindNull:
		return true
	case ValueKindBool:
		return a.boolValue == b.boolValue
	case ValueKindString:
		return a.stringValue == b.stringValue
	case ValueKindList:
		if len(a.listValue) != len(b.listValue) {
			return false
		}
		for i := range a.listValue {
			if !valuesEqual(a.listValue[i], b.listValue[i]) {
				return false
			}
		}
		return true
	case ValueKindMap:
		if len(a.mapValue) != len(b.mapValue) {
			return false
		}
		for k, av := range a.mapValue {
			bv, ok := b.mapValue[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return wireEqual(a, b)
	}
}
