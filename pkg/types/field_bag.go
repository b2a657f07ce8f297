package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldKind tags the dynamic value carried by a Field.
type FieldKind string

const (
	FieldKindString FieldKind = "string"
	FieldKindNumber FieldKind = "number"
	FieldKindBool   FieldKind = "bool"
	FieldKindNull   FieldKind = "null"
)

// FieldValue is a tagged union holding one scalar. Study-specific payloads
// (kit attributes, enrollment form fields) have no schema, so values stay
// dynamic but never become arbitrary objects.
type FieldValue struct {
	Kind FieldKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(v string) FieldValue  { return FieldValue{Kind: FieldKindString, Str: v} }
func NumberValue(v float64) FieldValue { return FieldValue{Kind: FieldKindNumber, Num: v} }
func BoolValue(v bool) FieldValue      { return FieldValue{Kind: FieldKindBool, Bool: v} }
func NullValue() FieldValue            { return FieldValue{Kind: FieldKindNull} }

// String renders the value as text regardless of kind.
func (v FieldValue) String() string {
	switch v.Kind {
	case FieldKindString:
		return v.Str
	case FieldKindNumber:
		raw, _ := json.Marshal(v.Num)
		return string(raw)
	case FieldKindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case FieldKindString:
		return json.Marshal(v.Str)
	case FieldKindNumber:
		return json.Marshal(v.Num)
	case FieldKindBool:
		return json.Marshal(v.Bool)
	case FieldKindNull, "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", v.Kind)
	}
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = NullValue()
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil
	case '{', '[':
		return fmt.Errorf("field values must be scalar, got %s", string(trimmed[0]))
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
		return nil
	}
}

// Field pairs a key with its dynamic value.
type Field struct {
	Key   string
	Value FieldValue
}

// FieldBag is an ordered set of dynamic fields. Order is preserved across
// JSON round-trips so form layouts survive storage.
type FieldBag []Field

// Get returns the value for key and whether it was present.
func (b FieldBag) Get(key string) (FieldValue, bool) {
	for _, f := range b {
		if f.Key == key {
			return f.Value, true
		}
	}
	return FieldValue{}, false
}

// Set replaces the value for key or appends a new field.
func (b FieldBag) Set(key string, value FieldValue) FieldBag {
	for i, f := range b {
		if f.Key == key {
			b[i].Value = value
			return b
		}
	}
	return append(b, Field{Key: key, Value: value})
}

func (b FieldBag) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *FieldBag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*b = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("field bag must be a JSON object")
	}

	out := FieldBag{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("field bag key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value FieldValue
		if err := value.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: value})
	}
	*b = out
	return nil
}
