package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type JSONKind uint8

const (
	JSONNull JSONKind = iota
	JSONBool
	JSONNumber
	JSONString
	JSONArray
	JSONObject
)

// JSONValue is a generic JSON value that keeps object keys in document order.
// Conditional exports maps are order-sensitive, which rules out map[string]any.
type JSONValue struct {
	Kind   JSONKind
	String string
	Bool   bool
	Array  []*JSONValue
	Keys   []string
	Fields map[string]*JSONValue
}

// Get returns the field named key of an object value.
func (v *JSONValue) Get(key string) *JSONValue {
	if v == nil || v.Kind != JSONObject {
		return nil
	}
	return v.Fields[key]
}

// StringOr returns the string value, or def for any other kind.
func (v *JSONValue) StringOr(def string) string {
	if v == nil || v.Kind != JSONString {
		return def
	}
	return v.String
}

// Strings returns the string elements of an array value.
func (v *JSONValue) Strings() []string {
	if v == nil || v.Kind != JSONArray {
		return nil
	}
	out := make([]string, 0, len(v.Array))
	for _, item := range v.Array {
		if item.Kind == JSONString {
			out = append(out, item.String)
		}
	}
	return out
}

func decodeOrderedJSON(data []byte) (*JSONValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (*JSONValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &JSONValue{Kind: JSONObject, Fields: make(map[string]*JSONValue)}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				if _, dup := obj.Fields[key]; !dup {
					obj.Keys = append(obj.Keys, key)
				}
				obj.Fields[key] = val
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &JSONValue{Kind: JSONArray}
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Array = append(arr.Array, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return &JSONValue{Kind: JSONString, String: t}, nil
	case bool:
		return &JSONValue{Kind: JSONBool, Bool: t}, nil
	case json.Number:
		return &JSONValue{Kind: JSONNumber, String: t.String()}, nil
	case nil:
		return &JSONValue{Kind: JSONNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}
