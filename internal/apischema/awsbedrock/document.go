// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package awsbedrock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// DocumentKind discriminates the variants of Document.
type DocumentKind uint8

// Document kinds. The zero value is DocumentNull.
const (
	DocumentNull DocumentKind = iota
	DocumentBool
	DocumentPosInt
	DocumentNegInt
	DocumentFloat
	DocumentString
	DocumentArray
	DocumentObject
)

// Document is a backend-neutral structured value, used for tool inputs and tool
// input schemas. Integers keep their exact value: non-negative ones are unsigned,
// negative ones signed.
type Document struct {
	kind DocumentKind
	b    bool
	u    uint64
	i    int64
	f    float64
	s    string
	arr  []Document
	obj  map[string]Document
}

// NullDocument returns the null document.
func NullDocument() Document { return Document{} }

// BoolDocument returns a boolean document.
func BoolDocument(b bool) Document { return Document{kind: DocumentBool, b: b} }

// PosIntDocument returns a non-negative integer document.
func PosIntDocument(u uint64) Document { return Document{kind: DocumentPosInt, u: u} }

// NegIntDocument returns a signed integer document. Non-negative values are
// normalized to PosInt.
func NegIntDocument(i int64) Document {
	if i >= 0 {
		return PosIntDocument(uint64(i))
	}
	return Document{kind: DocumentNegInt, i: i}
}

// FloatDocument returns a floating point document. NaN and infinities collapse to 0.
func FloatDocument(f float64) Document {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	return Document{kind: DocumentFloat, f: f}
}

// StringDocument returns a string document.
func StringDocument(s string) Document { return Document{kind: DocumentString, s: s} }

// ArrayDocument returns an array document.
func ArrayDocument(elems ...Document) Document {
	if elems == nil {
		elems = []Document{}
	}
	return Document{kind: DocumentArray, arr: elems}
}

// ObjectDocument returns an object document.
func ObjectDocument(fields map[string]Document) Document {
	if fields == nil {
		fields = map[string]Document{}
	}
	return Document{kind: DocumentObject, obj: fields}
}

// Kind returns the variant of the document.
func (d Document) Kind() DocumentKind { return d.kind }

// Array returns the elements of an array document, nil otherwise.
func (d Document) Array() []Document { return d.arr }

// Object returns the fields of an object document, nil otherwise.
func (d Document) Object() map[string]Document { return d.obj }

// Value converts the document to the Go values produced by encoding/json when
// decoding into an interface, except that integers are uint64 or int64.
func (d Document) Value() any {
	switch d.kind {
	case DocumentBool:
		return d.b
	case DocumentPosInt:
		return d.u
	case DocumentNegInt:
		return d.i
	case DocumentFloat:
		return d.f
	case DocumentString:
		return d.s
	case DocumentArray:
		out := make([]any, len(d.arr))
		for i, e := range d.arr {
			out[i] = e.Value()
		}
		return out
	case DocumentObject:
		out := make(map[string]any, len(d.obj))
		for k, v := range d.obj {
			out[k] = v.Value()
		}
		return out
	default:
		return nil
	}
}

// ParseDocument parses JSON text into a Document.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Document{}, fmt.Errorf("invalid JSON document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Document{}, fmt.Errorf("invalid JSON document: trailing data")
	}
	return DocumentFromValue(v), nil
}

// DocumentFromValue converts a decoded JSON value into a Document. json.Number is
// classified as an integer when it is written as one, and as a float otherwise.
// Values outside the JSON data model become null.
func DocumentFromValue(v any) Document {
	switch v := v.(type) {
	case nil:
		return NullDocument()
	case bool:
		return BoolDocument(v)
	case json.Number:
		return numberDocument(string(v))
	case float64:
		return FloatDocument(v)
	case float32:
		return FloatDocument(float64(v))
	case int:
		return NegIntDocument(int64(v))
	case int64:
		return NegIntDocument(v)
	case uint64:
		return PosIntDocument(v)
	case string:
		return StringDocument(v)
	case []any:
		elems := make([]Document, len(v))
		for i, e := range v {
			elems[i] = DocumentFromValue(e)
		}
		return ArrayDocument(elems...)
	case map[string]any:
		fields := make(map[string]Document, len(v))
		for k, e := range v {
			fields[k] = DocumentFromValue(e)
		}
		return ObjectDocument(fields)
	case Document:
		return v
	default:
		return NullDocument()
	}
}

func numberDocument(s string) Document {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return NegIntDocument(i)
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return PosIntDocument(u)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out of range values come back as ±Inf with an error.
		return FloatDocument(0)
	}
	return FloatDocument(f)
}

// MarshalJSON implements [json.Marshaler].
func (d Document) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case DocumentBool:
		return strconv.AppendBool(nil, d.b), nil
	case DocumentPosInt:
		return strconv.AppendUint(nil, d.u, 10), nil
	case DocumentNegInt:
		return strconv.AppendInt(nil, d.i, 10), nil
	case DocumentFloat:
		return json.Marshal(d.f)
	case DocumentString:
		return json.Marshal(d.s)
	case DocumentArray:
		if d.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(d.arr)
	case DocumentObject:
		if d.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(d.obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements [json.Unmarshaler].
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// String returns the compact JSON text of the document.
func (d Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(b)
}
