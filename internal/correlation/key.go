// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package correlation

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

// Fields is a canonicalized field set: strings are NFC-normalized, every
// number is a float64, nested mappings are map[string]any and sequences are
// []any.
type Fields map[string]any

// Key is an order-independent predicate over event fields. The zero Key
// has no fields and covers every event.
type Key struct {
	fields Fields
	// encoded holds the canonical encoding of each top-level value; Covers
	// compares these instead of walking the values again.
	encoded map[string]string
	canon   string
}

// Canonicalize returns a canonical copy of fields. The input is not
// modified.
func Canonicalize(fields map[string]any) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[norm.NFC.String(k)] = canonicalValue(v)
	}
	return out
}

func canonicalValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return norm.NFC.String(val)
	case bool:
		return val
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case map[string]any:
		return map[string]any(Canonicalize(val))
	case Fields:
		return map[string]any(Canonicalize(val))
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[norm.NFC.String(k)] = norm.NFC.String(s)
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = canonicalValue(elem)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = norm.NFC.String(elem)
		}
		return out
	default:
		return val
	}
}

// NewKey canonicalizes fields into a Key.
func NewKey(fields map[string]any) Key {
	canonical := Canonicalize(fields)
	encoded := make(map[string]string, len(canonical))
	for k, v := range canonical {
		encoded[k] = encodeValue(v)
	}
	return Key{fields: canonical, encoded: encoded, canon: encodeFields(encoded)}
}

// KeyFromEvent derives a key from the full field set of an event.
func KeyFromEvent(evt core.Event) Key {
	return NewKey(evt.Fields())
}

// String is the canonical encoding used to index the table. Equivalent
// field sets always produce the same string.
func (k Key) String() string {
	if k.canon == "" {
		return "{}"
	}
	return k.canon
}

func (k Key) Equal(other Key) bool { return k.String() == other.String() }

func (k Key) Len() int { return len(k.encoded) }

// Fields returns a copy of the canonical field set.
func (k Key) Fields() Fields {
	return Canonicalize(k.fields)
}

// Covers reports whether every field of candidate is present in reference
// with an equal value. Reference may carry extra fields. A field missing
// from reference is a non-match.
func Covers(candidate, reference Key) bool {
	for name, want := range candidate.encoded {
		got, ok := reference.encoded[name]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func encodeFields(encoded map[string]string) string {
	names := make([]string, 0, len(encoded))
	for name := range encoded {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(name))
		b.WriteByte(':')
		b.WriteString(encoded[name])
	}
	b.WriteByte('}')
	return b.String()
}

func encodeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case map[string]any:
		encoded := make(map[string]string, len(val))
		for k, elem := range val {
			encoded[k] = encodeValue(elem)
		}
		return encodeFields(encoded)
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(encodeValue(elem))
		}
		b.WriteByte(']')
		return b.String()
	default:
		// Unknown types still get a stable, type-qualified encoding.
		return fmt.Sprintf("<%s>%v", reflect.TypeOf(val), val)
	}
}
