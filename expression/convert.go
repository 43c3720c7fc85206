package expression

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
)

// FromAny canonicalizes a raw Go value — the kind of value a JSON or YAML
// decoder produces, or a value a named-context provider hands the
// evaluator — into a Value. Anything already implementing ArrayCapability
// or ObjectCapability is wrapped by reference, never copied, so a
// host-owned collection keeps its O(1) access characteristics. Unknown
// types canonicalize to null rather than panicking: the evaluator is never
// allowed to crash on host input.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case ArrayCapability:
		return Array(t)
	case ObjectCapability:
		return Object(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return NewArray(items)
	case map[string]any:
		// A Go map carries no insertion order of its own, so sorted keys
		// are the only deterministic rendering available for host-supplied
		// maps. JSON text never takes this path: fromJson decodes through
		// decodeJSONValue, which keeps the source's key order.
		keys := SortedKeys(mapKeys(t))
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = Pair{Key: k, Value: FromAny(t[k])}
		}
		return NewObject(pairs)
	default:
		return Null()
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// decodeJSONValue parses one JSON document into a canonical value through
// the jsontext token stream, so object keys keep their source order — a
// detour through map[string]any would shuffle them.
func decodeJSONValue(text string) (Value, error) {
	dec := jsontext.NewDecoder(strings.NewReader(text))
	v, err := decodeJSONNext(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.ReadToken(); err != io.EOF {
		return Value{}, errors.New("unexpected content after the top-level value")
	}
	return v, nil
}

func decodeJSONNext(dec *jsontext.Decoder) (Value, error) {
	tok, err := dec.ReadToken()
	if err != nil {
		return Value{}, err
	}
	switch tok.Kind() {
	case 'n':
		return Null(), nil
	case 't', 'f':
		return Bool(tok.Bool()), nil
	case '"':
		return String(tok.String()), nil
	case '0':
		return Number(tok.Float()), nil
	case '[':
		var items []Value
		for dec.PeekKind() != ']' {
			item, err := decodeJSONNext(dec)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		if _, err := dec.ReadToken(); err != nil { // consume ']'
			return Value{}, err
		}
		return NewArray(items), nil
	case '{':
		var pairs []Pair
		for dec.PeekKind() != '}' {
			keyTok, err := dec.ReadToken()
			if err != nil {
				return Value{}, err
			}
			val, err := decodeJSONNext(dec)
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, Pair{Key: keyTok.String(), Value: val})
		}
		if _, err := dec.ReadToken(); err != nil { // consume '}'
			return Value{}, err
		}
		return NewObject(pairs), nil
	default:
		return Value{}, fmt.Errorf("unexpected json token %q", tok.Kind())
	}
}

// ToAny renders a Value back to a plain Go value tree (nil/bool/float64/
// string/[]any/map[string]any), the inverse of FromAny for kinds that came
// from a literal. Collections that wrap a host capability are flattened by
// visiting every element/key through the capability, not by unwrapping the
// pointer, since the host type itself is opaque to this package.
func ToAny(v Value) any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBoolean:
		return v.BoolValue()
	case KindNumber:
		n := v.NumberValue()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return n
	case KindString:
		return v.StringValue()
	case KindArray:
		cap := v.ArrayCapability()
		out := make([]any, 0, cap.Length())
		for i := 0; i < cap.Length(); i++ {
			item, _ := cap.Get(i)
			out = append(out, ToAny(item))
		}
		return out
	case KindObject:
		cap := v.ObjectCapability()
		out := make(map[string]any, cap.Count())
		for _, k := range cap.Keys() {
			item, _ := cap.Get(k)
			out[k] = ToAny(item)
		}
		return out
	default:
		return nil
	}
}
