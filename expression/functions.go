package expression

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/ericsciple/actions-yaml/resource"
)

// Function describes one built-in, the shape the parser's arity check and
// the evaluator's FunctionNode both consume: a name, an inclusive
// [MinArgs, MaxArgs] arity, and
// the Go implementation. MaxArgs of -1 means unbounded.
type Function struct {
	Name    string
	MinArgs int
	MaxArgs int
	Call    func(ec *EvalContext, args []Node) (Value, MemoryHint, error)
}

// DefaultFunctions returns the built-in function table: contains,
// startsWith, endsWith, join, format, toJson, fromJson, as a fresh map on
// each call. Callers may add their own functions to the returned map
// (the parser looks names up only in the table it is given) but may not
// remove or re-signature these without also changing what "unrecognized_function"
// means for their parser instance.
func DefaultFunctions() map[string]*Function {
	fns := []*Function{
		{Name: "contains", MinArgs: 2, MaxArgs: 2, Call: fnContains},
		{Name: "startsWith", MinArgs: 2, MaxArgs: 2, Call: fnStartsWith},
		{Name: "endsWith", MinArgs: 2, MaxArgs: 2, Call: fnEndsWith},
		{Name: "join", MinArgs: 1, MaxArgs: 2, Call: fnJoin},
		{Name: "format", MinArgs: 1, MaxArgs: -1, Call: fnFormat},
		{Name: "toJson", MinArgs: 1, MaxArgs: 1, Call: fnToJSON},
		{Name: "fromJson", MinArgs: 1, MaxArgs: 1, Call: fnFromJSON},
	}
	out := make(map[string]*Function, len(fns))
	for _, f := range fns {
		out[upper(f.Name)] = f
	}
	return out
}

// LookupFunction finds a function by name, case-insensitively, the same
// rule identifiers follow everywhere else in the language.
func LookupFunction(table map[string]*Function, name string) (*Function, bool) {
	f, ok := table[upper(name)]
	return f, ok
}

func evalArgs(ec *EvalContext, args []Node) ([]Value, int, error) {
	vals := make([]Value, len(args))
	total := 0
	for i, a := range args {
		v, n, err := EvaluateCharged(ec, a)
		if err != nil {
			return nil, 0, err
		}
		vals[i] = v
		total += n
	}
	return vals, total, nil
}

func fnContains(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	vals, _, err := evalArgs(ec, args)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	haystack, needle := vals[0], vals[1]
	if cap, isCollection := haystack.Collection(); isCollection {
		if arr, ok := cap.(ArrayCapability); ok {
			for i := 0; i < arr.Length(); i++ {
				item, _ := arr.Get(i)
				if AbstractEqual(item, needle) {
					return Bool(true), MemoryHint{}, nil
				}
			}
		}
		// objects (and anything else collection-shaped that isn't an
		// array) never contain a value
		return Bool(false), MemoryHint{}, nil
	}
	hs := upper(haystack.ToStringValue())
	ns := upper(needle.ToStringValue())
	return Bool(strings.Contains(hs, ns)), MemoryHint{}, nil
}

func fnStartsWith(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	vals, _, err := evalArgs(ec, args)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	s := upper(vals[0].ToStringValue())
	prefix := upper(vals[1].ToStringValue())
	return Bool(strings.HasPrefix(s, prefix)), MemoryHint{}, nil
}

func fnEndsWith(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	vals, _, err := evalArgs(ec, args)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	s := upper(vals[0].ToStringValue())
	suffix := upper(vals[1].ToStringValue())
	return Bool(strings.HasSuffix(s, suffix)), MemoryHint{}, nil
}

// fnJoin implements join(array[, sep]), default separator ",". Charges the
// realized result as a total, netting out whatever its arguments (and any
// nested arrays' elements) already charged, so an argument is never
// accounted both on its own and again inside the joined result.
func fnJoin(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	vals, charged, err := evalArgs(ec, args)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	sep := ","
	if len(vals) == 2 {
		if _, sepIsCollection := vals[1].Collection(); !sepIsCollection {
			sep = vals[1].ToStringValue()
		}
	}

	var parts []string
	if cap, isCollection := vals[0].Collection(); isCollection {
		if arr, ok := cap.(ArrayCapability); ok {
			for i := 0; i < arr.Length(); i++ {
				item, _ := arr.Get(i)
				parts = append(parts, item.ToStringValue())
			}
		}
		// objects join to the empty string
	} else {
		parts = []string{vals[0].ToStringValue()}
	}
	result := strings.Join(parts, sep)

	ec.Counter.Subtract(charged)
	return String(result), TotalBytes(resource.StringCost(utf16Len(result))), nil
}

// fnFormat implements format(fmt, ...args) with {N} placeholders and
// {{ }} escapes. A placeholder may carry a colon-led specifier tail
// (e.g. "{0:x}"); the specifier is parsed, so the brace-matching and
// index are still validated, but rejected with an EvalError if
// non-empty, since no specifiers are defined yet.
func fnFormat(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	fmtVal, n0, err := EvaluateCharged(ec, args[0])
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	charged := n0
	formatStr := fmtVal.ToStringValue()

	argVals := make([]Value, len(args)-1)
	for i, a := range args[1:] {
		v, n, err := EvaluateCharged(ec, a)
		if err != nil {
			return Value{}, MemoryHint{}, err
		}
		argVals[i] = v
		charged += n
	}

	result, ferr := formatString(formatStr, argVals)
	if ferr != nil {
		return Value{}, MemoryHint{}, ferr
	}

	ec.Counter.Subtract(charged)
	return String(result), TotalBytes(resource.StringCost(utf16Len(result))), nil
}

// FormatDisplay applies format()'s placeholder grammar over
// already-stringified arguments and charges the realized result against
// counter, the path used when rendering display names (an expanded job or
// step name) outside a full expression evaluation. A nil counter skips
// the accounting.
func FormatDisplay(counter *resource.Counter, format string, args []string) (string, error) {
	vals := make([]Value, len(args))
	for i, a := range args {
		vals[i] = String(a)
	}
	out, err := formatString(format, vals)
	if err != nil {
		return "", err
	}
	if counter != nil {
		if cerr := counter.Add(resource.StringCost(utf16Len(out))); cerr != nil {
			return "", &MemoryError{Message: cerr.Error()}
		}
	}
	return out, nil
}

// formatString is the static, dependency-free core of format(): literal
// "{{"/"}}" escapes to a single brace, "{N}" or "{N:spec}" substitutes
// args[N].ToStringValue().
func formatString(format string, args []Value) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(format) {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", NewEvalError("format", "format_unterminated_placeholder",
					"format string has an unterminated '{' placeholder")
			}
			body := format[i+1 : i+end]
			idxStr, spec, hasSpec := strings.Cut(body, ":")
			idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
			if err != nil || idx < 0 {
				return "", NewEvalError("format", "format_invalid_index",
					fmt.Sprintf("format string has an invalid placeholder index %q", idxStr))
			}
			if hasSpec && spec != "" {
				return "", NewEvalError("format", "format_unsupported_specifier",
					fmt.Sprintf("format string placeholder specifier %q is not supported", spec))
			}
			if idx >= len(args) {
				return "", NewEvalError("format", "format_index_out_of_range",
					fmt.Sprintf("format string references argument %d but only %d were supplied", idx, len(args)))
			}
			b.WriteString(args[idx].ToStringValue())
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", NewEvalError("format", "format_unmatched_brace",
				"format string has an unmatched '}'")
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// fnToJSON implements toJson(value): a two-space-indented serialization
// of the canonical value tree produced by jsonStringify's ancestor-stack
// walk, so object pairs come out in insertion order.
func fnToJSON(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	val, charged, err := EvaluateCharged(ec, args[0])
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	out, built, jerr := jsonStringify(ec.Counter, val)
	if jerr != nil {
		if errors.Is(jerr, resource.ErrMaxBytesExceeded) {
			return Value{}, MemoryHint{}, &MemoryError{Message: jerr.Error()}
		}
		return Value{}, MemoryHint{}, NewEvalError("toJson", "to_json_failed", jerr.Error())
	}

	ec.Counter.Subtract(built + charged)
	return String(out), TotalBytes(resource.StringCost(utf16Len(out))), nil
}

// jsonStringify renders a canonical value as two-space-indented JSON via
// a non-recursive, ancestor-stack walk: object pairs are emitted in the
// capability's insertion order, booleans/null are literal lowercase,
// numbers use the canonical number rendering, and a collection kind with
// no usable capability serializes as {}. Every appended segment is
// charged against counter as the output grows, so a runaway
// serialization fails mid-build rather than after the fact; the bytes
// charged are returned for the caller to net out once the result's own
// cost is known.
func jsonStringify(counter *resource.Counter, root Value) (out string, charged int, err error) {
	var b strings.Builder
	emit := func(seg string) error {
		cost := 2 * utf16Len(seg)
		if cerr := counter.Add(cost); cerr != nil {
			return cerr
		}
		charged += cost
		b.WriteString(seg)
		return nil
	}

	type frame struct {
		arr  ArrayCapability
		obj  ObjectCapability
		keys []string
		next int
	}
	var stack []*frame

	writeValue := func(v Value) error {
		switch v.Kind() {
		case KindNull:
			return emit("null")
		case KindBoolean:
			if v.BoolValue() {
				return emit("true")
			}
			return emit("false")
		case KindNumber:
			return emit(formatNumber(v.NumberValue()))
		case KindString:
			quoted, qerr := jsontext.AppendQuote(nil, v.StringValue())
			if qerr != nil {
				return qerr
			}
			return emit(string(quoted))
		case KindArray:
			arr := v.ArrayCapability()
			if arr == nil {
				return emit("{}")
			}
			if arr.Length() == 0 {
				return emit("[]")
			}
			stack = append(stack, &frame{arr: arr})
			return emit("[")
		case KindObject:
			obj := v.ObjectCapability()
			if obj == nil {
				return emit("{}")
			}
			keys := obj.Keys()
			if len(keys) == 0 {
				return emit("{}")
			}
			stack = append(stack, &frame{obj: obj, keys: keys})
			return emit("{")
		default:
			return emit("{}")
		}
	}

	if err = writeValue(root); err != nil {
		return "", charged, err
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		length := len(f.keys)
		if f.obj == nil {
			length = f.arr.Length()
		}
		if f.next >= length {
			stack = stack[:len(stack)-1]
			closer := "]"
			if f.obj != nil {
				closer = "}"
			}
			if err = emit("\n" + strings.Repeat("  ", len(stack)) + closer); err != nil {
				return "", charged, err
			}
			continue
		}
		lead := "\n"
		if f.next > 0 {
			lead = ",\n"
		}
		if err = emit(lead + strings.Repeat("  ", len(stack))); err != nil {
			return "", charged, err
		}
		if f.obj != nil {
			key := f.keys[f.next]
			f.next++
			quoted, qerr := jsontext.AppendQuote(nil, key)
			if qerr != nil {
				return "", charged, qerr
			}
			if err = emit(string(quoted) + ": "); err != nil {
				return "", charged, err
			}
			v, _ := f.obj.Get(key)
			if err = writeValue(v); err != nil {
				return "", charged, err
			}
			continue
		}
		v, _ := f.arr.Get(f.next)
		f.next++
		if err = writeValue(v); err != nil {
			return "", charged, err
		}
	}
	return b.String(), charged, nil
}

// fnFromJSON implements fromJson(text): parses text into the canonical
// value tree through the token-stream decoder, which keeps object keys in
// their source order. The argument's charge is released and the parsed
// tree is reported as a plain total of its estimated size.
func fnFromJSON(ec *EvalContext, args []Node) (Value, MemoryHint, error) {
	val, charged, err := EvaluateCharged(ec, args[0])
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	text := val.ToStringValue()

	result, derr := decodeJSONValue(text)
	if derr != nil {
		return Value{}, MemoryHint{}, NewEvalError("fromJson", "from_json_failed", derr.Error())
	}

	ec.Counter.Subtract(charged)
	size := estimateSize(result)
	return result, TotalBytes(size), nil
}

// estimateSize walks a freshly-decoded value tree to charge its full
// realized cost once, up front, instead of relying on the generic
// per-node charge (there are no child Nodes here to charge individually).
func estimateSize(v Value) int {
	switch v.Kind() {
	case KindString:
		return resource.StringCost(utf16Len(v.StringValue()))
	case KindArray:
		arr := v.ArrayCapability()
		total := resource.MinObjectSize
		if arr != nil {
			for i := 0; i < arr.Length(); i++ {
				item, _ := arr.Get(i)
				total += estimateSize(item)
			}
		}
		return total
	case KindObject:
		obj := v.ObjectCapability()
		total := resource.MinObjectSize
		if obj != nil {
			for _, k := range obj.Keys() {
				item, _ := obj.Get(k)
				total += resource.StringCost(utf16Len(k)) + estimateSize(item)
			}
		}
		return total
	default:
		return resource.MinObjectSize
	}
}
