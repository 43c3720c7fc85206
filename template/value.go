package template

import (
	"strings"

	"github.com/ericsciple/actions-yaml/expression"
)

// ToValue canonicalizes a fully realized (expression-free) token subtree
// into the expression evaluator's Value universe. Sequence and Mapping
// tokens wrap the token itself as the capability (via
// the tokenArray/tokenObject adapters below), so a large parameters/
// context tree passed as a named context is never copied — ToValue is
// O(1) regardless of subtree size.
//
// BasicExpression/InsertExpression tokens have no canonical value; callers
// must expand them (via the unraveler) before calling ToValue. Calling it
// on an unexpanded expression token returns Null.
func ToValue(t *Token) expression.Value {
	if t == nil {
		return expression.Null()
	}
	switch t.Kind {
	case KindNull:
		return expression.Null()
	case KindBoolean:
		return expression.Bool(t.b)
	case KindNumber:
		return expression.Number(t.n)
	case KindString:
		return expression.String(t.s)
	case KindSequence:
		return expression.Array(tokenArray{t})
	case KindMapping:
		return expression.Object(tokenObject{t})
	default:
		return expression.Null()
	}
}

// tokenArray adapts a Sequence token to expression.ArrayCapability without
// copying its items.
type tokenArray struct{ t *Token }

func (a tokenArray) Length() int { return len(a.t.seq) }

func (a tokenArray) Get(i int) (expression.Value, bool) {
	if i < 0 || i >= len(a.t.seq) {
		return expression.Null(), false
	}
	return ToValue(a.t.seq[i]), true
}

// tokenObject adapts a Mapping token to expression.ObjectCapability
// without copying its pairs, building a lazy upper-cased index the same
// way expression's own primitiveObject does.
type tokenObject struct{ t *Token }

func (o tokenObject) HasKey(key string) bool {
	o.t.ensureMappingIndex()
	_, ok := o.t.mpUpperIdx[upper(key)]
	return ok
}

func (o tokenObject) Keys() []string {
	keys := make([]string, 0, len(o.t.mp))
	for _, p := range o.t.mp {
		if p.Key != nil && p.Key.Kind == KindString {
			keys = append(keys, p.Key.s)
		}
	}
	return keys
}

func (o tokenObject) Count() int { return len(o.t.mp) }

func (o tokenObject) Get(key string) (expression.Value, bool) {
	o.t.ensureMappingIndex()
	i, ok := o.t.mpUpperIdx[upper(key)]
	if !ok {
		return expression.Null(), false
	}
	return ToValue(o.t.mp[i].Value), true
}

func (t *Token) ensureMappingIndex() {
	if t.mpIndexBuilt {
		return
	}
	t.mpUpperIdx = make(map[string]int, len(t.mp))
	for i, p := range t.mp {
		if p.Key == nil || p.Key.Kind != KindString {
			continue
		}
		t.mpUpperIdx[upper(p.Key.s)] = i // last write wins, matching object insertion semantics
	}
	t.mpIndexBuilt = true
}

func upper(s string) string { return strings.ToUpper(s) }

// FromValue converts an evaluated expression.Value back into a token, the
// path an evaluated expression takes to re-enter the tree. Collections
// are walked once into owned Sequence/Mapping tokens
// (they must become tree-shaped, parent-owned tokens — the reverse
// direction cannot keep wrapping the evaluator's transient capability,
// since filtered arrays and named-context values don't outlive the
// expression that produced them). pos/hasPos is attached to the new
// token's root only; children carry no provenance since they were never
// lexed from source.
func FromValue(v expression.Value, pos Position, hasPos bool) *Token {
	switch v.Kind() {
	case expression.KindNull:
		return Null(pos, hasPos)
	case expression.KindBoolean:
		return Boolean(v.BoolValue(), pos, hasPos)
	case expression.KindNumber:
		return NumberToken(v.NumberValue(), pos, hasPos)
	case expression.KindString:
		return StringToken(v.StringValue(), pos, hasPos)
	case expression.KindArray:
		cap := v.ArrayCapability()
		items := make([]*Token, 0)
		if cap != nil {
			for i := 0; i < cap.Length(); i++ {
				item, ok := cap.Get(i)
				if !ok {
					continue
				}
				items = append(items, FromValue(item, Position{}, false))
			}
		}
		return SequenceToken(items, pos, hasPos)
	case expression.KindObject:
		cap := v.ObjectCapability()
		var pairs []Pair
		if cap != nil {
			for _, k := range cap.Keys() {
				item, ok := cap.Get(k)
				if !ok {
					continue
				}
				pairs = append(pairs, Pair{
					Key:   StringToken(k, Position{}, false),
					Value: FromValue(item, Position{}, false),
				})
			}
		}
		return MappingToken(pairs, pos, hasPos)
	default:
		return Null(pos, hasPos)
	}
}
