package template

import "fmt"

// persistedKind maps Kind to the fixed wire discriminant: 0=string,
// 1=sequence, 2=mapping, 3=basic-expression, 4=insert-expression,
// 5=boolean, 6=number, 7=null. The layout is load-bearing for every
// consumer of the persisted form and must not change.
func persistedKind(k Kind) int {
	switch k {
	case KindString:
		return 0
	case KindSequence:
		return 1
	case KindMapping:
		return 2
	case KindBasicExpression:
		return 3
	case KindInsertExpression:
		return 4
	case KindBoolean:
		return 5
	case KindNumber:
		return 6
	case KindNull:
		return 7
	default:
		return 7
	}
}

func kindFromPersisted(n int) (Kind, error) {
	switch n {
	case 0:
		return KindString, nil
	case 1:
		return KindSequence, nil
	case 2:
		return KindMapping, nil
	case 3:
		return KindBasicExpression, nil
	case 4:
		return KindInsertExpression, nil
	case 5:
		return KindBoolean, nil
	case 6:
		return KindNumber, nil
	case 7:
		return KindNull, nil
	default:
		return 0, fmt.Errorf("template: unknown persisted token type %d", n)
	}
}

// persistedPair is one entry of the "map" payload: a {key,value} pair.
type persistedPair struct {
	Key   *persistedToken `json:"key"`
	Value *persistedToken `json:"value"`
}

// persistedToken is the compact tagged-JSON wire form of a token.
// Bare JSON primitives (outside an object) bypass this shape entirely;
// TokenCodec.Unmarshal routes them through bareToToken instead.
type persistedToken struct {
	Type int    `json:"type"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`

	Lit  *string          `json:"lit,omitempty"`
	Num  *float64         `json:"num,omitempty"`
	Bool *bool            `json:"bool,omitempty"`
	Seq  []*persistedToken `json:"seq,omitempty"`
	Map  []persistedPair  `json:"map,omitempty"`
	Expr *string          `json:"expr,omitempty"`
}

func bareToToken(v any) *Token {
	switch t := v.(type) {
	case nil:
		return Null(Position{}, false)
	case bool:
		return Boolean(t, Position{}, false)
	case float64:
		return NumberToken(t, Position{}, false)
	case string:
		return StringToken(t, Position{}, false)
	default:
		return Null(Position{}, false)
	}
}

func toPersisted(t *Token) *persistedToken {
	if t == nil {
		return &persistedToken{Type: persistedKind(KindNull)}
	}
	pt := &persistedToken{Type: persistedKind(t.Kind)}
	if t.HasPos {
		pt.File, pt.Line, pt.Col = t.Pos.File, t.Pos.Line, t.Pos.Col
	}
	switch t.Kind {
	case KindString:
		s := t.s
		pt.Lit = &s
	case KindNumber:
		n := t.n
		pt.Num = &n
	case KindBoolean:
		b := t.b
		pt.Bool = &b
	case KindSequence:
		pt.Seq = make([]*persistedToken, len(t.seq))
		for i, item := range t.seq {
			pt.Seq[i] = toPersisted(item)
		}
	case KindMapping:
		pt.Map = make([]persistedPair, len(t.mp))
		for i, p := range t.mp {
			pt.Map[i] = persistedPair{Key: toPersisted(p.Key), Value: toPersisted(p.Value)}
		}
	case KindBasicExpression:
		s := t.s
		pt.Expr = &s
	}
	return pt
}

func fromPersisted(pt *persistedToken) (*Token, error) {
	kind, err := kindFromPersisted(pt.Type)
	if err != nil {
		return nil, err
	}
	pos := Position{File: pt.File, Line: pt.Line, Col: pt.Col}
	hasPos := pt.File != "" || pt.Line != 0 || pt.Col != 0

	switch kind {
	case KindNull:
		return Null(pos, hasPos), nil
	case KindBoolean:
		b := false
		if pt.Bool != nil {
			b = *pt.Bool
		}
		return Boolean(b, pos, hasPos), nil
	case KindNumber:
		n := 0.0
		if pt.Num != nil {
			n = *pt.Num
		}
		return NumberToken(n, pos, hasPos), nil
	case KindString:
		s := ""
		if pt.Lit != nil {
			s = *pt.Lit
		}
		return StringToken(s, pos, hasPos), nil
	case KindBasicExpression:
		s := ""
		if pt.Expr != nil {
			s = *pt.Expr
		}
		return BasicExpressionToken(s, pos, hasPos), nil
	case KindInsertExpression:
		return InsertExpressionToken(pos, hasPos), nil
	case KindSequence:
		items := make([]*Token, len(pt.Seq))
		for i, p := range pt.Seq {
			item, err := fromPersisted(p)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return SequenceToken(items, pos, hasPos), nil
	case KindMapping:
		pairs := make([]Pair, len(pt.Map))
		for i, p := range pt.Map {
			k, err := fromPersisted(p.Key)
			if err != nil {
				return nil, err
			}
			v, err := fromPersisted(p.Value)
			if err != nil {
				return nil, err
			}
			pairs[i] = Pair{Key: k, Value: v}
		}
		return MappingToken(pairs, pos, hasPos), nil
	default:
		return nil, fmt.Errorf("template: unhandled persisted kind %v", kind)
	}
}
