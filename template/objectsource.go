package template

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
)

// lineColTracker maps a byte offset in the original document to a
// one-based (line, column), the provenance both reference sources attach
// to literal tokens where available. It is built once
// per document from the positions of its newlines.
type lineColTracker struct {
	newlineOffsets []int
}

func newLineColTracker(data []byte) *lineColTracker {
	var offsets []int
	for i, b := range data {
		if b == '\n' {
			offsets = append(offsets, i)
		}
	}
	return &lineColTracker{newlineOffsets: offsets}
}

func (lc *lineColTracker) at(offset int64) (line, col int) {
	off := int(offset)
	// line = 1 + number of newlines strictly before off.
	i := sort.SearchInts(lc.newlineOffsets, off)
	line = i + 1
	colStart := 0
	if i > 0 {
		colStart = lc.newlineOffsets[i-1] + 1
	}
	return line, off - colStart + 1
}

// Literal is the scalar value produced by EventSource.AllowLiteral: one of
// null, bool, number, string, carrying its own provenance.
type Literal struct {
	Kind   Kind // KindNull, KindBoolean, KindNumber, or KindString
	B      bool
	N      float64
	S      string
	Pos    Position
	HasPos bool
}

// EventSource is the object-event contract the reader consumes in place
// of a physical YAML/JSON parser. Allow* operations
// return the value AND advance the cursor on a match; they leave the
// cursor untouched on a mismatch so the reader can try another shape.
// Sources MUST be single-pass.
type EventSource interface {
	ValidateStart() error
	AllowLiteral() (Literal, bool)
	AllowSequenceStart() (any, bool)
	AllowSequenceEnd() bool
	AllowMappingStart() (any, bool)
	AllowMappingEnd() bool
	ValidateEnd() error
}

// rawKind is the internal shape produced by decoding either a JSON or a
// YAML document before the reader ever sees it, so both sources can share
// one stack-driven EventSource implementation (treeSource, below).
type rawKind int

const (
	rawNull rawKind = iota
	rawBool
	rawNumber
	rawString
	rawSeq
	rawMap
)

type rawPair struct {
	key   string
	kpos  Position
	khas  bool
	value rawValue
}

type rawValue struct {
	kind  rawKind
	b     bool
	n     float64
	s     string
	items []rawValue
	pairs []rawPair
	pos   Position
	has   bool
}

// treeSource is a generic EventSource over an already-decoded rawValue
// tree. Both JSON and YAML sources build one of these after parsing the
// whole document up front (a single pass over the physical syntax);
// everything the
// reader experiences afterward is driven by this stack machine, which
// guarantees single-pass consumption of the *events* regardless of how
// the tree was produced.
type treeSource struct {
	fileID    string
	stack     []srcFrame
	started   bool
	validated bool
}

type srcFrameKind int

const (
	srcFrameValue srcFrameKind = iota
	srcFrameSeqEnd
	srcFrameMapEnd
)

type srcFrame struct {
	kind  srcFrameKind
	value rawValue
}

func newTreeSource(fileID string, root rawValue) *treeSource {
	return &treeSource{fileID: fileID, stack: []srcFrame{{kind: srcFrameValue, value: root}}}
}

func (t *treeSource) ValidateStart() error {
	if t.started {
		return fmt.Errorf("template: ValidateStart called more than once")
	}
	t.started = true
	return nil
}

func (t *treeSource) ValidateEnd() error {
	if len(t.stack) != 0 {
		return fmt.Errorf("template: ValidateEnd called before the document was fully read")
	}
	t.validated = true
	return nil
}

func (t *treeSource) top() (srcFrame, bool) {
	if len(t.stack) == 0 {
		return srcFrame{}, false
	}
	return t.stack[len(t.stack)-1], true
}

func (t *treeSource) AllowLiteral() (Literal, bool) {
	f, ok := t.top()
	if !ok || f.kind != srcFrameValue {
		return Literal{}, false
	}
	switch f.value.kind {
	case rawNull:
		t.stack = t.stack[:len(t.stack)-1]
		return Literal{Kind: KindNull, Pos: f.value.pos, HasPos: f.value.has}, true
	case rawBool:
		t.stack = t.stack[:len(t.stack)-1]
		return Literal{Kind: KindBoolean, B: f.value.b, Pos: f.value.pos, HasPos: f.value.has}, true
	case rawNumber:
		t.stack = t.stack[:len(t.stack)-1]
		return Literal{Kind: KindNumber, N: f.value.n, Pos: f.value.pos, HasPos: f.value.has}, true
	case rawString:
		t.stack = t.stack[:len(t.stack)-1]
		return Literal{Kind: KindString, S: f.value.s, Pos: f.value.pos, HasPos: f.value.has}, true
	default:
		return Literal{}, false
	}
}

func (t *treeSource) AllowSequenceStart() (any, bool) {
	f, ok := t.top()
	if !ok || f.kind != srcFrameValue || f.value.kind != rawSeq {
		return nil, false
	}
	t.stack = t.stack[:len(t.stack)-1]
	t.stack = append(t.stack, srcFrame{kind: srcFrameSeqEnd})
	for i := len(f.value.items) - 1; i >= 0; i-- {
		t.stack = append(t.stack, srcFrame{kind: srcFrameValue, value: f.value.items[i]})
	}
	return f.value, true
}

func (t *treeSource) AllowSequenceEnd() bool {
	f, ok := t.top()
	if !ok || f.kind != srcFrameSeqEnd {
		return false
	}
	t.stack = t.stack[:len(t.stack)-1]
	return true
}

func (t *treeSource) AllowMappingStart() (any, bool) {
	f, ok := t.top()
	if !ok || f.kind != srcFrameValue || f.value.kind != rawMap {
		return nil, false
	}
	t.stack = t.stack[:len(t.stack)-1]
	t.stack = append(t.stack, srcFrame{kind: srcFrameMapEnd})
	for i := len(f.value.pairs) - 1; i >= 0; i-- {
		p := f.value.pairs[i]
		t.stack = append(t.stack, srcFrame{kind: srcFrameValue, value: p.value})
		t.stack = append(t.stack, srcFrame{kind: srcFrameValue, value: rawValue{kind: rawString, s: p.key, pos: p.kpos, has: p.khas}})
	}
	return f.value, true
}

func (t *treeSource) AllowMappingEnd() bool {
	f, ok := t.top()
	if !ok || f.kind != srcFrameMapEnd {
		return false
	}
	t.stack = t.stack[:len(t.stack)-1]
	return true
}

// JSONObjectSource is the reference JSON event source: it decodes one
// JSON document with the module's standard codec and drives EventSource
// off the resulting tree.
type JSONObjectSource struct{ *treeSource }

// NewJSONObjectSource parses data as a single JSON document and returns an
// EventSource over it. fileID is attached to every literal's provenance.
func NewJSONObjectSource(fileID string, data []byte) (*JSONObjectSource, error) {
	root, err := decodeJSONValue(fileID, data)
	if err != nil {
		return nil, err
	}
	return &JSONObjectSource{treeSource: newTreeSource(fileID, root)}, nil
}

func decodeJSONValue(fileID string, data []byte) (rawValue, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	lc := newLineColTracker(data)
	v, err := decodeJSONToken(dec, lc, fileID)
	if err != nil {
		return rawValue{}, fmt.Errorf("template: invalid json: %w", err)
	}
	return v, nil
}

func decodeJSONToken(dec *jsontext.Decoder, lc *lineColTracker, fileID string) (rawValue, error) {
	offset := dec.InputOffset()
	tok, err := dec.ReadToken()
	if err != nil {
		return rawValue{}, err
	}
	line, col := lc.at(offset)
	pos := Position{File: fileID, Line: line, Col: col}

	switch tok.Kind() {
	case 'n':
		return rawValue{kind: rawNull, pos: pos, has: true}, nil
	case 't', 'f':
		return rawValue{kind: rawBool, b: tok.Bool(), pos: pos, has: true}, nil
	case '"':
		return rawValue{kind: rawString, s: tok.String(), pos: pos, has: true}, nil
	case '0':
		return rawValue{kind: rawNumber, n: tok.Float(), pos: pos, has: true}, nil
	case '[':
		var items []rawValue
		for dec.PeekKind() != ']' {
			item, err := decodeJSONToken(dec, lc, fileID)
			if err != nil {
				return rawValue{}, err
			}
			items = append(items, item)
		}
		if _, err := dec.ReadToken(); err != nil { // consume ']'
			return rawValue{}, err
		}
		return rawValue{kind: rawSeq, items: items, pos: pos, has: true}, nil
	case '{':
		var pairs []rawPair
		for dec.PeekKind() != '}' {
			keyOffset := dec.InputOffset()
			keyTok, err := dec.ReadToken()
			if err != nil {
				return rawValue{}, err
			}
			kline, kcol := lc.at(keyOffset)
			val, err := decodeJSONToken(dec, lc, fileID)
			if err != nil {
				return rawValue{}, err
			}
			pairs = append(pairs, rawPair{
				key: keyTok.String(), kpos: Position{File: fileID, Line: kline, Col: kcol}, khas: true, value: val,
			})
		}
		if _, err := dec.ReadToken(); err != nil { // consume '}'
			return rawValue{}, err
		}
		return rawValue{kind: rawMap, pairs: pairs, pos: pos, has: true}, nil
	default:
		return rawValue{}, fmt.Errorf("unexpected json token kind %q", tok.Kind())
	}
}

// YAMLObjectSource is the reference YAML event source, built on
// github.com/goccy/go-yaml. Anchors/aliases are rejected rather than
// expanded: resolving an alias would re-expand its anchor's subtree every
// time it's referenced, the "billion laughs"-style amplification this
// system exists to prevent.
type YAMLObjectSource struct{ *treeSource }

// NewYAMLObjectSource parses data as a single YAML document.
func NewYAMLObjectSource(fileID string, data []byte) (*YAMLObjectSource, error) {
	file, err := parser.ParseBytes(data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("template: invalid yaml: %w", err)
	}
	if len(file.Docs) == 0 {
		return &YAMLObjectSource{treeSource: newTreeSource(fileID, rawValue{kind: rawNull})}, nil
	}
	root, err := decodeYAMLNode(fileID, file.Docs[0].Body)
	if err != nil {
		return nil, err
	}
	return &YAMLObjectSource{treeSource: newTreeSource(fileID, root)}, nil
}

func decodeYAMLNode(fileID string, n ast.Node) (rawValue, error) {
	if n == nil {
		return rawValue{kind: rawNull}, nil
	}
	pos := yamlPos(fileID, n)
	switch v := n.(type) {
	case *ast.AnchorNode:
		return rawValue{}, fmt.Errorf("template: yaml anchors are not allowed (%s)", pos.prefix())
	case *ast.AliasNode:
		return rawValue{}, fmt.Errorf("template: yaml aliases are not allowed (%s)", pos.prefix())
	case *ast.NullNode:
		return rawValue{kind: rawNull, pos: pos, has: true}, nil
	case *ast.BoolNode:
		return rawValue{kind: rawBool, b: v.Value, pos: pos, has: true}, nil
	case *ast.IntegerNode:
		f, _ := strconv.ParseFloat(fmt.Sprint(v.Value), 64)
		return rawValue{kind: rawNumber, n: f, pos: pos, has: true}, nil
	case *ast.FloatNode:
		return rawValue{kind: rawNumber, n: v.Value, pos: pos, has: true}, nil
	case *ast.StringNode:
		return rawValue{kind: rawString, s: v.Value, pos: pos, has: true}, nil
	case *ast.LiteralNode:
		s := ""
		if v.Value != nil {
			s = v.Value.Value
		}
		return rawValue{kind: rawString, s: s, pos: pos, has: true}, nil
	case *ast.SequenceNode:
		items := make([]rawValue, 0, len(v.Values))
		for _, item := range v.Values {
			iv, err := decodeYAMLNode(fileID, item)
			if err != nil {
				return rawValue{}, err
			}
			items = append(items, iv)
		}
		return rawValue{kind: rawSeq, items: items, pos: pos, has: true}, nil
	case *ast.MappingNode:
		pairs := make([]rawPair, 0, len(v.Values))
		for _, mv := range v.Values {
			p, err := decodeYAMLPair(fileID, mv)
			if err != nil {
				return rawValue{}, err
			}
			pairs = append(pairs, p)
		}
		return rawValue{kind: rawMap, pairs: pairs, pos: pos, has: true}, nil
	case *ast.MappingValueNode:
		p, err := decodeYAMLPair(fileID, v)
		if err != nil {
			return rawValue{}, err
		}
		return rawValue{kind: rawMap, pairs: []rawPair{p}, pos: pos, has: true}, nil
	default:
		// Fall back to the node's rendered scalar text for any YAML
		// construct this module doesn't special-case (e.g. tagged nodes).
		return rawValue{kind: rawString, s: strings.TrimSpace(n.String()), pos: pos, has: true}, nil
	}
}

func decodeYAMLPair(fileID string, mv *ast.MappingValueNode) (rawPair, error) {
	keyPos := yamlPos(fileID, mv.Key)
	key := strings.Trim(mv.Key.String(), "'\"")
	val, err := decodeYAMLNode(fileID, mv.Value)
	if err != nil {
		return rawPair{}, err
	}
	return rawPair{key: key, kpos: keyPos, khas: true, value: val}, nil
}

func yamlPos(fileID string, n ast.Node) Position {
	tk := n.GetToken()
	if tk == nil || tk.Position == nil {
		return Position{File: fileID}
	}
	return Position{File: fileID, Line: tk.Position.Line, Col: tk.Position.Column}
}

func (p Position) prefix() string { return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col) }
