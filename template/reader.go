package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ericsciple/actions-yaml/expression"
	"github.com/ericsciple/actions-yaml/resource"
)

// ReaderContext carries everything one ReadTemplate call needs: the
// schema being read against, the shared memory/depth accounting (the
// reader and unraveler share one counter so a token is never
// double-charged once by the reader and again by the unraveler; an
// expression evaluation runs on its own counter, and only the byte size
// it reports is charged to this one), and the diagnostic collector for
// locally-recovered errors.
type ReaderContext struct {
	Schema  *Schema
	Counter *resource.Counter
	Depth   *resource.Depth
	Errors  *ValidationErrors
}

// NewReaderContext builds a ReaderContext with fresh accounting.
func NewReaderContext(schema *Schema, maxBytes int, maxDepth int) *ReaderContext {
	return &ReaderContext{
		Schema:  schema,
		Counter: resource.NewCounter(maxBytes),
		Depth:   resource.NewDepth(maxDepth),
		Errors:  NewValidationErrors(),
	}
}

// ReadTemplate consumes src event-by-event, parses embedded
// "${{ ... }}" expressions into typed token frames, and validates the
// result against rootTypeName in ctx.Schema. Non-recoverable errors
// (ValidateStart/End, schema lookup, memory/depth exhaustion) are
// returned directly; everything else is recorded on ctx.Errors and
// recovered locally by skipping the offending sub-tree.
func ReadTemplate(ctx *ReaderContext, rootTypeName string, src EventSource, fileID string) (*Token, error) {
	if err := src.ValidateStart(); err != nil {
		return nil, err
	}
	def, ok := ctx.Schema.Lookup(rootTypeName)
	if !ok {
		return nil, fmt.Errorf("template: schema has no definition named %q", rootTypeName)
	}
	tok, err := readValue(ctx, def, src, fileID)
	if err != nil {
		return nil, err
	}
	if err := src.ValidateEnd(); err != nil {
		return nil, err
	}
	return tok, nil
}

func readValue(ctx *ReaderContext, def *Definition, src EventSource, fileID string) (*Token, error) {
	if def != nil && def.anyShape {
		return readAnyValue(ctx, def, src, fileID)
	}
	if lit, ok := src.AllowLiteral(); ok {
		return readLiteral(ctx, def, lit)
	}
	if _, ok := src.AllowSequenceStart(); ok {
		return readSequence(ctx, def, src, fileID)
	}
	if _, ok := src.AllowMappingStart(); ok {
		return readMapping(ctx, def, src, fileID)
	}
	return nil, fmt.Errorf("template: expected a value but the event source produced none")
}

// readAnyValue reads a value against the synthetic accept-anything
// definition: every shape passes, children inherit the same definition,
// and embedded expressions are still parsed (and syntax-checked) using
// the definition's inherited contexts.
func readAnyValue(ctx *ReaderContext, def *Definition, src EventSource, fileID string) (*Token, error) {
	if lit, ok := src.AllowLiteral(); ok {
		return readLiteral(ctx, def, lit)
	}
	if _, ok := src.AllowSequenceStart(); ok {
		if err := ctx.Depth.Enter(); err != nil {
			return nil, err
		}
		defer ctx.Depth.Exit()
		var items []*Token
		for !src.AllowSequenceEnd() {
			item, err := readAnyValue(ctx, def, src, fileID)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		tok := SequenceToken(items, Position{}, false)
		if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
			return nil, err
		}
		return tok, nil
	}
	if _, ok := src.AllowMappingStart(); ok {
		if err := ctx.Depth.Enter(); err != nil {
			return nil, err
		}
		defer ctx.Depth.Exit()
		var pairs []Pair
		for !src.AllowMappingEnd() {
			keyTok, err := readAnyValue(ctx, def, src, fileID)
			if err != nil {
				return nil, err
			}
			valTok, err := readAnyValue(ctx, def, src, fileID)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: keyTok, Value: valTok})
		}
		tok := MappingToken(pairs, Position{}, false)
		if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
			return nil, err
		}
		return tok, nil
	}
	return nil, fmt.Errorf("template: expected a value but the event source produced none")
}

func readLiteral(ctx *ReaderContext, def *Definition, lit Literal) (*Token, error) {
	pos := lit.Pos
	hasPos := lit.HasPos

	if lit.Kind == KindString {
		tok, err := parseScalarString(ctx, def, lit.S, pos, hasPos)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}

	var tok *Token
	switch lit.Kind {
	case KindNull:
		tok = Null(pos, hasPos)
	case KindBoolean:
		tok = Boolean(lit.B, pos, hasPos)
	case KindNumber:
		tok = NumberToken(lit.N, pos, hasPos)
	default:
		tok = Null(pos, hasPos)
	}
	if def != nil && !def.anyShape {
		matched := false
		hasStringDef := false
		for _, s := range ctx.Schema.GetScalarDefinitions(def) {
			if (lit.Kind == KindNull && s.Kind == DefNull) ||
				(lit.Kind == KindBoolean && s.Kind == DefBoolean) ||
				(lit.Kind == KindNumber && s.Kind == DefNumber) {
				matched = true
				break
			}
			if s.Kind == DefString {
				hasStringDef = true
			}
		}
		if !matched && hasStringDef {
			// A position typed string accepts a bare YAML/JSON number or
			// boolean as its string rendering ("script: 123").
			s := literalText(lit)
			stok := StringToken(s, pos, hasPos)
			validateStringScalar(ctx, def, stok)
			if err := ctx.Counter.Add(resource.StringCost(utf16Len(s))); err != nil {
				return nil, err
			}
			return stok, nil
		}
		if !matched {
			ctx.Errors.Add(NewValidationError(tok, "unexpected_value_type",
				fmt.Sprintf("a %s was not expected", lit.Kind)))
		}
	}
	if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
		return nil, err
	}
	return tok, nil
}

// literalText renders a non-string literal the way it would have been
// written: used when a string-typed position receives a bare number or
// boolean from the event source.
func literalText(lit Literal) string {
	switch lit.Kind {
	case KindBoolean:
		if lit.B {
			return "true"
		}
		return "false"
	case KindNumber:
		if lit.N == float64(int64(lit.N)) {
			return strconv.FormatInt(int64(lit.N), 10)
		}
		return strconv.FormatFloat(lit.N, 'g', -1, 64)
	default:
		return ""
	}
}

// validateStringScalar checks a fully literal string token against the
// string definitions reachable from def: a declared constant must match
// (case-insensitively when ignore-case is set), require-non-empty rejects
// "", and a definition with no string member at all did not expect a
// string here.
func validateStringScalar(ctx *ReaderContext, def *Definition, tok *Token) {
	if def == nil || def.anyShape {
		return
	}
	var sawString bool
	for _, s := range ctx.Schema.GetScalarDefinitions(def) {
		if s.Kind != DefString {
			continue
		}
		sawString = true
		c := s.String
		if c.HasConstant {
			if c.IgnoreCase && strings.EqualFold(tok.s, c.Constant) {
				return
			}
			if !c.IgnoreCase && tok.s == c.Constant {
				return
			}
			continue
		}
		if c.RequireNonEmpty && tok.s == "" {
			continue
		}
		return
	}
	if sawString {
		ctx.Errors.Add(NewValidationError(tok, "unexpected_value",
			fmt.Sprintf("unexpected value '%s'", tok.s), map[string]any{"value": tok.s}))
	} else {
		ctx.Errors.Add(NewValidationError(tok, "unexpected_value_type", "a string was not expected"))
	}
}

// parseScalarString splits a raw scalar into alternating
// literal/expression segments (respecting '…' strings so a '}' inside a
// literal doesn't look like the end of an expression), collapses a sole
// `${{ 'literal' }}` to a plain string, rejects an `${{ insert }}`-style
// directive unless it is the entire value, and rewrites a multi-segment
// value as one format(...) call.
func parseScalarString(ctx *ReaderContext, def *Definition, raw string, pos Position, hasPos bool) (*Token, error) {
	segments, err := splitExpressionSegments(raw)
	if err != nil {
		tok := StringToken(raw, pos, hasPos)
		ctx.Errors.Add(NewValidationError(tok, "invalid_expression_syntax", err.Error()))
		return tok, nil
	}

	if len(segments) == 1 && segments[0].isExpr {
		body := strings.TrimSpace(segments[0].text)
		if body == "insert" {
			if !def.AllowsExpressions() {
				tok := StringToken(raw, pos, hasPos)
				ctx.Errors.Add(NewValidationError(tok, "directive_not_allowed",
					"the directive 'insert' is not allowed in this context"))
				return tok, nil
			}
			tok := InsertExpressionToken(pos, hasPos)
			if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
				return nil, err
			}
			return tok, nil
		}
		if !def.AllowsExpressions() {
			tok := StringToken(raw, pos, hasPos)
			ctx.Errors.Add(NewValidationError(tok, "expression_not_allowed",
				"a template expression is not allowed in this context"))
			return tok, nil
		}
		if lit, ok := literalStringExpression(body); ok {
			tok := StringToken(lit, pos, hasPos)
			validateStringScalar(ctx, def, tok)
			if err := ctx.Counter.Add(resource.StringCost(utf16Len(lit))); err != nil {
				return nil, err
			}
			return tok, nil
		}
		if err := validateExpressionSyntax(def, body); err != nil {
			tok := StringToken(raw, pos, hasPos)
			ctx.Errors.Add(NewValidationError(tok, "invalid_expression_syntax", err.Error()))
			return tok, nil
		}
		tok := BasicExpressionToken(body, pos, hasPos)
		if err := ctx.Counter.Add(resource.StringCost(utf16Len(body))); err != nil {
			return nil, err
		}
		return tok, nil
	}

	hasExpr := false
	for _, s := range segments {
		if s.isExpr {
			hasExpr = true
			break
		}
	}
	if !hasExpr {
		tok := StringToken(raw, pos, hasPos)
		validateStringScalar(ctx, def, tok)
		if err := ctx.Counter.Add(resource.StringCost(utf16Len(raw))); err != nil {
			return nil, err
		}
		return tok, nil
	}

	// An embedded (non-whole-value) insert directive is rejected.
	for _, s := range segments {
		if s.isExpr && strings.TrimSpace(s.text) == "insert" {
			tok := StringToken(raw, pos, hasPos)
			ctx.Errors.Add(NewValidationError(tok, "directive_not_allowed",
				"the directive 'insert' must be the entire value"))
			return tok, nil
		}
	}
	if !def.AllowsExpressions() {
		tok := StringToken(raw, pos, hasPos)
		ctx.Errors.Add(NewValidationError(tok, "expression_not_allowed",
			"a template expression is not allowed in this context"))
		return tok, nil
	}

	// Rewrite as format('...{0}...{1}...', seg0, seg1, ...): literal
	// pieces have '/{/} doubled so they survive format()'s own grammar.
	var fmtStr strings.Builder
	fmtStr.WriteByte('\'')
	var args []string
	argIndex := 0
	for _, s := range segments {
		if s.isExpr {
			fmtStr.WriteString(fmt.Sprintf("{%d}", argIndex))
			args = append(args, strings.TrimSpace(s.text))
			argIndex++
		} else {
			fmtStr.WriteString(escapeFormatLiteral(s.text))
		}
	}
	fmtStr.WriteByte('\'')
	call := "format(" + fmtStr.String()
	for _, a := range args {
		call += ", " + a
	}
	call += ")"
	if err := validateExpressionSyntax(def, call); err != nil {
		tok := StringToken(raw, pos, hasPos)
		ctx.Errors.Add(NewValidationError(tok, "invalid_expression_syntax", err.Error()))
		return tok, nil
	}
	tok := BasicExpressionToken(call, pos, hasPos)
	if err := ctx.Counter.Add(resource.StringCost(utf16Len(call))); err != nil {
		return nil, err
	}
	return tok, nil
}

// escapeFormatLiteral doubles ', {, and } so a literal segment round-trips
// through format()'s own escaping grammar unchanged.
func escapeFormatLiteral(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	s = strings.ReplaceAll(s, "{", "{{")
	s = strings.ReplaceAll(s, "}", "}}")
	return s
}

// literalStringExpression recognizes the sole special-case collapse:
// "${{ 'literal' }}" (a single-quoted string literal and nothing else)
// becomes a plain string rather than a basic-expression token.
func literalStringExpression(body string) (string, bool) {
	b := strings.TrimSpace(body)
	if len(b) < 2 || b[0] != '\'' || b[len(b)-1] != '\'' {
		return "", false
	}
	inner := b[1 : len(b)-1]
	if strings.Contains(inner, "'") {
		// Could contain an escaped '' pair; only collapse the simple case.
		unescaped := strings.ReplaceAll(inner, "''", "'")
		if strings.Contains(unescaped, "'") {
			return "", false
		}
		return unescaped, true
	}
	return inner, true
}

func validateExpressionSyntax(def *Definition, body string) error {
	contexts := func(name string) (expression.Value, bool) {
		for _, c := range def.ReaderContext {
			if strings.EqualFold(c, name) {
				return expression.Null(), true
			}
		}
		return expression.Null(), false
	}
	fns := expression.DefaultFunctions()
	for _, name := range def.EvaluatorContext {
		if _, ok := expression.LookupFunction(fns, name); !ok {
			placeholder := noOpSchemaFunction(name)
			fns[strings.ToUpper(name)] = &placeholder
		}
	}
	_, err := expression.Parse(body, expression.Parser{
		Functions: fns,
		Contexts:  contexts,
	})
	return err
}

// noOpSchemaFunction builds a placeholder Function signature for a
// schema-declared evaluator-context name that isn't one of the built-ins
// (e.g. a workflow-level function the schema permits but this module
// doesn't implement) — good enough for syntax validation, which is all
// validateExpressionSyntax needs.
func noOpSchemaFunction(name string) expression.Function {
	return expression.Function{Name: name, MinArgs: 0, MaxArgs: -1, Call: func(ec *expression.EvalContext, args []expression.Node) (expression.Value, expression.MemoryHint, error) {
		return expression.Null(), expression.MemoryHint{}, nil
	}}
}

type segment struct {
	text   string
	isExpr bool
}

// splitExpressionSegments scans raw for "${{" ... "}}" spans, tolerating
// single-quoted strings inside an expression span so a literal '}' inside
// a quoted string isn't mistaken for the closing delimiter.
func splitExpressionSegments(raw string) ([]segment, error) {
	var segs []segment
	i := 0
	lastLiteralStart := 0
	for i < len(raw) {
		if strings.HasPrefix(raw[i:], "${{") {
			if i > lastLiteralStart {
				segs = append(segs, segment{text: raw[lastLiteralStart:i]})
			}
			start := i + 3
			j := start
			inString := false
			closed := false
			for j < len(raw) {
				if inString {
					if raw[j] == '\'' {
						if j+1 < len(raw) && raw[j+1] == '\'' {
							j += 2
							continue
						}
						inString = false
					}
					j++
					continue
				}
				if raw[j] == '\'' {
					inString = true
					j++
					continue
				}
				if strings.HasPrefix(raw[j:], "}}") {
					closed = true
					break
				}
				j++
			}
			if !closed {
				return nil, fmt.Errorf("template: unterminated '${{' expression")
			}
			segs = append(segs, segment{text: raw[start:j], isExpr: true})
			i = j + 2
			lastLiteralStart = i
			continue
		}
		i++
	}
	if lastLiteralStart < len(raw) {
		segs = append(segs, segment{text: raw[lastLiteralStart:]})
	}
	if len(segs) == 0 {
		segs = append(segs, segment{text: ""})
	}
	return segs, nil
}

func readSequence(ctx *ReaderContext, def *Definition, src EventSource, fileID string) (*Token, error) {
	if err := ctx.Depth.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Depth.Exit()

	seqDefs := ctx.Schema.GetDefinitionsOfType(def, DefSequence)
	if len(seqDefs) == 0 {
		tok := SequenceToken(nil, Position{}, false)
		ctx.Errors.Add(NewValidationError(tok, "sequence_not_expected", "a sequence was not expected"))
		skipSequence(src, fileID)
		return tok, nil
	}
	itemDef, _ := ctx.Schema.Lookup(seqDefs[0].ItemType)

	var items []*Token
	for {
		if src.AllowSequenceEnd() {
			break
		}
		item, err := readValue(ctx, itemDef, src, fileID)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	tok := SequenceToken(items, Position{}, false)
	if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
		return nil, err
	}
	return tok, nil
}

func skipSequence(src EventSource, fileID string) {
	for {
		if src.AllowSequenceEnd() {
			return
		}
		skipValue(src, fileID)
	}
}

func skipValue(src EventSource, fileID string) {
	if _, ok := src.AllowLiteral(); ok {
		return
	}
	if _, ok := src.AllowSequenceStart(); ok {
		skipSequence(src, fileID)
		return
	}
	if _, ok := src.AllowMappingStart(); ok {
		skipMapping(src, fileID)
		return
	}
}

func skipMapping(src EventSource, fileID string) {
	for {
		if src.AllowMappingEnd() {
			return
		}
		skipValue(src, fileID) // key
		skipValue(src, fileID) // value
	}
}

func readMapping(ctx *ReaderContext, def *Definition, src EventSource, fileID string) (*Token, error) {
	if err := ctx.Depth.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Depth.Exit()

	candidates := ctx.Schema.GetDefinitionsOfType(def, DefMapping)
	if len(candidates) == 0 {
		tok := MappingToken(nil, Position{}, false)
		ctx.Errors.Add(NewValidationError(tok, "mapping_not_expected", "a mapping was not expected"))
		skipMapping(src, fileID)
		return tok, nil
	}

	// Loose-only path: exactly one candidate and it has no well-known
	// properties at all.
	if len(candidates) == 1 && len(candidates[0].Properties) == 0 && candidates[0].HasLoose {
		return readLooseMapping(ctx, candidates[0], src, fileID)
	}

	seen := map[string]bool{}
	var pairs []Pair
	anyDef := AnyDefinition(mergedContexts(candidates, true), mergedContexts(candidates, false))
	loose := firstLoose(candidates)

	for {
		if src.AllowMappingEnd() {
			break
		}
		keyTok, err := readValue(ctx, anyDef, src, fileID)
		if err != nil {
			return nil, err
		}

		if keyTok.Kind == KindBasicExpression || keyTok.Kind == KindInsertExpression {
			valTok, err := readValue(ctx, anyDef, src, fileID)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: keyTok, Value: valTok})
			continue
		}

		keyStr := keyTok.StringValue()
		if seen[strings.ToUpper(keyStr)] {
			ctx.Errors.Add(NewValidationError(keyTok, "duplicate_key",
				fmt.Sprintf("'%s' is already defined", keyStr), map[string]any{"key": keyStr}))
			skipValue(src, fileID) // value
			continue
		}
		seen[strings.ToUpper(keyStr)] = true

		typeName, narrowed := MatchPropertyAndFilter(candidates, keyStr)
		if typeName != "" {
			candidates = narrowed
			propDef, _ := ctx.Schema.Lookup(typeName)
			valTok, err := readValue(ctx, propDef, src, fileID)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: keyTok, Value: valTok})
			continue
		}

		if loose != nil {
			keyDef, _ := ctx.Schema.Lookup(loose.LooseKey)
			validateLooseKey(ctx, keyDef, keyTok)
			valDef, _ := ctx.Schema.Lookup(loose.LooseValue)
			valTok, err := readValue(ctx, valDef, src, fileID)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: keyTok, Value: valTok})
			continue
		}

		ctx.Errors.Add(NewValidationError(keyTok, "unexpected_value",
			fmt.Sprintf("unexpected value '%s'", keyStr), map[string]any{"value": keyStr}))
		skipValue(src, fileID)
	}

	tok := MappingToken(pairs, Position{}, false)
	if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
		return nil, err
	}

	usedExpressionKey := false
	for _, p := range pairs {
		if p.Key.Kind == KindBasicExpression || p.Key.Kind == KindInsertExpression {
			usedExpressionKey = true
		}
	}
	if len(candidates) > 1 {
		ctx.Errors.Add(NewValidationError(tok, "ambiguous_mapping", ambiguousMessage(candidates)))
	} else if len(candidates) == 1 && !usedExpressionKey {
		checkRequired(ctx, candidates[0], pairs, tok)
	}
	return tok, nil
}

func validateLooseKey(ctx *ReaderContext, keyDef *Definition, keyTok *Token) {
	if keyDef == nil || keyDef.Kind != DefString {
		return
	}
	if keyDef.String.HasConstant && !strings.EqualFold(keyTok.StringValue(), keyDef.String.Constant) {
		ctx.Errors.Add(NewValidationError(keyTok, "invalid_key",
			fmt.Sprintf("key %q does not match the required constant %q", keyTok.StringValue(), keyDef.String.Constant)))
	}
}

func checkRequired(ctx *ReaderContext, def *Definition, pairs []Pair, tok *Token) {
	seen := map[string]bool{}
	for _, p := range pairs {
		if p.Key.Kind == KindString {
			seen[strings.ToUpper(p.Key.StringValue())] = true
		}
	}
	for _, p := range def.Properties {
		if p.Required && !seen[strings.ToUpper(p.Name)] {
			ctx.Errors.Add(NewValidationError(tok, "required_property_missing",
				fmt.Sprintf("required property is missing: %s", p.Name),
				map[string]any{"property": p.Name}))
		}
	}
}

func ambiguousMessage(candidates []*Definition) string {
	// Non-shared property names across the surviving candidates would
	// disambiguate.
	counts := map[string]int{}
	for _, c := range candidates {
		for _, p := range c.Properties {
			counts[p.Name]++
		}
	}
	var distinguishing []string
	for name, n := range counts {
		if n < len(candidates) {
			distinguishing = append(distinguishing, name)
		}
	}
	if len(distinguishing) == 0 {
		return "there's not enough info to determine what type of object this is"
	}
	return "there's not enough info to determine what type of object this is. add one of these properties: " + strings.Join(distinguishing, ", ")
}

func mergedContexts(candidates []*Definition, reader bool) []string {
	set := map[string]bool{}
	var out []string
	for _, c := range candidates {
		list := c.EvaluatorContext
		if reader {
			list = c.ReaderContext
		}
		for _, n := range list {
			if !set[n] {
				set[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func firstLoose(candidates []*Definition) *Definition {
	for _, c := range candidates {
		if c.HasLoose {
			return c
		}
	}
	return nil
}

func readLooseMapping(ctx *ReaderContext, def *Definition, src EventSource, fileID string) (*Token, error) {
	keyDef, _ := ctx.Schema.Lookup(def.LooseKey)
	valDef, _ := ctx.Schema.Lookup(def.LooseValue)

	// The mapping's own contexts flow into the key position so that
	// `${{ insert }}` and expression keys are recognized even though the
	// loose key type itself is a plain scalar definition.
	effKeyDef := keyDef
	if keyDef != nil && def.AllowsExpressions() {
		merged := *keyDef
		merged.ReaderContext = mergedContexts([]*Definition{keyDef, def}, true)
		merged.EvaluatorContext = mergedContexts([]*Definition{keyDef, def}, false)
		effKeyDef = &merged
	}

	seen := map[string]bool{}
	var pairs []Pair
	for {
		if src.AllowMappingEnd() {
			break
		}
		keyTok, err := readValue(ctx, effKeyDef, src, fileID)
		if err != nil {
			return nil, err
		}
		if keyTok.Kind == KindString {
			if seen[strings.ToUpper(keyTok.StringValue())] {
				ctx.Errors.Add(NewValidationError(keyTok, "duplicate_key",
					fmt.Sprintf("'%s' is already defined", keyTok.StringValue()),
					map[string]any{"key": keyTok.StringValue()}))
				skipValue(src, fileID)
				continue
			}
			seen[strings.ToUpper(keyTok.StringValue())] = true
		}
		valTok, err := readValue(ctx, valDef, src, fileID)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: keyTok, Value: valTok})
	}
	tok := MappingToken(pairs, Position{}, false)
	if err := ctx.Counter.Add(resource.MinObjectSize); err != nil {
		return nil, err
	}
	return tok, nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

