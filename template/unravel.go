package template

import (
	"strings"

	"github.com/ericsciple/actions-yaml/expression"
	"github.com/ericsciple/actions-yaml/resource"
)

// ExpressionEvaluator is the hook an Unraveler uses to resolve a
// "${{ ... }}" body into a value, the seam between this package and
// expression.EvaluateTree. The evaluator runs against its own
// per-evaluation counter (canonical values live only for the duration of
// a single expression evaluation); it reports the bytes the realized
// result occupies so the unraveler can fold that cost into its own
// ledger as the substitution product's removeBytes.
type ExpressionEvaluator func(exprBody string) (expression.Value, int, error)

// stateKind discriminates the five reader-state variants: LiteralState,
// SequenceState, MappingState, BasicExpressionState, InsertExpressionState.
type stateKind int

const (
	stateLiteral stateKind = iota
	stateSequence
	stateMapping
	stateBasicExpr
	stateInsertExpr
)

// readerState is one frame of the cursor's stack. Each frame, when
// created, charges its token's byte cost and (for non-scalar tokens)
// enters one level of depth; when removed, it subtracts both, plus any
// removeBytes handed in at creation — the bytes of a transient
// substitution product an expression produced at this position.
type readerState struct {
	kind stateKind
	tok  *Token

	// stateSequence
	atStart bool
	idx     int
	pending []*Token // spliced-in items from an expanded expression, drained before tok.seq[idx:]

	// stateMapping (atStart/idx shared with sequence bookkeeping)
	atKey        bool
	pendingPairs []Pair // spliced-in pairs from a merged insert directive
	seenKeys     map[string]bool

	charged int // released on pop: the token's own cost plus any removeBytes
	entered bool
}

// Unraveler is the just-in-time cursor over a token tree read by
// ReadTemplate: it lazily expands "${{ ... }}" and `${{ insert }}: …`
// frames into their substituted tokens as the caller advances past them.
// The cursor never holds more than one path through the tree at a time,
// so the memory charged at any moment corresponds exactly to the live
// path; a traversal that reads every event to completion returns the
// depth counter to 0 and the bytes counter to its initial value.
type Unraveler struct {
	counter *resource.Counter
	depth   *resource.Depth
	errors  *ValidationErrors
	eval    ExpressionEvaluator
	stack   []*readerState
	err     error // first fatal (memory/depth) error; poisons every later call
}

// NewUnraveler positions a cursor at root. counter/depth should be the
// same Counter/Depth the reader used to build root, so the unraveler's
// charges and releases reconcile against one ledger.
func NewUnraveler(root *Token, counter *resource.Counter, depth *resource.Depth, errs *ValidationErrors, eval ExpressionEvaluator) *Unraveler {
	u := &Unraveler{counter: counter, depth: depth, errors: errs, eval: eval}
	u.push(root, 0)
	return u
}

// Err reports the fatal error, if any, that terminated the traversal:
// exceeding max bytes or max depth has no local recovery, unlike the
// expression errors collected on the ValidationErrors list.
func (u *Unraveler) Err() error { return u.err }

// Finished reports whether the cursor has consumed the entire tree.
func (u *Unraveler) Finished() bool { return len(u.stack) == 0 }

func tokenHeadCost(tok *Token) int {
	if tok.Kind == KindString || tok.Kind == KindBasicExpression {
		return resource.StringCost(utf16Len(tok.s))
	}
	return resource.MinObjectSize
}

func (u *Unraveler) push(tok *Token, removeBytes int) *readerState {
	cost := tokenHeadCost(tok) + removeBytes
	if err := u.counter.Add(cost); err != nil && u.err == nil {
		u.err = err
	}
	f := &readerState{tok: tok, charged: cost}
	switch tok.Kind {
	case KindSequence:
		f.kind = stateSequence
		f.atStart = true
	case KindMapping:
		f.kind = stateMapping
		f.atStart = true
		f.atKey = true
		f.seenKeys = map[string]bool{}
	case KindBasicExpression:
		f.kind = stateBasicExpr
	case KindInsertExpression:
		f.kind = stateInsertExpr
	default:
		f.kind = stateLiteral
	}
	if f.kind != stateLiteral {
		if err := u.depth.Enter(); err != nil && u.err == nil {
			u.err = err
		}
		f.entered = true
	}
	u.stack = append(u.stack, f)
	return f
}

func (u *Unraveler) pop() *readerState {
	n := len(u.stack)
	if n == 0 {
		return nil
	}
	f := u.stack[n-1]
	u.stack = u.stack[:n-1]
	u.counter.Subtract(f.charged)
	if f.entered {
		u.depth.Exit()
	}
	return f
}

func (u *Unraveler) top() *readerState {
	if len(u.stack) == 0 {
		return nil
	}
	return u.stack[len(u.stack)-1]
}

func (u *Unraveler) parent() *readerState {
	if len(u.stack) < 2 {
		return nil
	}
	return u.stack[len(u.stack)-2]
}

// advanceItem moves a sequence frame past its current item.
func advanceItem(f *readerState) {
	if len(f.pending) > 0 {
		f.pending = f.pending[1:]
		return
	}
	f.idx++
}

// advancePair moves a mapping frame past its current (key, value) pair
// and returns the cursor to key position.
func advancePair(f *readerState) {
	if len(f.pendingPairs) > 0 {
		f.pendingPairs = f.pendingPairs[1:]
	} else {
		f.idx++
	}
	f.atKey = true
}

func (f *readerState) currentItem() (*Token, bool) {
	if len(f.pending) > 0 {
		return f.pending[0], true
	}
	if f.idx < len(f.tok.seq) {
		return f.tok.seq[f.idx], true
	}
	return nil, false
}

func (f *readerState) currentPair() (Pair, bool) {
	if len(f.pendingPairs) > 0 {
		return f.pendingPairs[0], true
	}
	if f.idx < len(f.tok.mp) {
		return f.tok.mp[f.idx], true
	}
	return Pair{}, false
}

// ensurePositioned pushes a frame for the token at the cursor's current
// position so the Allow*/skip operations always find the position as the
// top of the stack. It also enforces case-insensitive key uniqueness for
// keys surfacing inside a mapping (duplicates produced by expansion are
// reported and the whole pair is dropped).
func (u *Unraveler) ensurePositioned() {
	for u.err == nil {
		f := u.top()
		if f == nil {
			return
		}
		switch f.kind {
		case stateSequence:
			if f.atStart {
				return
			}
			item, ok := f.currentItem()
			if !ok {
				return
			}
			u.push(item, 0)
			return
		case stateMapping:
			if f.atStart {
				return
			}
			if f.atKey {
				pair, ok := f.currentPair()
				if !ok {
					return
				}
				// Pending pairs were already deduplicated when the insert
				// directive merged them in; only pairs coming from the
				// original token list need the check here.
				if len(f.pendingPairs) == 0 && pair.Key.Kind == KindString && f.seenKeys[strings.ToUpper(pair.Key.s)] {
					u.errors.Add(NewValidationError(pair.Key, "duplicate_key",
						"'"+pair.Key.s+"' is already defined"))
					advancePair(f)
					continue
				}
				u.push(pair.Key, 0)
				return
			}
			pair, ok := f.currentPair()
			if !ok {
				return
			}
			u.push(pair.Value, 0)
			return
		default:
			return
		}
	}
}

// beforeRead is run at the head of every Allow* operation: it positions
// the cursor and, when expand is requested, resolves any expression frame
// found there according to the parent context — root, sequence item,
// mapping key, or mapping value each have their own substitution rule.
func (u *Unraveler) beforeRead(expand bool) {
	u.ensurePositioned()
	if !expand {
		return
	}
	for u.err == nil {
		f := u.top()
		if f == nil {
			return
		}
		switch f.kind {
		case stateBasicExpr:
			if !u.expandBasicExpr(f) {
				return
			}
		case stateInsertExpr:
			if !u.expandInsertExpr(f) {
				return
			}
		default:
			return
		}
		u.ensurePositioned()
	}
}

// expandBasicExpr applies the substitution rule for a "${{ ... }}" frame.
// It reports whether the cursor moved (so the caller re-positions and
// loops) as opposed to settling on a final substituted token.
func (u *Unraveler) expandBasicExpr(f *readerState) (moved bool) {
	parent := u.parent()

	// Mapping key position: the result must be a string; an error or a
	// non-string result drops the whole (key, value) pair.
	if parent != nil && parent.kind == stateMapping && parent.atKey {
		val, charged, err := u.eval(f.tok.ExpressionBody())
		if err != nil {
			u.errors.Add(NewValidationError(f.tok, "expression_evaluation_failed", err.Error()))
			u.pop()
			advancePair(parent)
			return true
		}
		if val.Kind() != expression.KindString {
			u.errors.Add(NewValidationError(f.tok, "invalid_mapping_key",
				"a mapping key expression must evaluate to a string"))
			u.pop()
			advancePair(parent)
			return true
		}
		key := val.StringValue()
		if parent.seenKeys[strings.ToUpper(key)] {
			u.errors.Add(NewValidationError(f.tok, "duplicate_key",
				"'"+key+"' is already defined"))
			u.pop()
			advancePair(parent)
			return true
		}
		u.pop()
		u.push(cloneWithPosition(f.tok, StringToken(key, Position{}, false)), charged)
		return false
	}

	// Sequence item position: a sequence result is spliced in place (its
	// start/end transitions are skipped so items land inline); null is
	// omitted entirely; anything else is emitted as a single item.
	if parent != nil && parent.kind == stateSequence {
		val, charged, err := u.eval(f.tok.ExpressionBody())
		if err != nil {
			u.errors.Add(NewValidationError(f.tok, "expression_evaluation_failed", err.Error()))
			u.pop()
			advanceItem(parent)
			return true
		}
		if val.Kind() == expression.KindNull {
			u.pop()
			advanceItem(parent)
			return true
		}
		result := FromValue(val, Position{}, false)
		if result.Kind == KindSequence {
			u.pop()
			advanceItem(parent)
			parent.pending = append(append([]*Token{}, result.seq...), parent.pending...)
			parent.charged += charged
			if err := u.counter.Add(charged); err != nil && u.err == nil {
				u.err = err
			}
			return true
		}
		u.pop()
		u.push(cloneWithPosition(f.tok, result), charged)
		return false
	}

	// Root or mapping value position: substitute the result, or an empty
	// string when evaluation fails.
	val, charged, err := u.eval(f.tok.ExpressionBody())
	if err != nil {
		u.errors.Add(NewValidationError(f.tok, "expression_evaluation_failed", err.Error()))
		u.pop()
		u.push(cloneWithPosition(f.tok, StringToken("", Position{}, false)), 0)
		return false
	}
	u.pop()
	u.push(cloneWithPosition(f.tok, FromValue(val, Position{}, false)), charged)
	return false
}

// expandInsertExpr merges an `${{ insert }}` directive into its enclosing
// mapping: the paired value must be a mapping (or an expression yielding
// one) and its pairs are spliced in at the current position. Duplicate
// keys keep the first-seen value and surface a diagnostic. Outside a
// mapping key position the directive is not allowed and collapses to an
// empty string.
func (u *Unraveler) expandInsertExpr(f *readerState) (moved bool) {
	parent := u.parent()
	if parent == nil || parent.kind != stateMapping || !parent.atKey {
		u.errors.Add(NewValidationError(f.tok, "directive_not_allowed",
			"the directive 'insert' is not allowed in this context"))
		u.pop()
		u.push(cloneWithPosition(f.tok, StringToken("", Position{}, false)), 0)
		return false
	}

	insertKey := f.tok
	u.pop()
	pair, _ := parent.currentPair()
	advancePair(parent)

	var mergeFrom *Token
	var removeBytes int
	switch {
	case pair.Value == nil:
		// nothing to merge
	case pair.Value.Kind == KindMapping:
		mergeFrom = pair.Value
	case pair.Value.Kind == KindBasicExpression:
		val, charged, err := u.eval(pair.Value.ExpressionBody())
		if err != nil {
			u.errors.Add(NewValidationError(insertKey, "expression_evaluation_failed", err.Error()))
			return true
		}
		if val.Kind() == expression.KindObject {
			mergeFrom = FromValue(val, Position{}, false)
			removeBytes = charged
		}
	}
	if mergeFrom == nil {
		u.errors.Add(NewValidationError(insertKey, "invalid_insert_value",
			"an insert directive's value must evaluate to a mapping"))
		return true
	}

	var fresh []Pair
	for _, p := range mergeFrom.mp {
		key := strings.ToUpper(p.Key.StringValue())
		if parent.seenKeys[key] {
			u.errors.Add(NewValidationError(p.Key, "insert_duplicate_key",
				"duplicate key produced by an insert directive was ignored: "+p.Key.StringValue()))
			continue
		}
		parent.seenKeys[key] = true
		fresh = append(fresh, p)
	}
	parent.pendingPairs = append(fresh, parent.pendingPairs...)
	parent.charged += removeBytes
	if err := u.counter.Add(removeBytes); err != nil && u.err == nil {
		u.err = err
	}
	return true
}

// consumeCurrent pops the frame at the cursor and advances the parent
// past the position it occupied.
func (u *Unraveler) consumeCurrent() {
	f := u.pop()
	parent := u.top()
	if parent == nil {
		return
	}
	switch parent.kind {
	case stateSequence:
		advanceItem(parent)
	case stateMapping:
		if parent.atKey {
			if f != nil && f.tok.Kind == KindString {
				parent.seenKeys[strings.ToUpper(f.tok.s)] = true
			}
			parent.atKey = false
		} else {
			advancePair(parent)
		}
	}
}

// AllowScalar returns the scalar at the current cursor position, if any,
// advancing past it. With expand=false an expression token at this
// position is surfaced as-is instead of being evaluated.
func (u *Unraveler) AllowScalar(expand bool) (*Token, bool) {
	u.beforeRead(expand)
	f := u.top()
	if f == nil || u.err != nil {
		return nil, false
	}
	switch f.tok.Kind {
	case KindNull, KindBoolean, KindNumber, KindString:
		tok := f.tok
		u.consumeCurrent()
		return tok, true
	case KindBasicExpression, KindInsertExpression:
		if !expand {
			tok := f.tok
			u.consumeCurrent()
			return tok, true
		}
	}
	return nil, false
}

// AllowSequenceStart enters a sequence at the current position.
func (u *Unraveler) AllowSequenceStart(expand bool) bool {
	u.beforeRead(expand)
	f := u.top()
	if f == nil || u.err != nil || f.kind != stateSequence || !f.atStart {
		return false
	}
	f.atStart = false
	return true
}

// AllowSequenceEnd leaves the current sequence once every item (including
// spliced-in items) has been consumed.
func (u *Unraveler) AllowSequenceEnd() bool {
	f := u.top()
	if f == nil || u.err != nil || f.kind != stateSequence || f.atStart {
		return false
	}
	if _, remaining := f.currentItem(); remaining {
		return false
	}
	u.consumeCurrent()
	return true
}

// AllowMappingStart enters a mapping at the current position.
func (u *Unraveler) AllowMappingStart(expand bool) bool {
	u.beforeRead(expand)
	f := u.top()
	if f == nil || u.err != nil || f.kind != stateMapping || !f.atStart {
		return false
	}
	f.atStart = false
	return true
}

// AllowMappingEnd leaves the current mapping once every pair (including
// merged insert pairs) has been consumed.
func (u *Unraveler) AllowMappingEnd() bool {
	f := u.top()
	if f == nil || u.err != nil || f.kind != stateMapping || f.atStart || !f.atKey {
		return false
	}
	if _, remaining := f.currentPair(); remaining {
		return false
	}
	u.consumeCurrent()
	return true
}

// ReadEnd unconditionally consumes the frame at the cursor, releasing its
// charge — the bail-out path for callers that extracted what they needed
// from a sub-tree.
func (u *Unraveler) ReadEnd() {
	if u.top() != nil {
		u.consumeCurrent()
	}
}

// ReadMappingEnd is ReadEnd restricted to a mapping frame.
func (u *Unraveler) ReadMappingEnd() bool {
	f := u.top()
	if f == nil || f.kind != stateMapping {
		return false
	}
	u.consumeCurrent()
	return true
}

// SkipSequenceItem discards the next sequence item without expanding it.
func (u *Unraveler) SkipSequenceItem() {
	f := u.top()
	if f == nil {
		return
	}
	if f.kind == stateSequence && !f.atStart {
		if _, ok := f.currentItem(); ok {
			advanceItem(f)
		}
		return
	}
	// a frame for the item was already pushed by a prior positioning call
	if p := u.parent(); p != nil && p.kind == stateSequence {
		u.pop()
		advanceItem(p)
	}
}

// SkipMappingKey discards the next mapping key; callers follow with
// SkipMappingValue to discard the paired value.
func (u *Unraveler) SkipMappingKey() {
	f := u.top()
	if f == nil {
		return
	}
	if f.kind == stateMapping && !f.atStart && f.atKey {
		f.atKey = false
		return
	}
	if p := u.parent(); p != nil && p.kind == stateMapping && p.atKey {
		u.pop()
		p.atKey = false
	}
}

// SkipMappingValue discards the value following a skipped key.
func (u *Unraveler) SkipMappingValue() {
	f := u.top()
	if f == nil {
		return
	}
	if f.kind == stateMapping && !f.atStart && !f.atKey {
		advancePair(f)
		return
	}
	if p := u.parent(); p != nil && p.kind == stateMapping && !p.atKey {
		u.pop()
		advancePair(p)
	}
}

// Unravel drives the cursor to completion, rebuilding the fully expanded
// token tree. It is the convenience form most callers (the templates CLI
// included) want when they don't need event-level control; event-level
// consumers walk the Allow*/Skip* operations themselves.
func Unravel(root *Token, counter *resource.Counter, depth *resource.Depth, errs *ValidationErrors, eval ExpressionEvaluator) (*Token, error) {
	u := NewUnraveler(root, counter, depth, errs, eval)
	tok := u.readValue(true)
	if u.err != nil {
		return nil, u.err
	}
	return tok, nil
}

// readValue consumes one complete value at the cursor and rebuilds it as
// an owned token.
func (u *Unraveler) readValue(expand bool) *Token {
	if tok, ok := u.AllowScalar(expand); ok {
		return tok
	}
	if u.AllowSequenceStart(expand) {
		var items []*Token
		for u.err == nil {
			if u.AllowSequenceEnd() {
				break
			}
			item := u.readValue(expand)
			if item == nil {
				// an expanded item was dropped (null/error); retry the end
				// check, or bail out if the cursor is genuinely stuck
				if u.AllowSequenceEnd() {
					break
				}
				u.ReadEnd()
				break
			}
			items = append(items, item)
		}
		return SequenceToken(items, Position{}, false)
	}
	if u.AllowMappingStart(expand) {
		var pairs []Pair
		for u.err == nil {
			if u.AllowMappingEnd() {
				break
			}
			key := u.readValue(expand)
			if key == nil {
				if u.AllowMappingEnd() {
					break
				}
				u.ReadEnd()
				break
			}
			val := u.readValue(expand)
			pairs = append(pairs, Pair{Key: key, Value: val})
		}
		return MappingToken(pairs, Position{}, false)
	}
	return nil
}
