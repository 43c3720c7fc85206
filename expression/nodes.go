package expression

// LiteralNode wraps a parsed literal (null/boolean/number/string).
type LiteralNode struct {
	Value Value
}

func (n *LiteralNode) evaluateCore(*EvalContext) (Value, MemoryHint, error) {
	return n.Value, MemoryHint{}, nil
}

// NamedContextNode is the default named-context node: a reference to a
// host-supplied value, looked up by name from the
// EvalContext's named-context table. Custom named-context providers can
// implement Node directly and be substituted by the parser's node-factory
// table instead of this default.
type NamedContextNode struct {
	Name  string
	Value Value
}

func (n *NamedContextNode) evaluateCore(*EvalContext) (Value, MemoryHint, error) {
	return n.Value, MemoryHint{}, nil
}

// wildcardNode marks a bare '*' used as an index operand; it is never
// evaluated standalone — IndexNode special-cases it.
type wildcardNode struct{}

func (wildcardNode) evaluateCore(*EvalContext) (Value, MemoryHint, error) {
	return Null(), MemoryHint{}, nil
}

// IndexNode implements both '.' (property dereference) and '[]' (index),
// collapsed into one node. Index may be a wildcardNode, in which case
// the result is a filtered array over Left's elements/values (and, if Left is itself a filtered
// array, the wildcard cascades/flattens across it).
type IndexNode struct {
	Left  Node
	Index Node // never nil; a wildcard index is wildcardNode{}
}

func (n *IndexNode) evaluateCore(ec *EvalContext) (Value, MemoryHint, error) {
	left, err := Evaluate(ec, n.Left)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}

	if _, isWildcard := n.Index.(wildcardNode); isWildcard {
		return n.evaluateWildcard(ec, left)
	}

	idx, err := Evaluate(ec, n.Index)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}

	cap, isCollection := left.Collection()
	if !isCollection {
		// Degrade gracefully: non-collection indexed by wildcard already
		// handled above; any other index on a non-collection is null.
		return Null(), MemoryHint{}, nil
	}

	// A filtered array (the result of a previous wildcard) cascades any
	// following index across its elements instead of indexing into the
	// filtered array itself: "items.*.name" means "each item's name", not
	// "the Nth/'"name"'th entry of the filtered array".
	if filtered, ok := cap.(*FilteredArray); ok {
		out := make([]Value, 0, filtered.Length())
		for i := 0; i < filtered.Length(); i++ {
			item, _ := filtered.Get(i)
			out = append(out, n.indexOne(item, idx))
		}
		return Array(NewFilteredArray(out)), MemoryHint{}, nil
	}

	return n.indexOne(left, idx), MemoryHint{}, nil
}

// indexOne applies a single non-wildcard index/property lookup to left.
func (n *IndexNode) indexOne(left, idx Value) Value {
	cap, isCollection := left.Collection()
	if !isCollection {
		return Null()
	}
	switch c := cap.(type) {
	case ArrayCapability:
		i := idx.ToNumber()
		if isNaNFloat(i) {
			return Null()
		}
		ii := int(floorClampIndex(i))
		v, ok := c.Get(ii)
		if !ok {
			return Null()
		}
		return v
	case ObjectCapability:
		key := idx.ToStringValue()
		v, ok := c.Get(key)
		if !ok {
			return Null()
		}
		return v
	default:
		return Null()
	}
}

func (n *IndexNode) evaluateWildcard(ec *EvalContext, left Value) (Value, MemoryHint, error) {
	cap, isCollection := left.Collection()
	if !isCollection {
		// Degrades gracefully so chaining continues to work.
		return Array(NewFilteredArray(nil)), MemoryHint{}, nil
	}

	var items []Value
	switch c := cap.(type) {
	case *FilteredArray:
		// Cascading wildcard: flatten one more level across every element.
		for i := 0; i < c.Length(); i++ {
			v, _ := c.Get(i)
			items = append(items, flattenWildcard(v)...)
		}
	case ArrayCapability:
		for i := 0; i < c.Length(); i++ {
			v, _ := c.Get(i)
			items = append(items, v)
		}
	case ObjectCapability:
		for _, k := range c.Keys() {
			v, _ := c.Get(k)
			items = append(items, v)
		}
	}
	return Array(NewFilteredArray(items)), MemoryHint{}, nil
}

// flattenWildcard expands one element of a cascading wildcard: if the
// element is itself a collection its children are spliced in, otherwise
// the element itself is kept, so wildcards flatten across nested objects
// and arrays.
func flattenWildcard(v Value) []Value {
	cap, isCollection := v.Collection()
	if !isCollection {
		return []Value{v}
	}
	var out []Value
	switch c := cap.(type) {
	case ArrayCapability:
		for i := 0; i < c.Length(); i++ {
			item, _ := c.Get(i)
			out = append(out, item)
		}
	case ObjectCapability:
		for _, k := range c.Keys() {
			item, _ := c.Get(k)
			out = append(out, item)
		}
	}
	return out
}

func isNaNFloat(f float64) bool { return f != f }

// floorClampIndex floors a numeric index and bounds it to [0, 2^31);
// anything outside that range resolves to null via an out-of-range Get.
func floorClampIndex(f float64) float64 {
	if f < 0 {
		return -1 // out of range, Get() will report not-found
	}
	const max31 = 1<<31 - 1
	if f > max31 {
		return max31 + 1 // force an out-of-range Get()
	}
	whole := f - mod1(f)
	return whole
}

func mod1(f float64) float64 {
	i := int64(f)
	return f - float64(i)
}

// AndNode / OrNode implement N-ary short-circuit && / || with flattening
// already applied by the parser: return the
// first falsy/truthy operand unmodified (not coerced to boolean), or the
// last operand's value if every operand passed.
type AndNode struct{ Operands []Node }

func (n *AndNode) evaluateCore(ec *EvalContext) (Value, MemoryHint, error) {
	var last Value
	for i, op := range n.Operands {
		v, err := Evaluate(ec, op)
		if err != nil {
			return Value{}, MemoryHint{}, err
		}
		last = v
		if !v.Truthy() {
			return v, MemoryHint{}, nil
		}
		if i == len(n.Operands)-1 {
			return v, MemoryHint{}, nil
		}
	}
	return last, MemoryHint{}, nil
}

type OrNode struct{ Operands []Node }

func (n *OrNode) evaluateCore(ec *EvalContext) (Value, MemoryHint, error) {
	var last Value
	for i, op := range n.Operands {
		v, err := Evaluate(ec, op)
		if err != nil {
			return Value{}, MemoryHint{}, err
		}
		last = v
		if v.Truthy() {
			return v, MemoryHint{}, nil
		}
		if i == len(n.Operands)-1 {
			return v, MemoryHint{}, nil
		}
	}
	return last, MemoryHint{}, nil
}

// NotNode implements unary '!'.
type NotNode struct{ Operand Node }

func (n *NotNode) evaluateCore(ec *EvalContext) (Value, MemoryHint, error) {
	v, err := Evaluate(ec, n.Operand)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	return Bool(!v.Truthy()), MemoryHint{}, nil
}

// FunctionNode calls a built-in or host-supplied Function by name. Arity
// is already validated at parse time; evaluateCore trusts
// Args to satisfy the Function's [MinArgs, MaxArgs] range.
type FunctionNode struct {
	Name string
	Fn   *Function
	Args []Node
}

func (n *FunctionNode) evaluateCore(ec *EvalContext) (Value, MemoryHint, error) {
	return n.Fn.Call(ec, n.Args)
}

// Function results are cached in realized form so upstream traces can
// show the call's produced value rather than re-render its arguments.
func (n *FunctionNode) traceFullyRealized() bool { return true }

// CompareNode implements ==, !=, <, <=, >, >=.
type CompareNode struct {
	Op          Operator
	Left, Right Node
}

func (n *CompareNode) evaluateCore(ec *EvalContext) (Value, MemoryHint, error) {
	l, err := Evaluate(ec, n.Left)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}
	r, err := Evaluate(ec, n.Right)
	if err != nil {
		return Value{}, MemoryHint{}, err
	}

	switch n.Op {
	case OpEqual:
		return Bool(AbstractEqual(l, r)), MemoryHint{}, nil
	case OpNotEqual:
		return Bool(!AbstractEqual(l, r)), MemoryHint{}, nil
	default:
		cmp, ok := AbstractCompare(l, r)
		if !ok {
			return Bool(false), MemoryHint{}, nil // NaN comparisons are always false
		}
		switch n.Op {
		case OpLessThan:
			return Bool(cmp < 0), MemoryHint{}, nil
		case OpLessThanOrEqual:
			return Bool(cmp <= 0), MemoryHint{}, nil
		case OpGreaterThan:
			return Bool(cmp > 0), MemoryHint{}, nil
		case OpGreaterThanOrEqual:
			return Bool(cmp >= 0), MemoryHint{}, nil
		}
	}
	return Bool(false), MemoryHint{}, nil
}
