package expression

import (
	"unicode/utf16"

	"github.com/ericsciple/actions-yaml/resource"
)

// DefaultTraceMemoryBudget bounds how many bytes of "realized expression"
// text the evaluator will cache for trace output.
const DefaultTraceMemoryBudget = 1 << 20 // 1 MiB

// TraceWriter is the trace-writer interface the core consumes:
// callers supply logging/sink behavior, the core never opens a file or
// writes to a terminal itself.
type TraceWriter interface {
	Verbosef(format string, args ...any)
	Infof(format string, args ...any)
}

// NopTrace discards everything; the zero value is ready to use.
type NopTrace struct{}

func (NopTrace) Verbosef(string, ...any) {}
func (NopTrace) Infof(string, ...any)    {}

// MemoryHint is what a node's evaluateCore reports alongside its value: an
// explicit byte cost (HasBytes) which, when IsTotal is set, already nets
// out any children the node consumed to produce it (the format/join/
// toJson amplifying-function defense). When HasBytes
// is false the generic evaluator charges the default sizing rule instead.
type MemoryHint struct {
	Bytes    int
	HasBytes bool
	IsTotal  bool
}

// TotalBytes builds a MemoryHint for a node whose own realized size already
// subsumes whatever it charged while evaluating its children.
func TotalBytes(n int) MemoryHint { return MemoryHint{Bytes: n, HasBytes: true, IsTotal: true} }

// OwnBytes builds a MemoryHint for a node charging only its own overhead,
// on top of whatever its children already charged (the common case: an
// index, a comparison, a boolean node).
func OwnBytes(n int) MemoryHint { return MemoryHint{Bytes: n, HasBytes: true} }

// Node is the closed sum of expression-tree node kinds: every
// concrete node implements evaluateCore, the capability the evaluator's
// generic per-node algorithm drives.
type Node interface {
	evaluateCore(ec *EvalContext) (Value, MemoryHint, error)
}

// realizer is the optional trace-fully-realized capability: a node opts
// in by implementing this and returning true so its formatted result
// gets cached for upstream trace rendering.
type realizer interface {
	traceFullyRealized() bool
}

// EvalContext carries everything a node needs to evaluate: the named
// contexts and function registry built by the parser, the shared
// memory/depth accounting, and the host's opaque state and trace sink.
type EvalContext struct {
	Functions map[string]*Function
	Counter   *resource.Counter
	Depth     *resource.Depth
	Trace     TraceWriter
	State     any

	level int

	traceBudget int
	traceUsed   int
	realized    map[Node]string
}

// EvaluationOptions configures a single evaluate-tree call.
type EvaluationOptions struct {
	MaxMemory         int
	MaxDepth          int
	TraceMemoryBudget int
	Trace             TraceWriter
	State             any
}

// EvaluationResult is what EvaluateTree returns: the produced value (or
// the zero Value on error), any evaluation error, and the bytes charged
// against the evaluation's own counter (useful to a caller, such as the
// template unraveler, that wants to fold this cost into its own ledger).
type EvaluationResult struct {
	Value      Value
	Err        error
	BytesUsed  int
	RealizedOf func(Node) (string, bool)
}

// NewEvalContext builds a fresh per-evaluation context. Each evaluation
// gets its own Counter/Depth.
func NewEvalContext(functions map[string]*Function, opts EvaluationOptions) *EvalContext {
	depthMax := opts.MaxDepth
	traceBudget := opts.TraceMemoryBudget
	if traceBudget <= 0 {
		traceBudget = DefaultTraceMemoryBudget
	}
	trace := opts.Trace
	if trace == nil {
		trace = NopTrace{}
	}
	return &EvalContext{
		Functions:   functions,
		Counter:     resource.NewCounter(opts.MaxMemory),
		Depth:       resource.NewDepth(depthMax),
		Trace:       trace,
		State:       opts.State,
		traceBudget: traceBudget,
		realized:    make(map[Node]string),
	}
}

// EvaluateTree runs the per-node algorithm over the root of a parsed
// expression tree (see Parser.Parse), returning the produced value
// or an error (a MemoryError if the budget is exhausted, or an
// *EvalError from a function/operator).
func EvaluateTree(root Node, functions map[string]*Function, opts EvaluationOptions) EvaluationResult {
	ec := NewEvalContext(functions, opts)
	val, err := Evaluate(ec, root)
	return EvaluationResult{
		Value:     val,
		Err:       err,
		BytesUsed: ec.Counter.Current(),
		RealizedOf: func(n Node) (string, bool) {
			s, ok := ec.realized[n]
			return s, ok
		},
	}
}

// EvaluateCharged runs the generic per-node algorithm for n and reports
// the bytes it charged, so a caller (typically a composite node like
// format/join/toJson) can later net those bytes out of its own, larger
// realized-result charge instead of double-counting both the arguments
// and the result.
func EvaluateCharged(ec *EvalContext, n Node) (Value, int, error) {
	ec.level++
	ec.Trace.Verbosef("evaluating node at level %d", ec.level)
	if err := ec.Depth.Enter(); err != nil {
		ec.level--
		return Value{}, 0, &MemoryError{Message: err.Error()}
	}
	val, hint, err := n.evaluateCore(ec)
	ec.Depth.Exit()
	if err != nil {
		ec.level--
		return Value{}, 0, err
	}

	cost := hint.Bytes
	if !hint.HasBytes {
		if val.Kind() == KindString {
			cost = resource.StringCost(utf16Len(val.StringValue()))
		} else {
			cost = resource.MinObjectSize
		}
	}
	if err := ec.Counter.Add(cost); err != nil {
		ec.level--
		return Value{}, 0, &MemoryError{Message: err.Error()}
	}

	if r, ok := n.(realizer); ok && r.traceFullyRealized() {
		ec.cacheRealized(n, val)
	}

	ec.level--
	return val, cost, nil
}

// Evaluate is EvaluateCharged without the byte count, the form almost
// every node uses to evaluate a child it doesn't need to net-adjust.
func Evaluate(ec *EvalContext, n Node) (Value, error) {
	v, _, err := EvaluateCharged(ec, n)
	return v, err
}

func (ec *EvalContext) cacheRealized(n Node, val Value) {
	text := val.ToStringValue()
	if ec.traceUsed+len(text) > ec.traceBudget {
		return
	}
	ec.traceUsed += len(text)
	ec.realized[n] = text
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
