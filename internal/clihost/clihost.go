// Package clihost carries the pieces every CLI binary shares: a trace
// writer that collects into memory for the response's "log" field, and
// the expression-evaluator closure the template unraveler is driven
// with.
package clihost

import (
	"fmt"
	"strings"

	"github.com/ericsciple/actions-yaml/expression"
	"github.com/ericsciple/actions-yaml/template"
)

// DefaultMaxMemory bounds each CLI evaluation when the request does not
// say otherwise.
const DefaultMaxMemory = 10 << 20

// TraceLog collects trace output in memory so it can be returned in a
// response's "log" field.
type TraceLog struct {
	lines   []string
	verbose bool
}

// NewTraceLog creates a collector; verbose controls whether Verbosef
// lines are retained.
func NewTraceLog(verbose bool) *TraceLog {
	return &TraceLog{verbose: verbose}
}

func (t *TraceLog) Verbosef(format string, args ...any) {
	if t.verbose {
		t.lines = append(t.lines, fmt.Sprintf(format, args...))
	}
}

func (t *TraceLog) Infof(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// String renders the collected log, one line per entry.
func (t *TraceLog) String() string { return strings.Join(t.lines, "\n") }

// ContextResolver adapts a request's named-context map (name, case
// insensitive, to raw JSON-decoded value) into the parser's resolver.
func ContextResolver(contexts map[string]any) expression.NamedContextResolver {
	upper := make(map[string]any, len(contexts))
	for k, v := range contexts {
		upper[strings.ToUpper(k)] = v
	}
	return func(name string) (expression.Value, bool) {
		v, ok := upper[strings.ToUpper(name)]
		if !ok {
			return expression.Null(), false
		}
		return expression.FromAny(v), true
	}
}

// Evaluator builds the ExpressionEvaluator closure the unraveler calls
// for each "${{ ... }}" body: parse with the default function table and
// the request's contexts, then evaluate under its own memory budget.
func Evaluator(contexts map[string]any, maxMemory int, trace expression.TraceWriter) template.ExpressionEvaluator {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}
	functions := expression.DefaultFunctions()
	resolver := ContextResolver(contexts)
	return func(body string) (expression.Value, int, error) {
		node, err := expression.Parse(body, expression.Parser{
			Functions: functions,
			Contexts:  resolver,
		})
		if err != nil {
			return expression.Value{}, 0, err
		}
		result := expression.EvaluateTree(node, functions, expression.EvaluationOptions{
			MaxMemory: maxMemory,
			Trace:     trace,
		})
		if result.Err != nil {
			return expression.Value{}, 0, result.Err
		}
		return result.Value, result.BytesUsed, nil
	}
}
