// Package main implements the expressions batch evaluator.
// It reads JSON requests from standard input, separated by a "---" line,
// and writes one JSON response per expression, each followed by "---".
//
// Usage:
//
//	expressions [flags]
//
// Flags:
//
//	-pretty      Indent response documents with two spaces
//	-verbose     Include verbose trace lines in each response's log
//	-max-memory  Per-evaluation memory budget in bytes
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/ericsciple/actions-yaml/expression"
	"github.com/ericsciple/actions-yaml/internal/clihost"
	"github.com/ericsciple/actions-yaml/internal/cliproto"
)

// Command line flags
var (
	pretty    = flag.Bool("pretty", false, "Indent response documents with two spaces")
	verbose   = flag.Bool("verbose", false, "Include verbose trace lines in the response log")
	maxMemory = flag.Int("max-memory", clihost.DefaultMaxMemory, "Per-evaluation memory budget in bytes")
	help      = flag.Bool("help", false, "Show help message")
)

type request struct {
	BatchID     string         `json:"batchId"`
	Context     map[string]any `json:"context"`
	Expressions []string       `json:"expressions"`
}

type response struct {
	BatchID      string `json:"batchId"`
	Sequence     int    `json:"sequence"`
	Log          string `json:"log"`
	Result       any    `json:"result"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

func main() {
	flag.Usage = showHelp
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	in := cliproto.NewScanner(os.Stdin)
	out := cliproto.NewWriter(os.Stdout, *pretty)

	for {
		doc, ok, err := in.Next()
		if err != nil {
			fmt.Fprintln(os.Stderr, "expressions:", err)
			os.Exit(1)
		}
		if !ok {
			return
		}
		var req request
		if err := json.Unmarshal(doc, &req); err != nil {
			_ = out.Write(response{ErrorMessage: err.Error(), ErrorCode: "invalid_request"})
			continue
		}
		if req.BatchID == "" {
			req.BatchID = uuid.NewString()
		}
		for i, src := range req.Expressions {
			resp := evaluateOne(req, i, src)
			if err := out.Write(resp); err != nil {
				fmt.Fprintln(os.Stderr, "expressions:", err)
				os.Exit(1)
			}
		}
	}
}

func evaluateOne(req request, sequence int, src string) response {
	resp := response{BatchID: req.BatchID, Sequence: sequence}
	trace := clihost.NewTraceLog(*verbose)
	functions := expression.DefaultFunctions()

	node, err := expression.Parse(src, expression.Parser{
		Functions: functions,
		Contexts:  clihost.ContextResolver(req.Context),
	})
	if err != nil {
		resp.Log = trace.String()
		resp.ErrorMessage = err.Error()
		resp.ErrorCode = errorCode(err)
		return resp
	}

	result := expression.EvaluateTree(node, functions, expression.EvaluationOptions{
		MaxMemory: *maxMemory,
		Trace:     trace,
	})
	resp.Log = trace.String()
	if result.Err != nil {
		resp.ErrorMessage = result.Err.Error()
		resp.ErrorCode = errorCode(result.Err)
		return resp
	}
	resp.Result = expression.ToAny(result.Value)
	return resp
}

func errorCode(err error) string {
	var parseErr *expression.ParseError
	if errors.As(err, &parseErr) {
		return string(parseErr.Code)
	}
	var evalErr *expression.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Code
	}
	var memErr *expression.MemoryError
	if errors.As(err, &memErr) {
		return "max_bytes_exceeded"
	}
	return "error"
}

func showHelp() {
	fmt.Println("Usage: expressions [flags]")
	fmt.Println()
	fmt.Println("Reads JSON requests from stdin, one per '---'-delimited document:")
	fmt.Println(`  {"batchId":"...", "context":{"name":<value>}, "expressions":["..."]}`)
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
