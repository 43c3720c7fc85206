// Package main implements the workflows batch driver.
// It reads JSON requests from standard input, separated by a "---" line,
// and writes one JSON response per request, each followed by "---".
//
// Usage:
//
//	workflows [flags]
//
// Flags:
//
//	-pretty      Indent response documents with two spaces
//	-max-memory  Per-request memory budget in bytes
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"

	"github.com/ericsciple/actions-yaml/internal/clihost"
	"github.com/ericsciple/actions-yaml/internal/cliproto"
	"github.com/ericsciple/actions-yaml/resource"
	"github.com/ericsciple/actions-yaml/template"
)

// Command line flags
var (
	pretty    = flag.Bool("pretty", false, "Indent response documents with two spaces")
	maxMemory = flag.Int("max-memory", clihost.DefaultMaxMemory, "Per-request memory budget in bytes")
	help      = flag.Bool("help", false, "Show help message")
)

type fileInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type request struct {
	BatchID       string         `json:"batchId"`
	Command       string         `json:"command"`
	EntryFileName string         `json:"entryFileName"`
	Files         []fileInput    `json:"files"`
	FileTable     []string       `json:"fileTable"`
	Context       map[string]any `json:"context"`
	Token         jsontext.Value `json:"token"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type response struct {
	BatchID string          `json:"batchId"`
	Log     string          `json:"log"`
	Value   jsontext.Value  `json:"value"`
	Errors  []responseError `json:"errors"`
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
			fmt.Fprintln(os.Stderr, "workflows:", err)
			os.Exit(1)
		}
		if !ok {
			return
		}
		var req request
		resp := response{}
		if err := json.Unmarshal(doc, &req); err != nil {
			resp.Errors = append(resp.Errors, responseError{Code: "invalid_request", Message: err.Error()})
			_ = out.Write(resp)
			continue
		}
		if req.BatchID == "" {
			req.BatchID = uuid.NewString()
		}
		resp.BatchID = req.BatchID

		switch req.Command {
		case "parse-workflow":
			parseWorkflow(&req, &resp)
		case "evaluate-strategy":
			evaluateStrategy(&req, &resp)
		default:
			resp.Errors = append(resp.Errors, responseError{
				Code:    "unknown_command",
				Message: fmt.Sprintf("unknown command %q", req.Command),
			})
		}
		if err := out.Write(resp); err != nil {
			fmt.Fprintln(os.Stderr, "workflows:", err)
			os.Exit(1)
		}
	}
}

// parseWorkflow reads the entry file against the built-in workflow schema
// and returns the token tree in its persisted form, leaving expressions
// unexpanded for a later evaluate pass.
func parseWorkflow(req *request, resp *response) {
	schema, err := getWorkflowSchema()
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "invalid_schema", Message: err.Error()})
		return
	}

	var entry *fileInput
	for i := range req.Files {
		if req.Files[i].Name == req.EntryFileName {
			entry = &req.Files[i]
			break
		}
	}
	if entry == nil {
		resp.Errors = append(resp.Errors, responseError{
			Code:    "entry_not_found",
			Message: fmt.Sprintf("entry file %q was not supplied", req.EntryFileName),
		})
		return
	}

	src, err := template.NewYAMLObjectSource(entry.Name, []byte(entry.Content))
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "invalid_workflow", Message: err.Error()})
		return
	}
	ctx := template.NewReaderContext(schema, *maxMemory, 0)
	root, err := template.ReadTemplate(ctx, "workflow-root", src, entry.Name)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "read_failed", Message: err.Error()})
		return
	}
	for _, e := range ctx.Errors.Errors() {
		resp.Errors = append(resp.Errors, responseError{Code: e.Code, Message: e.Message})
	}
	data, err := template.MarshalToken(root)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "marshal_failed", Message: err.Error()})
		return
	}
	resp.Value = jsontext.Value(data)
}

// evaluateStrategy expands a previously parsed token (typically a job's
// strategy sub-tree) against the supplied named contexts.
func evaluateStrategy(req *request, resp *response) {
	root, err := template.UnmarshalToken(req.Token)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "invalid_token", Message: err.Error()})
		return
	}

	trace := clihost.NewTraceLog(false)
	counter := resource.NewCounter(*maxMemory)
	depth := resource.NewDepth(0)
	errs := template.NewValidationErrors()
	eval := clihost.Evaluator(req.Context, *maxMemory, trace)

	expanded, err := template.Unravel(root, counter, depth, errs, eval)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "expand_failed", Message: err.Error()})
		return
	}
	for _, e := range errs.Errors() {
		resp.Errors = append(resp.Errors, responseError{Code: e.Code, Message: e.Message})
	}
	resp.Log = trace.String()
	data, err := template.MarshalToken(expanded)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "marshal_failed", Message: err.Error()})
		return
	}
	resp.Value = jsontext.Value(data)
}

func showHelp() {
	fmt.Println("Usage: workflows [flags]")
	fmt.Println()
	fmt.Println("Reads JSON requests from stdin, one per '---'-delimited document:")
	fmt.Println(`  {"command":"parse-workflow", "entryFileName":"...", "files":[{"name":"...","content":"..."}]}`)
	fmt.Println(`  {"command":"evaluate-strategy", "fileTable":[...], "context":{...}, "token":<persisted token>}`)
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
