// Package main implements the templates batch validator/expander.
// It reads JSON requests from standard input, separated by a "---" line,
// and writes one JSON response per template, each followed by "---".
//
// Usage:
//
//	templates [flags]
//
// Flags:
//
//	-pretty              Indent response documents with two spaces
//	-expand-expressions  Expand ${{ ... }} expressions; the expanded
//	                     result is returned only when no validation
//	                     errors were produced
//	-max-memory          Per-template memory budget in bytes
//	-locale              Localize diagnostic messages (e.g. zh-Hans)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
	"github.com/kaptinlin/go-i18n"

	actionsyaml "github.com/ericsciple/actions-yaml"
	"github.com/ericsciple/actions-yaml/internal/clihost"
	"github.com/ericsciple/actions-yaml/internal/cliproto"
	"github.com/ericsciple/actions-yaml/template"
)

// Command line flags
var (
	pretty    = flag.Bool("pretty", false, "Indent response documents with two spaces")
	expand    = flag.Bool("expand-expressions", false, "Expand template expressions (result returned only when error-free)")
	maxMemory = flag.Int("max-memory", clihost.DefaultMaxMemory, "Per-template memory budget in bytes")
	locale    = flag.String("locale", "", "Localize diagnostic messages (e.g. zh-Hans)")
	help      = flag.Bool("help", false, "Show help message")
)

var localizer *i18n.Localizer

type templateInput struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type request struct {
	BatchID   string          `json:"batchId"`
	Schema    string          `json:"schema"`
	Context   map[string]any  `json:"context"`
	Templates []templateInput `json:"templates"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type response struct {
	BatchID  string          `json:"batchId"`
	Sequence int             `json:"sequence"`
	Log      string          `json:"log"`
	Result   jsontext.Value  `json:"result"`
	Errors   []responseError `json:"errors"`
}

func main() {
	flag.Usage = showHelp
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if *locale != "" {
		bundle, err := actionsyaml.I18n()
		if err != nil {
			fmt.Fprintln(os.Stderr, "templates:", err)
			os.Exit(1)
		}
		localizer = bundle.NewLocalizer(*locale)
	}

	in := cliproto.NewScanner(os.Stdin)
	out := cliproto.NewWriter(os.Stdout, *pretty)

	for {
		doc, ok, err := in.Next()
		if err != nil {
			fmt.Fprintln(os.Stderr, "templates:", err)
			os.Exit(1)
		}
		if !ok {
			return
		}
		var req request
		if err := json.Unmarshal(doc, &req); err != nil {
			_ = out.Write(response{Errors: []responseError{{Code: "invalid_request", Message: err.Error()}}})
			continue
		}
		if req.BatchID == "" {
			req.BatchID = uuid.NewString()
		}

		schema, err := loadSchema(req.Schema)
		if err != nil {
			_ = out.Write(response{BatchID: req.BatchID, Errors: []responseError{{Code: "invalid_schema", Message: err.Error()}}})
			continue
		}

		for i, t := range req.Templates {
			resp := processTemplate(req, schema, i, t)
			if err := out.Write(resp); err != nil {
				fmt.Fprintln(os.Stderr, "templates:", err)
				os.Exit(1)
			}
		}
	}
}

func loadSchema(content string) (*template.Schema, error) {
	src, err := template.NewYAMLObjectSource("schema", []byte(content))
	if err != nil {
		return nil, err
	}
	return template.LoadSchema(src, "schema")
}

func processTemplate(req request, schema *template.Schema, sequence int, t templateInput) response {
	resp := response{BatchID: req.BatchID, Sequence: sequence}
	trace := clihost.NewTraceLog(false)

	fileID := fmt.Sprintf("template-%d", sequence)
	src, err := template.NewYAMLObjectSource(fileID, []byte(t.Content))
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "invalid_template", Message: err.Error()})
		return resp
	}

	ctx := template.NewReaderContext(schema, *maxMemory, 0)
	root, err := template.ReadTemplate(ctx, t.Type, src, fileID)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "read_failed", Message: err.Error()})
		return resp
	}

	result := root
	if *expand {
		eval := clihost.Evaluator(req.Context, *maxMemory, trace)
		expanded, err := template.Unravel(root, ctx.Counter, ctx.Depth, ctx.Errors, eval)
		if err != nil {
			resp.Errors = append(resp.Errors, responseError{Code: "expand_failed", Message: err.Error()})
			return resp
		}
		result = expanded
	}

	for _, e := range ctx.Errors.Errors() {
		msg := e.Message
		if localizer != nil {
			msg = e.Localize(localizer)
		}
		resp.Errors = append(resp.Errors, responseError{Code: e.Code, Message: msg})
	}
	resp.Log = trace.String()

	// With expansion requested, a result is only returned when the
	// template processed clean; a partially expanded tree is more
	// surprising to a consumer than an absent one.
	if *expand && len(resp.Errors) > 0 {
		return resp
	}
	data, err := template.MarshalToken(result)
	if err != nil {
		resp.Errors = append(resp.Errors, responseError{Code: "marshal_failed", Message: err.Error()})
		return resp
	}
	resp.Result = jsontext.Value(data)
	return resp
}

func showHelp() {
	fmt.Println("Usage: templates [flags]")
	fmt.Println()
	fmt.Println("Reads JSON requests from stdin, one per '---'-delimited document:")
	fmt.Println(`  {"batchId":"...", "schema":"<yaml>", "templates":[{"type":"...","content":"<yaml>"}]}`)
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
