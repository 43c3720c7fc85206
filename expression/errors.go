package expression

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/go-i18n"
)

// ParseErrorCode discriminates the lexer/parser failures. None of them
// have a local recovery; they abort the whole parse.
type ParseErrorCode string

const (
	ErrUnexpectedSymbol       ParseErrorCode = "unexpected_symbol"
	ErrUnexpectedEnd          ParseErrorCode = "unexpected_end_of_expression"
	ErrTooFewParameters       ParseErrorCode = "too_few_parameters"
	ErrTooManyParameters      ParseErrorCode = "too_many_parameters"
	ErrUnrecognizedFunction   ParseErrorCode = "unrecognized_function"
	ErrUnrecognizedContext    ParseErrorCode = "unrecognized_named_context"
	ErrExceededMaxDepth       ParseErrorCode = "exceeded_max_depth"
	ErrExceededMaxLength      ParseErrorCode = "exceeded_max_length"
	ErrMismatchedParens       ParseErrorCode = "mismatched_parentheses"
	ErrInvalidExpressionShape ParseErrorCode = "invalid_expression_shape"
)

// ParseError is a lexer/parser-level error carrying a one-based source
// position.
type ParseError struct {
	Code     ParseErrorCode
	Message  string
	Position int // one-based
}

func (e *ParseError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("%s (at position %d)", e.Message, e.Position)
	}
	return e.Message
}

func newParseError(code ParseErrorCode, pos int, format string, args ...any) *ParseError {
	return &ParseError{Code: code, Message: fmt.Sprintf(format, args...), Position: pos + 1}
}

// EvalError is a structured, localizable evaluation-time error.
type EvalError struct {
	Keyword string
	Code    string
	Message string
	Params  map[string]any
}

// NewEvalError builds an EvalError, optionally with message parameters.
func NewEvalError(keyword, code, message string, params ...map[string]any) *EvalError {
	e := &EvalError{Keyword: keyword, Code: code, Message: message}
	if len(params) > 0 {
		e.Params = params[0]
	}
	return e
}

func (e *EvalError) Error() string { return replaceParams(e.Message, e.Params) }

// Localize renders the error through an i18n bundle when one is supplied,
// falling back to the English template otherwise.
func (e *EvalError) Localize(localizer *i18n.Localizer) string {
	if localizer != nil {
		return localizer.Get(e.Code, i18n.Vars(e.Params))
	}
	return e.Error()
}

func replaceParams(template string, params map[string]any) string {
	for key, value := range params {
		template = strings.ReplaceAll(template, "{"+key+"}", fmt.Sprint(value))
	}
	return template
}

// MemoryError is raised when the shared byte/depth budget is exhausted.
// It has no local recovery: the whole operation terminates rather than
// producing a substitutable value.
type MemoryError struct {
	Message string
}

func (e *MemoryError) Error() string { return e.Message }
