package template

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/go-i18n"
)

// MaxErrorCount bounds how many diagnostics ValidationErrors retains
// before it stops collecting.
const MaxErrorCount = 10

// MaxErrorMessageLength bounds a single message's length; longer messages
// are truncated with a "[...]" suffix.
const MaxErrorMessageLength = 500

// ValidationError is one reader/unraveler-level diagnostic: a local
// recovery happened, but the caller still needs
// to know. Code is a stable, localizable identifier; Message is the
// rendered English text including any file/line/col prefix.
type ValidationError struct {
	Code    string
	Message string
	Params  map[string]any
}

func (e *ValidationError) Error() string { return e.Message }

// Localize renders the error through an i18n bundle when one is supplied.
func (e *ValidationError) Localize(localizer *i18n.Localizer) string {
	if localizer != nil {
		return localizer.Get(e.Code, i18n.Vars(e.Params))
	}
	return e.Message
}

// NewValidationError builds a ValidationError, prefixing the message
// with the token's "<fileName> (Line: L, Col: C) " provenance.
func NewValidationError(tok *Token, code, message string, params ...map[string]any) *ValidationError {
	e := &ValidationError{Code: code, Message: tok.PositionPrefix() + message}
	if len(params) > 0 {
		e.Params = params[0]
	}
	return e
}

// ValidationErrors collects diagnostics across one read/unravel pass,
// enforcing MaxErrorCount and MaxErrorMessageLength.
type ValidationErrors struct {
	errs []*ValidationError
}

// NewValidationErrors creates an empty collector.
func NewValidationErrors() *ValidationErrors { return &ValidationErrors{} }

// Add records one diagnostic, truncating its message if it exceeds
// MaxErrorMessageLength and dropping it silently once MaxErrorCount is
// already reached (the count itself is never exceeded, matching a
// collector that must stay bounded regardless of how pathological the
// input is).
func (v *ValidationErrors) Add(err *ValidationError) {
	if v == nil || err == nil {
		return
	}
	if len(v.errs) >= MaxErrorCount {
		return
	}
	if len(err.Message) > MaxErrorMessageLength {
		err.Message = err.Message[:MaxErrorMessageLength] + "[...]"
	}
	v.errs = append(v.errs, err)
}

// Errors returns every collected diagnostic, in the order added.
func (v *ValidationErrors) Errors() []*ValidationError {
	if v == nil {
		return nil
	}
	return v.errs
}

// Empty reports whether nothing was collected.
func (v *ValidationErrors) Empty() bool { return v == nil || len(v.errs) == 0 }

// Count reports how many diagnostics were collected (capped at
// MaxErrorCount).
func (v *ValidationErrors) Count() int {
	if v == nil {
		return 0
	}
	return len(v.errs)
}

// Check raises a single combined error from every diagnostic collected
// so far, or nil if none were.
func (v *ValidationErrors) Check() error {
	if v.Empty() {
		return nil
	}
	msgs := make([]string, len(v.errs))
	for i, e := range v.errs {
		msgs[i] = e.Message
	}
	return fmt.Errorf("template validation failed with %d error(s):\n%s", len(v.errs), strings.Join(msgs, "\n"))
}
